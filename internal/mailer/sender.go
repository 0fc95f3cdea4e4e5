// Package mailer submits relayed messages to an SMTP server.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/maxo-smsgw/smsgw/internal/config"
)

// Message is an encoded message and its envelope.
type Message struct {
	From      string
	To        []string
	MessageID string
	Raw       []byte
}

type Result struct {
	Success   bool
	MessageID string
	Error     error
}

type Sender interface {
	Send(ctx context.Context, msg Message) Result
	Name() string
}

func NewSender(cfg config.SMTPConfig) (Sender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is not configured")
	}
	return NewSMTPSender(cfg), nil
}

// ValidateEmail checks for injection characters and RFC 5322 compliance
func ValidateEmail(email string) error {
	if strings.ContainsAny(email, "\r\n,;") {
		return fmt.Errorf("email contains invalid characters")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	return nil
}

func validateMessage(msg Message) error {
	if err := ValidateEmail(msg.From); err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients")
	}
	for _, to := range msg.To {
		if err := ValidateEmail(to); err != nil {
			return fmt.Errorf("invalid recipient: %w", err)
		}
	}
	if len(msg.Raw) == 0 {
		return fmt.Errorf("empty message")
	}
	return nil
}
