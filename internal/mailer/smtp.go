package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/maxo-smsgw/smsgw/internal/config"
)

type SMTPSender struct {
	config config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{config: cfg}
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, msg Message) Result {
	if err := validateMessage(msg); err != nil {
		return Result{Success: false, Error: err}
	}
	if err := ctx.Err(); err != nil {
		return Result{Success: false, Error: err}
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var err error
	if s.config.UseTLS {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		err = s.sendWithTLS(addr, auth, msg.From, msg.To, msg.Raw)
	} else {
		if s.config.Username != "" {
			return Result{Success: false, Error: fmt.Errorf("SMTP auth requires TLS")}
		}
		err = smtp.SendMail(addr, nil, msg.From, msg.To, msg.Raw)
	}
	if err != nil {
		return Result{Success: false, Error: sanitizeSMTPError(err)}
	}

	id := msg.MessageID
	if id == "" {
		id = fmt.Sprintf("smtp-%s", strings.Join(msg.To, ","))
	}
	return Result{Success: true, MessageID: id}
}

func sanitizeSMTPError(err error) error {
	s := strings.ToLower(err.Error())
	// x509 errors mention "unknown authority", so certificates go first
	if strings.Contains(s, "certificate") || strings.Contains(s, "x509") {
		return fmt.Errorf("TLS certificate error")
	}
	if strings.Contains(s, "535") || strings.Contains(s, "auth") {
		return fmt.Errorf("SMTP authentication failed")
	}
	return fmt.Errorf("SMTP error: check your configuration")
}

func (s *SMTPSender) sendWithTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName: s.config.Host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("TLS connection failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("SMTP client creation failed: %w", err)
	}
	defer client.Close()

	if s.config.Username != "" {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("sender rejected: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("recipient rejected: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data command failed: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("message write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message finalization failed: %w", err)
	}
	return client.Quit()
}
