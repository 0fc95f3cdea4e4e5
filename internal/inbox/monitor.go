// Package inbox reads gateway mail over IMAP so the pattern set can be
// checked against what the gateway actually sends.
package inbox

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/config"
	"github.com/maxo-smsgw/smsgw/internal/gateway"
)

const batchSize = 50

// Monitor handles the IMAP connection
type Monitor struct {
	config  config.InboxConfig
	matcher *gateway.Matcher
	log     *zap.Logger
	client  *client.Client
	dial    func(addr string) (*client.Client, error)
}

// Email represents a fetched message
type Email struct {
	UID        uint32
	MessageID  string
	From       string
	FromName   string
	Subject    string
	Body       string
	HTMLBody   string
	ReceivedAt time.Time
}

// Raw returns the richest body the message carries.
func (e Email) Raw() string {
	if e.HTMLBody != "" {
		return e.HTMLBody
	}
	return e.Body
}

// NewMonitor creates a monitor. A nil matcher selects the default gateway
// domain and a nil logger discards output.
func NewMonitor(cfg config.InboxConfig, matcher *gateway.Matcher, log *zap.Logger) *Monitor {
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	if matcher == nil {
		matcher = gateway.NewMatcher("")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		config:  cfg,
		matcher: matcher,
		log:     log,
		dial: func(addr string) (*client.Client, error) {
			return client.DialTLS(addr, nil)
		},
	}
}

// Connect establishes IMAP connection
func (m *Monitor) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	m.log.Info("connecting to IMAP server", zap.String("addr", addr))

	c, err := m.dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	if err := c.Login(m.config.Email, m.config.Password); err != nil {
		c.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	m.client = c
	m.log.Debug("IMAP login successful", zap.String("email", m.config.Email))
	return nil
}

// Disconnect closes the IMAP connection
func (m *Monitor) Disconnect() error {
	if m.client != nil {
		err := m.client.Logout()
		m.client = nil
		return err
	}
	return nil
}

// FetchRecentEmails fetches emails from the last N days, in batches
func (m *Monitor) FetchRecentEmails(ctx context.Context, days int) ([]Email, error) {
	if m.client == nil {
		return nil, fmt.Errorf("not connected to IMAP server")
	}

	mbox, err := m.client.Select(m.config.Folder, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select mailbox %s: %w", m.config.Folder, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	since := time.Now().AddDate(0, 0, -days)
	criteria := imap.NewSearchCriteria()
	criteria.Since = since

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	m.log.Debug("searched mailbox",
		zap.String("folder", m.config.Folder),
		zap.Int("matches", len(uids)),
		zap.String("since", since.Format("2006-01-02")))

	var emails []Email
	for i := 0; i < len(uids); i += batchSize {
		if err := ctx.Err(); err != nil {
			return emails, err
		}
		end := i + batchSize
		if end > len(uids) {
			end = len(uids)
		}

		seqSet := new(imap.SeqSet)
		seqSet.AddNum(uids[i:end]...)
		section := &imap.BodySectionName{Peek: true}
		items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

		messages := make(chan *imap.Message, batchSize)
		done := make(chan error, 1)
		go func() {
			done <- m.client.UidFetch(seqSet, items, messages)
		}()

		for msg := range messages {
			if email := parseMessage(msg, section); email != nil {
				emails = append(emails, *email)
			}
		}
		if err := <-done; err != nil {
			return emails, fmt.Errorf("failed to fetch messages: %w", err)
		}
	}
	return emails, nil
}

// FetchGatewayEmails fetches only mail sent by gateway correspondents
func (m *Monitor) FetchGatewayEmails(ctx context.Context, days int) ([]Email, error) {
	all, err := m.FetchRecentEmails(ctx, days)
	if err != nil {
		return nil, err
	}

	var out []Email
	for _, e := range all {
		if m.matcher.IsGateway(e.From) {
			out = append(out, e)
		}
	}
	m.log.Info("fetched gateway mail", zap.Int("gateway", len(out)), zap.Int("total", len(all)))
	return out, nil
}

// parseMessage converts an IMAP message to our Email struct
func parseMessage(msg *imap.Message, section *imap.BodySectionName) *Email {
	if msg == nil || msg.Envelope == nil {
		return nil
	}

	email := &Email{
		UID:        msg.Uid,
		MessageID:  msg.Envelope.MessageId,
		Subject:    msg.Envelope.Subject,
		ReceivedAt: msg.Envelope.Date,
	}
	if len(msg.Envelope.From) > 0 {
		from := msg.Envelope.From[0]
		email.From = strings.ToLower(from.Address())
		email.FromName = from.PersonalName
	}

	r := msg.GetBody(section)
	if r == nil {
		return email
	}
	mr, err := mail.CreateReader(r)
	if err != nil {
		return email
	}

	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}
		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, _ := io.ReadAll(p.Body)
		if strings.HasPrefix(ct, "text/plain") && email.Body == "" {
			email.Body = string(body)
		} else if strings.HasPrefix(ct, "text/html") && email.HTMLBody == "" {
			email.HTMLBody = string(body)
		}
	}
	return email
}
