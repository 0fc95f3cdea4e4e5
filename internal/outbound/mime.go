package outbound

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

var utf8Params = map[string]string{"charset": "utf-8"}

// MIMEMessage is an OutgoingMessage over an RFC 5322 message. Part bodies
// are held decoded; Encode writes them back as UTF-8.
type MIMEMessage struct {
	Header mail.Header

	body     string
	bodyType string
	parts    []Part
}

// ParseMIME reads a message. The first text part that is not an attachment
// becomes the primary body and every other part is kept as a Part.
func ParseMIME(r io.Reader) (*MIMEMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	defer mr.Close()

	m := &MIMEMessage{Header: mr.Header, bodyType: TypePlain}
	primary := false
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}
		content, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		var h message.Header
		var name string
		switch ph := p.Header.(type) {
		case *mail.InlineHeader:
			h = ph.Header
		case *mail.AttachmentHeader:
			h = ph.Header
			name, _ = ph.Filename()
		}
		t, _, _ := h.ContentType()

		if !primary && name == "" && strings.HasPrefix(t, "text/") {
			m.body, m.bodyType, primary = string(content), t, true
			continue
		}
		m.parts = append(m.parts, Part{ContentType: t, Filename: name, Content: content})
	}
	return m, nil
}

// Recipients returns the To and Cc addresses. An unparsable list falls back
// to splitting the raw header on commas.
func (m *MIMEMessage) Recipients() []string {
	var out []string
	for _, key := range []string{"To", "Cc"} {
		addrs, err := m.Header.AddressList(key)
		if err != nil {
			for _, raw := range strings.Split(m.Header.Get(key), ",") {
				if raw = strings.TrimSpace(raw); raw != "" {
					out = append(out, raw)
				}
			}
			continue
		}
		for _, a := range addrs {
			out = append(out, a.Address)
		}
	}
	return out
}

func (m *MIMEMessage) Body() (string, string) {
	return m.body, m.bodyType
}

func (m *MIMEMessage) Parts() []Part {
	return m.parts
}

func (m *MIMEMessage) SetBody(body, contentType string) error {
	m.body, m.bodyType = body, contentType
	return nil
}

func (m *MIMEMessage) DetachParts() error {
	m.parts = nil
	return nil
}

// Subject returns the decoded subject, or the raw header value when it
// cannot be decoded.
func (m *MIMEMessage) Subject() string {
	s, err := m.Header.Subject()
	if err != nil {
		return m.Header.Get("Subject")
	}
	return s
}

func (m *MIMEMessage) SetSubject(s string) {
	m.Header.SetSubject(s)
}

// From returns the first sender address.
func (m *MIMEMessage) From() string {
	addrs, err := m.Header.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return ""
	}
	return addrs[0].Address
}

// Encode writes the message. Without parts it is a single inline part;
// otherwise text parts go into a multipart/alternative section and the
// rest become attachments.
func (m *MIMEMessage) Encode(w io.Writer) error {
	h := m.Header.Copy()
	h.Del("Content-Transfer-Encoding")

	if len(m.parts) == 0 {
		h.SetContentType(m.bodyType, utf8Params)
		bw, err := mail.CreateSingleInlineWriter(w, h)
		if err != nil {
			return fmt.Errorf("failed to write message header: %w", err)
		}
		if _, err := io.WriteString(bw, m.body); err != nil {
			return fmt.Errorf("failed to write message body: %w", err)
		}
		return bw.Close()
	}

	mw, err := mail.CreateWriter(w, h)
	if err != nil {
		return fmt.Errorf("failed to write message header: %w", err)
	}
	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("failed to create inline section: %w", err)
	}
	if err := writeInline(iw, m.bodyType, []byte(m.body)); err != nil {
		return err
	}
	var attachments []Part
	for _, p := range m.parts {
		if p.Filename == "" && strings.HasPrefix(p.ContentType, "text/") {
			if err := writeInline(iw, p.ContentType, p.Content); err != nil {
				return err
			}
			continue
		}
		attachments = append(attachments, p)
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("failed to close inline section: %w", err)
	}

	for _, p := range attachments {
		var ah mail.AttachmentHeader
		ah.SetContentType(p.ContentType, nil)
		if p.Filename != "" {
			ah.SetFilename(p.Filename)
		}
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return fmt.Errorf("failed to create attachment: %w", err)
		}
		if _, err := aw.Write(p.Content); err != nil {
			return fmt.Errorf("failed to write attachment: %w", err)
		}
		if err := aw.Close(); err != nil {
			return fmt.Errorf("failed to close attachment: %w", err)
		}
	}
	return mw.Close()
}

// Bytes encodes the message into memory.
func (m *MIMEMessage) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInline(iw *mail.InlineWriter, contentType string, content []byte) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, utf8Params)
	pw, err := iw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := pw.Write(content); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return pw.Close()
}

// Prepare runs the interceptor over m. When it fires and c is set, the
// subject goes through c's subject stages on behalf of the first gateway
// recipient.
func Prepare(m *MIMEMessage, i *Interceptor, c *Composer) bool {
	if !i.Intercept(m) {
		return false
	}
	if c == nil {
		return true
	}
	var r Reply
	if gw := i.matcher.Filter(m.Recipients()); len(gw) > 0 {
		r.CustomerEmail = gw[0]
	}
	m.SetSubject(c.Subject.Run(m.Subject(), r))
	return true
}
