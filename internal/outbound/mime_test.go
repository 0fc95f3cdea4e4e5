package outbound

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawMessage(to string) string {
	raw := `From: Acme Support <support@acme.test>
To: ` + to + `
Subject: [#123] Re: Pickup
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="outer"

--outer
Content-Type: multipart/alternative; boundary="alt"

--alt
Content-Type: text/plain; charset=utf-8

See you at 5

--
Acme Support
--alt
Content-Type: text/html; charset=utf-8

<p>See you at 5</p><div class="signature">Acme Support</div>
--alt--
--outer
Content-Type: application/pdf
Content-Disposition: attachment; filename="invoice.pdf"
Content-Transfer-Encoding: base64

JVBERi0xLjQ=
--outer--
`
	return strings.ReplaceAll(raw, "\n", "\r\n")
}

func TestParseMIME(t *testing.T) {
	m, err := ParseMIME(strings.NewReader(rawMessage(phone)))
	require.NoError(t, err)

	assert.Equal(t, []string{phone}, m.Recipients())
	assert.Equal(t, "support@acme.test", m.From())
	assert.Equal(t, "[#123] Re: Pickup", m.Subject())

	body, typ := m.Body()
	assert.Equal(t, TypePlain, typ)
	assert.Contains(t, body, "See you at 5")

	parts := m.Parts()
	require.Len(t, parts, 2)
	assert.True(t, parts[0].IsHTML())
	assert.Equal(t, "invoice.pdf", parts[1].Filename)
	assert.Equal(t, []byte("%PDF-1.4"), parts[1].Content)
}

func TestInterceptMIME(t *testing.T) {
	m, err := ParseMIME(strings.NewReader(rawMessage("Mobile <" + phone + ">")))
	require.NoError(t, err)

	require.True(t, NewInterceptor(Options{}).Intercept(m))
	m.SetSubject(defaultNormalizer().StripTicketReference(m.Subject()))

	out, err := m.Bytes()
	require.NoError(t, err)

	again, err := ParseMIME(bytes.NewReader(out))
	require.NoError(t, err)
	body, typ := again.Body()
	assert.Equal(t, "See you at 5", body)
	assert.Equal(t, TypePlain, typ)
	assert.Empty(t, again.Parts())
	assert.Equal(t, "Re: Pickup", again.Subject())
	assert.NotContains(t, string(out), "multipart")
}

func TestEncodeKeepsParts(t *testing.T) {
	m, err := ParseMIME(strings.NewReader(rawMessage("jane@example.com")))
	require.NoError(t, err)
	assert.False(t, NewInterceptor(Options{}).Intercept(m))

	out, err := m.Bytes()
	require.NoError(t, err)

	again, err := ParseMIME(bytes.NewReader(out))
	require.NoError(t, err)
	body, _ := again.Body()
	assert.Contains(t, body, "See you at 5")
	require.Len(t, again.Parts(), 2)
	assert.True(t, again.Parts()[0].IsHTML())
	assert.Equal(t, "invoice.pdf", again.Parts()[1].Filename)
	assert.Equal(t, []byte("%PDF-1.4"), again.Parts()[1].Content)
}

func TestRecipientsFallback(t *testing.T) {
	raw := "To: \"unterminated <jane@example.com>, " + phone + "\r\nCc: desk@acme.test\r\n\r\nhi\r\n"
	m, err := ParseMIME(strings.NewReader(raw))
	require.NoError(t, err)

	got := m.Recipients()
	assert.Contains(t, got, "desk@acme.test")
	assert.Len(t, got, 3)
	assert.True(t, NewInterceptor(Options{}).Intercept(m))
}

func TestPrepare(t *testing.T) {
	c := gatewayComposer(nil)
	i := NewInterceptor(Options{})

	m, err := ParseMIME(strings.NewReader(rawMessage("jane@example.com, " + phone)))
	require.NoError(t, err)
	require.True(t, Prepare(m, i, c))
	assert.Equal(t, "Re: Pickup", m.Subject())
	body, _ := m.Body()
	assert.Equal(t, "See you at 5", body)

	other, err := ParseMIME(strings.NewReader(rawMessage("jane@example.com")))
	require.NoError(t, err)
	assert.False(t, Prepare(other, i, c))
	assert.Equal(t, "[#123] Re: Pickup", other.Subject())

	bare, err := ParseMIME(strings.NewReader(rawMessage(phone)))
	require.NoError(t, err)
	require.True(t, Prepare(bare, i, nil))
	assert.Equal(t, "[#123] Re: Pickup", bare.Subject())
}
