// Package gateway recognizes correspondents that live behind the SMS gateway.
package gateway

import (
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

// DefaultDomain is the mail domain the gateway relays SMS through.
const DefaultDomain = "sms.voipportal.com.au"

// Matcher tests addresses against one gateway domain. The suffix match is
// case-insensitive and anchored at the end of the address.
type Matcher struct {
	domain string
	suffix *regexp.Regexp
}

// NewMatcher creates a matcher for domain, falling back to DefaultDomain.
func NewMatcher(domain string) *Matcher {
	domain = strings.TrimPrefix(strings.TrimSpace(domain), "@")
	if domain == "" {
		domain = DefaultDomain
	}
	return &Matcher{
		domain: domain,
		suffix: regexp.MustCompile(`(?i)@` + regexp.QuoteMeta(domain) + `$`),
	}
}

// Domain returns the configured gateway domain.
func (m *Matcher) Domain() string {
	return m.domain
}

// IsGateway reports whether addr belongs to a gateway correspondent. Both
// bare addresses and "Name <addr>" forms are accepted.
func (m *Matcher) IsGateway(addr string) bool {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return false
	}
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	return m.suffix.MatchString(addr)
}

// AnyGateway reports whether at least one of addrs is a gateway correspondent.
func (m *Matcher) AnyGateway(addrs []string) bool {
	for _, a := range addrs {
		if m.IsGateway(a) {
			return true
		}
	}
	return false
}

// Filter returns the gateway addresses among addrs, in order.
func (m *Matcher) Filter(addrs []string) []string {
	var out []string
	for _, a := range addrs {
		if m.IsGateway(a) {
			out = append(out, a)
		}
	}
	return out
}
