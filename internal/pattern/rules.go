package pattern

import (
	"regexp"
	"strings"
)

// Vendor markers. The pattern set is fixed to the gateway formats seen in
// production; there is no per-locale variant.
var (
	// ConfirmationMarker identifies an outbound send-confirmation echo
	ConfirmationMarker = regexp.MustCompile(`(?i)Email2SMS Reply From`)

	// RelayMarker identifies an inbound SMS relay wrapper
	RelayMarker = regexp.MustCompile(`(?i)wrote:|Reply directly to this email|Sign off your message|SMS replies are charged`)
)

// Extraction tiers, evaluated first-match-wins
var (
	// ConfirmationTiers capture the text between the vendor marker and the
	// "#!" terminator, or the end of the body.
	ConfirmationTiers = []Tier{
		{Name: "confirmation", Pattern: regexp.MustCompile(`(?is)Email2SMS Reply From [^:]+:(.*?)(?:#!|$)`), Group: 1},
	}

	// RelayTiers capture the SMS text between the "wrote:" header and the
	// vendor footer.
	RelayTiers = []Tier{
		{Name: "relay-named", Pattern: regexp.MustCompile(`(?is)[\w\d]+\s+wrote:\s*(.*?)\s*Reply directly to this email`), Group: 1},
		{Name: "relay-footer", Pattern: regexp.MustCompile(`(?is)wrote:\s*(.*?)\s*(?:Reply directly|Sign off|SMS replies are charged)`), Group: 1},
	}
)

// Markup-stage rules run on the raw body while the breaks that anchor them
// are still present.
var markupRules = []Rule{
	Remove("reply-above-separator", StageMarkup,
		regexp.MustCompile(`(?is)(<br\s*/?>|\n)*[-─—]+\s*Please reply above this line\s*[-─—]+.*$`)),
	Remove("signature-delimiter", StageMarkup,
		regexp.MustCompile(`(?is)(<br\s*/?>|\n)+--\s*(<br\s*/?>|\n).*$`)),
	Remove("sent-from-device", StageMarkup,
		regexp.MustCompile(`(?is)(<br\s*/?>|\n)+\s*Sent from my\s+\w+.*$`)),
}

// quotedHeader matches an "On <date>, <name> wrote:" line and the history
// quoted under it.
var quotedHeader = regexp.MustCompile(`(?is)(^|\n)[ \t>]*On\s[^\n]+wrote:[ \t]*(\n.*)?$`)

// Relay fallback rules strip the known wrapper lines when no tier captured
// anything.
var relayRules = []Rule{
	Remove("quoted-history", StageRelay, quotedHeader),
	Remove("wrote-header", StageRelay, regexp.MustCompile(`(?m)^.*wrote:[ \t]*$`)),
	Remove("reply-directly-footer", StageRelay, regexp.MustCompile(`(?is)Reply directly to this email.*$`)),
	Remove("sign-off-footer", StageRelay, regexp.MustCompile(`(?is)Sign off your message.*$`)),
	Remove("charge-notice-footer", StageRelay, regexp.MustCompile(`(?is)SMS replies are charged.*$`)),
}

// Text-stage rules catch footers that survive tag stripping as bare text.
var textRules = []Rule{
	// A selector followed by at least one "prop: value;" declaration. Bare
	// "{label: value}" text is left alone.
	Remove("style-fragment", StageText,
		regexp.MustCompile(`(?m)^[ \t]*[\w.#@*:,> \t-]+\{[ \t]*(?:[\w-]+[ \t]*:[^;{}\n]*;[ \t]*)+(?:[\w-]+[ \t]*:[^;{}\n]*)?\}[ \t]*$`)),
	Remove("reply-above-line", StageText,
		regexp.MustCompile(`(?is)[-─—_= \t]*(please )?reply above this line.*$`)),
	Remove("sent-from-to-notice", StageText,
		regexp.MustCompile(`(?im)^[ \t]*This reply was sent from .+ to .+$`)),
	Remove("from-sent-header", StageText,
		regexp.MustCompile(`(?is)(^|\n)[ \t>]*From:[^\n]*(\n[ \t>]*)?Sent:.*$`)),
	Remove("on-date-wrote-header", StageText, quotedHeader),
	Remove("signature-delimiter", StageText,
		regexp.MustCompile(`(?s)(^|\n)--[ \t]*\n.*$`)),
	Remove("sent-from-device", StageText,
		regexp.MustCompile(`(?im)^[ \t]*Sent from my\s+\S+.*$`)),
	Remove("sign-off-marker", StageText,
		regexp.MustCompile(`\s*#!\s*$`)),
	Remove("rule-line", StageText,
		regexp.MustCompile(`(?m)^[ \t]*[-─—_=]{2,}[ \t]*$`)),
}

var (
	ticketIDPattern = `#[A-Za-z0-9\-]+`
	whitespaceRun   = regexp.MustCompile(`\s+`)
	replyPrefix     = regexp.MustCompile(`(?i)^(re|fwd|fw)\s*:\s*`)
)

// collapse squeezes whitespace after a ticket removal.
func collapse(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func ticketRule(name string, stage Stage, re *regexp.Regexp, repl string) Rule {
	return Rule{
		Name:      name,
		Stage:     stage,
		Predicate: re.MatchString,
		Transform: func(s string) string { return collapse(re.ReplaceAllString(s, repl)) },
	}
}

// Ticket rules. StageTicket tokens are removed anywhere; StageTicketLead
// rules only make sense at the start of a subject.
var ticketRules = []Rule{
	ticketRule("bracket-id", StageTicket, regexp.MustCompile(`\s*\[`+ticketIDPattern+`\]\s*`), " "),
	ticketRule("paren-id", StageTicket, regexp.MustCompile(`\s*\(`+ticketIDPattern+`\)\s*`), " "),
	ticketRule("brace-id", StageTicket, regexp.MustCompile(`\s*\{`+ticketIDPattern+`\}\s*`), " "),
	ticketRule("ticket-phrase", StageTicket, regexp.MustCompile(`(?i)\bTicket\s*`+ticketIDPattern+`\b`), ""),
	ticketRule("case-phrase", StageTicket, regexp.MustCompile(`(?i)\bCase\s*`+ticketIDPattern+`\b`), ""),
	ticketRule("ref-phrase", StageTicket, regexp.MustCompile(`(?i)\b(Ref|Reference)\s*:?\s*`+ticketIDPattern+`\b`), ""),
	ticketRule("leading-id", StageTicketLead, regexp.MustCompile(`^`+ticketIDPattern+`\s*:?\s*`), ""),
	{
		Name:      "orphaned-reply-prefix",
		Stage:     StageTicketLead,
		Predicate: func(s string) bool { return collapseReplyPrefix(s) != s },
		Transform: func(s string) string { return collapse(collapseReplyPrefix(s)) },
	},
}

// collapseReplyPrefix drops a Re:/Fwd:/Fw: prefix that is followed only by
// another such prefix or nothing at all.
func collapseReplyPrefix(s string) string {
	for {
		loc := replyPrefix.FindStringIndex(s)
		if loc == nil {
			return s
		}
		rest := s[loc[1]:]
		if rest != "" && !replyPrefix.MatchString(rest) {
			return s
		}
		s = rest
	}
}

// Default returns the production rule set in evaluation order.
func Default() *Library {
	l := New()
	for _, set := range [][]Rule{markupRules, relayRules, textRules, ticketRules} {
		for _, r := range set {
			l.Add(r)
		}
	}
	return l
}
