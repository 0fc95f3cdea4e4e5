// Package pattern holds the ordered detection-and-removal rules used to reduce
// gateway message bodies to the text a person actually typed.
package pattern

import (
	"regexp"
	"strings"
)

// Stage tags where in the normalization pipeline a rule runs
type Stage int

const (
	StageMarkup Stage = iota // raw body, before markup is stripped
	StageRelay               // inbound relay fallback, when no extraction tier matched
	StageText                // extracted plain text, format-agnostic
	StageTicket              // ticket reference tokens, anywhere in a line
	StageTicketLead          // ticket and reply prefixes at the start of a subject
)

func (s Stage) String() string {
	switch s {
	case StageMarkup:
		return "markup"
	case StageRelay:
		return "relay"
	case StageText:
		return "text"
	case StageTicket:
		return "ticket"
	case StageTicketLead:
		return "ticket-lead"
	default:
		return "unknown"
	}
}

// Rule is one ordered (predicate, transform) pair. The transform only runs
// when the predicate reports a match.
type Rule struct {
	Name      string
	Stage     Stage
	Predicate func(string) bool
	Transform func(string) string
}

// Replace builds a rule that substitutes every match of re with repl.
func Replace(name string, stage Stage, re *regexp.Regexp, repl string) Rule {
	return Rule{
		Name:      name,
		Stage:     stage,
		Predicate: re.MatchString,
		Transform: func(s string) string { return re.ReplaceAllString(s, repl) },
	}
}

// Remove builds a rule that deletes every match of re.
func Remove(name string, stage Stage, re *regexp.Regexp) Rule {
	return Replace(name, stage, re, "")
}

// Apply runs the rule against text, returning the text unchanged on a miss.
func (r Rule) Apply(text string) (string, bool) {
	if text == "" || r.Predicate == nil || r.Transform == nil {
		return text, false
	}
	if !r.Predicate(text) {
		return text, false
	}
	return r.Transform(text), true
}

// Library is an ordered rule set. Rules of a stage run in insertion order.
type Library struct {
	rules []Rule
}

// New creates a library from rules in evaluation order.
func New(rules ...Rule) *Library {
	l := &Library{}
	for _, r := range rules {
		l.Add(r)
	}
	return l
}

// Add appends a rule after every rule already registered.
func (l *Library) Add(r Rule) {
	l.rules = append(l.rules, r)
}

// Rules returns the rules of a stage in evaluation order.
func (l *Library) Rules(stage Stage) []Rule {
	var out []Rule
	for _, r := range l.rules {
		if r.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}

// Apply runs every rule of the stage in order over text.
func (l *Library) Apply(stage Stage, text string) string {
	out, _ := l.Trace(stage, text)
	return out
}

// Trace is Apply that also reports which rules fired.
func (l *Library) Trace(stage Stage, text string) (string, []string) {
	var fired []string
	for _, r := range l.rules {
		if r.Stage != stage {
			continue
		}
		var ok bool
		if text, ok = r.Apply(text); ok {
			fired = append(fired, r.Name)
		}
	}
	return text, fired
}

// Tier is one extraction attempt: the capture group of the first match.
type Tier struct {
	Name    string
	Pattern *regexp.Regexp
	Group   int
}

// Extract returns the trimmed capture, and whether it was non-empty.
func (t Tier) Extract(text string) (string, bool) {
	m := t.Pattern.FindStringSubmatch(text)
	if m == nil || t.Group >= len(m) {
		return "", false
	}
	capture := strings.TrimSpace(m[t.Group])
	return capture, capture != ""
}

// FirstMatch evaluates tiers in order; the first non-empty capture wins.
// The name of the winning tier is returned alongside it.
func FirstMatch(tiers []Tier, text string) (string, string, bool) {
	for _, t := range tiers {
		if capture, ok := t.Extract(text); ok {
			return capture, t.Name, true
		}
	}
	return "", "", false
}
