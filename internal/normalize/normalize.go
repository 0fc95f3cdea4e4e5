// Package normalize reduces gateway-formatted bodies to the text a person
// typed and strips ticket references from subjects.
package normalize

import (
	"regexp"
	"strings"

	"github.com/maxo-smsgw/smsgw/internal/classify"
	"github.com/maxo-smsgw/smsgw/internal/pattern"
	"github.com/maxo-smsgw/smsgw/internal/plaintext"
)

var blankRun = regexp.MustCompile(`\n{3,}`)

// Result is the outcome of one normalization
type Result struct {
	Text  string
	Shape classify.Shape
	Tier  string   // extraction tier that produced Text, empty if none
	Fired []string // names of rules that changed the text, in order
}

// Normalizer runs the staged pipeline over a pattern library.
type Normalizer struct {
	lib *pattern.Library
}

// New creates a normalizer. A nil library selects pattern.Default().
func New(lib *pattern.Library) *Normalizer {
	if lib == nil {
		lib = pattern.Default()
	}
	return &Normalizer{lib: lib}
}

// Normalize returns the cleaned text of raw. Empty input yields empty output.
func (n *Normalizer) Normalize(raw string) string {
	return n.Process(raw).Text
}

// Process is Normalize with the shape and rule trace.
func (n *Normalizer) Process(raw string) Result {
	res := Result{Shape: classify.ShapePlain}
	if strings.TrimSpace(raw) == "" {
		return res
	}

	text, fired := n.lib.Trace(pattern.StageMarkup, raw)
	res.Fired = append(res.Fired, fired...)

	text = plaintext.Extract(text)
	res.Shape = classify.Classify(text)

	switch res.Shape {
	case classify.ShapeConfirmation:
		// nothing salvageable when the capture is empty
		capture, tier, _ := pattern.FirstMatch(pattern.ConfirmationTiers, text)
		text, res.Tier = capture, tier

	case classify.ShapeInbound:
		if capture, tier, ok := pattern.FirstMatch(pattern.RelayTiers, text); ok {
			text, res.Tier = capture, tier
			break
		}
		stripped, fired := n.lib.Trace(pattern.StageRelay, text)
		if strings.TrimSpace(stripped) != "" {
			text = stripped
			res.Fired = append(res.Fired, fired...)
		}
	}

	cleaned, fired := n.lib.Trace(pattern.StageText, text)
	// an inbound SMS is never reduced to nothing by footer cleanup
	if res.Shape != classify.ShapeInbound || strings.TrimSpace(cleaned) != "" || strings.TrimSpace(text) == "" {
		text = cleaned
		res.Fired = append(res.Fired, fired...)
	}

	text = n.stripBodyTickets(text)
	res.Text = finish(text)
	return res
}

// StripTicketReference removes ticket tokens from a subject line. Whitespace
// is collapsed to single spaces.
func (n *Normalizer) StripTicketReference(subject string) string {
	if subject == "" {
		return ""
	}
	text := n.lib.Apply(pattern.StageTicket, subject)
	text = n.lib.Apply(pattern.StageTicketLead, text)
	return strings.Join(strings.Fields(text), " ")
}

// stripBodyTickets removes ticket tokens line by line so the body keeps its
// line structure. Lead rules only apply to the first non-blank line.
func (n *Normalizer) stripBodyTickets(text string) string {
	lines := strings.Split(text, "\n")
	lead := true
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		line = n.lib.Apply(pattern.StageTicket, line)
		if lead {
			line = n.lib.Apply(pattern.StageTicketLead, line)
			lead = false
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

func finish(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(text)
}

var std = New(nil)

// Normalize runs the default normalizer.
func Normalize(raw string) string {
	return std.Normalize(raw)
}

// Process runs the default normalizer and returns the trace.
func Process(raw string) Result {
	return std.Process(raw)
}

// StripTicketReference strips a subject with the default rules.
func StripTicketReference(subject string) string {
	return std.StripTicketReference(subject)
}
