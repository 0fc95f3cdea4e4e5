package inbox

import (
	"github.com/maxo-smsgw/smsgw/internal/classify"
	"github.com/maxo-smsgw/smsgw/internal/normalize"
)

// Processor normalizes a body and reports how it got there.
type Processor interface {
	Process(raw string) normalize.Result
}

// Inspection is one fetched message run through the normalizer
type Inspection struct {
	Email       Email
	Result      normalize.Result
	Reason      string // Human-readable account of the extraction
	NeedsReview bool   // The pattern set probably missed a wrapper
}

// Inspect normalizes each email's richest body and flags results that
// deserve a closer look.
func Inspect(emails []Email, p Processor) []Inspection {
	out := make([]Inspection, 0, len(emails))
	for _, e := range emails {
		res := p.Process(e.Raw())
		in := Inspection{Email: e, Result: res}
		in.Reason, in.NeedsReview = explain(e, res)
		out = append(out, in)
	}
	return out
}

func explain(e Email, res normalize.Result) (string, bool) {
	switch res.Shape {
	case classify.ShapeConfirmation:
		if res.Text == "" {
			return "confirmation echo without content", false
		}
		return "confirmation echo, tier " + res.Tier, false
	case classify.ShapeInbound:
		if res.Tier != "" {
			return "relayed SMS, tier " + res.Tier, false
		}
		if len(res.Fired) > 0 {
			return "relayed SMS, boilerplate stripped", false
		}
		return "relay marker present but nothing matched", true
	}
	if res.Text == "" && e.Raw() != "" {
		return "plain body normalized to nothing", true
	}
	if len(res.Fired) > 0 {
		return "plain body, boilerplate stripped", false
	}
	return "plain body, unchanged", false
}
