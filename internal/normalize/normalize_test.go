package normalize

import (
	"strings"
	"testing"

	"github.com/maxo-smsgw/smsgw/internal/classify"
)

var bodyCases = []struct {
	name string
	raw  string
	want string
}{
	{
		name: "empty",
		raw:  "",
		want: "",
	},
	{
		name: "confirmation echo",
		raw:  "Email2SMS Reply From Bob: Hi there#!",
		want: "Hi there",
	},
	{
		name: "confirmation with reply-above separator",
		raw:  "Email2SMS Reply From Support: Your parcel is ready #!<br>---- Please reply above this line ----<br>Ticket history",
		want: "Your parcel is ready",
	},
	{
		name: "confirmation with nothing salvageable",
		raw:  "Email2SMS Reply From Bob: #!",
		want: "",
	},
	{
		name: "inbound relay one line",
		raw:  "Alice wrote: Call me back Reply directly to this email to continue",
		want: "Call me back",
	},
	{
		name: "inbound relay html",
		raw: `<html><head><style>.x{color:red}</style></head><body>` +
			`<p>0412345678 wrote:</p><p>Can we move to 3pm?</p>` +
			`<p>Reply directly to this email to respond. SMS replies are charged at standard rates.</p></body></html>`,
		want: "Can we move to 3pm?",
	},
	{
		name: "inbound relay with braced label",
		raw:  "Tom wrote: Gate code {door: 4411} Reply directly to this email",
		want: "Gate code {door: 4411}",
	},
	{
		name: "inbound relay with braced time",
		raw:  "Alice wrote: see you at {time: 5pm} Reply directly to this email to continue",
		want: "see you at {time: 5pm}",
	},
	{
		name: "plain body with braced label",
		raw:  "Meeting at {room: 5}",
		want: "Meeting at {room: 5}",
	},
	{
		name: "inbound footer fallback",
		raw:  "Running late\nSign off your message with your name",
		want: "Running late",
	},
	{
		name: "signature block",
		raw:  `<div>Running late</div><div class="gmail_signature">Jane Smith<br>Acme Pty Ltd</div>`,
		want: "Running late",
	},
	{
		name: "quoted history",
		raw:  "Sure, 3pm works.\n\nOn Mon, 1 Jan 2024 at 10:00, Support <help@acme.test> wrote:\n> Can we move?",
		want: "Sure, 3pm works.",
	},
	{
		name: "outlook reply header",
		raw:  "<p>Yes</p><p>From: Acme Support<br>Sent: Monday<br>To: me</p>",
		want: "Yes",
	},
	{
		name: "sent from device",
		raw:  "On my way\n\nSent from my iPhone",
		want: "On my way",
	},
	{
		name: "ticket tokens keep line structure",
		raw:  "Thanks [#123] for the update\nRef #55 noted",
		want: "Thanks for the update\nnoted",
	},
	{
		name: "blank runs collapsed",
		raw:  "a   \n\n\n\n\nb   ",
		want: "a\n\nb",
	},
}

func TestNormalize(t *testing.T) {
	for _, tt := range bodyCases {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.raw); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, tt := range bodyCases {
		t.Run(tt.name, func(t *testing.T) {
			once := Normalize(tt.raw)
			if twice := Normalize(once); twice != once {
				t.Errorf("second pass changed %q to %q", once, twice)
			}
		})
	}
}

func TestSignatureNeverLeaks(t *testing.T) {
	raws := []string{
		`<p>ok</p><div class="signature">SECRET-SIG</div>`,
		`<p>ok</p><span class="Email-Signature">SECRET-SIG</span>`,
		`<p>ok</p><div data-signature="1"><p>SECRET-SIG</p></div>`,
	}
	for _, raw := range raws {
		if got := Normalize(raw); strings.Contains(got, "SECRET-SIG") {
			t.Errorf("signature leaked: %q", got)
		}
	}
}

func TestProcess(t *testing.T) {
	tests := []struct {
		raw   string
		shape classify.Shape
		tier  string
	}{
		{"Email2SMS Reply From Bob: Hi there#!", classify.ShapeConfirmation, "confirmation"},
		{"Alice wrote: Call me back Reply directly to this email", classify.ShapeInbound, "relay-named"},
		{"just a note", classify.ShapePlain, ""},
		{"", classify.ShapePlain, ""},
	}

	for _, tt := range tests {
		res := Process(tt.raw)
		if res.Shape != tt.shape {
			t.Errorf("Process(%q).Shape = %s, want %s", tt.raw, res.Shape, tt.shape)
		}
		if res.Tier != tt.tier {
			t.Errorf("Process(%q).Tier = %q, want %q", tt.raw, res.Tier, tt.tier)
		}
	}
}

func TestProcessTrace(t *testing.T) {
	res := Process("Hello\n\nSent from my iPhone")
	if len(res.Fired) == 0 || res.Fired[0] != "sent-from-device" {
		t.Errorf("fired = %v", res.Fired)
	}
}

func TestInboundNeverEmptiedByTextRules(t *testing.T) {
	res := Process("Tom wrote: p.note { color: red; } Reply directly to this email")
	if res.Shape != classify.ShapeInbound {
		t.Fatalf("shape = %s", res.Shape)
	}
	if res.Text != "p.note { color: red; }" {
		t.Errorf("text = %q", res.Text)
	}
	for _, name := range res.Fired {
		if name == "style-fragment" {
			t.Errorf("style-fragment reported as fired: %v", res.Fired)
		}
	}
}

func TestStripTicketReference(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"[#123] Re: Hello", "Re: Hello"},
		{"Ticket #A-99 urgent", "urgent"},
		{"Re: [#77]", ""},
		{"Fwd: Re: Delivery (#12)", "Re: Delivery"},
		{"  spaced    out  ", "spaced out"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := StripTicketReference(tt.subject); got != tt.want {
			t.Errorf("StripTicketReference(%q) = %q, want %q", tt.subject, got, tt.want)
		}
	}
}

func TestCached(t *testing.T) {
	c, err := NewCached(nil, 4)
	if err != nil {
		t.Fatalf("NewCached: %v", err)
	}

	raw := "Email2SMS Reply From Bob: Hi there#!"
	for i := 0; i < 3; i++ {
		if got := c.Normalize(raw); got != "Hi there" {
			t.Fatalf("got %q", got)
		}
	}
	if c.Len() != 1 {
		t.Errorf("cache holds %d entries, want 1", c.Len())
	}
	if got := c.StripTicketReference("[#1] Hi"); got != "Hi" {
		t.Errorf("got %q", got)
	}

	if _, err := NewCached(nil, 0); err == nil {
		t.Error("expected error for zero size")
	}
}
