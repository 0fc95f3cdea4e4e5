package pattern

import (
	"regexp"
	"strings"
	"testing"
)

func TestRuleApply(t *testing.T) {
	r := Remove("digits", StageText, regexp.MustCompile(`\d+`))

	tests := []struct {
		name    string
		input   string
		want    string
		matched bool
	}{
		{"match", "abc123def", "abcdef", true},
		{"miss", "abcdef", "abcdef", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Apply(tt.input)
			if got != tt.want || ok != tt.matched {
				t.Errorf("got (%q, %v), want (%q, %v)", got, ok, tt.want, tt.matched)
			}
		})
	}
}

func TestLibraryStageOrder(t *testing.T) {
	l := New(
		Replace("a-to-b", StageText, regexp.MustCompile(`a`), "b"),
		Replace("b-to-c", StageText, regexp.MustCompile(`b`), "c"),
		Replace("c-to-d", StageMarkup, regexp.MustCompile(`c`), "d"),
	)

	got, fired := l.Trace(StageText, "a")
	if got != "c" {
		t.Errorf("got %q, want %q", got, "c")
	}
	if strings.Join(fired, ",") != "a-to-b,b-to-c" {
		t.Errorf("fired = %v", fired)
	}
	if n := len(l.Rules(StageMarkup)); n != 1 {
		t.Errorf("got %d markup rules, want 1", n)
	}
}

func TestFirstMatch(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		want     string
		wantTier string
		ok       bool
	}{
		{
			name:     "named relay wrapper",
			input:    "Alice wrote: Call me back Reply directly to this email to continue",
			want:     "Call me back",
			wantTier: "relay-named",
			ok:       true,
		},
		{
			name:     "footer only",
			input:    "0412345678 wrote:\nRunning late\nSign off your message with #!",
			want:     "Running late",
			wantTier: "relay-footer",
			ok:       true,
		},
		{
			name:     "sign off footer without name",
			input:    "wrote: on my way SMS replies are charged at standard rates",
			want:     "on my way",
			wantTier: "relay-footer",
			ok:       true,
		},
		{
			name:  "empty capture falls through",
			input: "Alice wrote: Reply directly to this email",
			ok:    false,
		},
		{
			name:  "no wrapper",
			input: "just text",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tier, ok := FirstMatch(RelayTiers, tt.input)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v (capture %q)", ok, tt.ok, got)
			}
			if !ok {
				return
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if tt.wantTier != "" && tier != tt.wantTier {
				t.Errorf("tier = %s, want %s", tier, tt.wantTier)
			}
		})
	}
}

func TestConfirmationTier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Email2SMS Reply From Bob: Hi there#!", "Hi there"},
		{"email2sms reply from 61400111222: See you at 5", "See you at 5"},
		{"Email2SMS Reply From Bob: line one\nline two #! trailing", "line one\nline two"},
	}

	for _, tt := range tests {
		got, _, ok := FirstMatch(ConfirmationTiers, tt.input)
		if !ok || got != tt.want {
			t.Errorf("FirstMatch(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMarkupRules(t *testing.T) {
	l := Default()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "reply above separator",
			input: "Thanks<br>---- Please reply above this line ----<br>old stuff",
			want:  "Thanks",
		},
		{
			name:  "box drawing separator",
			input: "Thanks\n─── Please reply above this line ───\nold",
			want:  "Thanks",
		},
		{
			name:  "signature delimiter",
			input: "See you<br>--<br>Bob<br>Acme Pty Ltd",
			want:  "See you",
		},
		{
			name:  "sent from device",
			input: "On my way<br/>Sent from my iPhone",
			want:  "On my way",
		},
		{
			name:  "double dash inside a sentence survives",
			input: "wait -- what?",
			want:  "wait -- what?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Apply(StageMarkup, tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTextRules(t *testing.T) {
	l := Default()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "css fragment",
			input: "p.MsoNormal { margin: 0cm; }\nHello",
			want:  "\nHello",
		},
		{
			name:  "css fragment without final semicolon",
			input: "td, th { padding: 0; border: none }\nHi",
			want:  "\nHi",
		},
		{
			name:  "braced label kept",
			input: "Gate code {door: 4411}",
			want:  "Gate code {door: 4411}",
		},
		{
			name:  "braced label on its own line kept",
			input: "Meeting at\n{room: 5}",
			want:  "Meeting at\n{room: 5}",
		},
		{
			name:  "reply above line",
			input: "Hello\n## Please reply above this line ##\nquoted",
			want:  "Hello\n##",
		},
		{
			name:  "outlook header",
			input: "Sure thing\nFrom: Support\nSent: Monday\nold text",
			want:  "Sure thing",
		},
		{
			name:  "quoted header",
			input: "Yes please\nOn Mon, 1 Jan 2024, Bob wrote:\n> earlier",
			want:  "Yes please",
		},
		{
			name:  "sent from notice",
			input: "Ok\nThis reply was sent from support@acme.test to 0400@sms.example.com",
			want:  "Ok\n",
		},
		{
			name:  "sign off marker",
			input: "Hi there #!",
			want:  "Hi there",
		},
		{
			name:  "rule line",
			input: "Hi\n-----\nthere",
			want:  "Hi\n\nthere",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Apply(StageText, tt.input); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTicketRules(t *testing.T) {
	l := Default()
	strip := func(s string) string {
		return l.Apply(StageTicketLead, l.Apply(StageTicket, s))
	}

	tests := []struct {
		input string
		want  string
	}{
		{"[#123] Re: Hello", "Re: Hello"},
		{"Ticket #A-99 urgent", "urgent"},
		{"Question (#42) about billing", "Question about billing"},
		{"Update {#X1}", "Update"},
		{"Case #7 closed", "closed"},
		{"Ref: #55 invoice", "invoice"},
		{"Reference #55 invoice", "invoice"},
		{"#991: Parcel delayed", "Parcel delayed"},
		{"Re: Fwd: Hello", "Fwd: Hello"},
		{"Re: [#1]", ""},
		{"Re: Hello", "Re: Hello"},
		{"Reply needed", "Reply needed"},
		{"no tickets here", "no tickets here"},
	}

	for _, tt := range tests {
		if got := strip(tt.input); got != tt.want {
			t.Errorf("strip(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStageString(t *testing.T) {
	if StageTicketLead.String() != "ticket-lead" {
		t.Errorf("got %s", StageTicketLead)
	}
	if Stage(99).String() != "unknown" {
		t.Errorf("got %s", Stage(99))
	}
}
