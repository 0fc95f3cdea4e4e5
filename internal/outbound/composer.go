package outbound

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/gateway"
	"github.com/maxo-smsgw/smsgw/internal/model"
)

// Reply identifies the conversation a reply is being composed for.
type Reply struct {
	ConversationID int64
	CustomerEmail  string
}

// Stage is one named step of a pipeline.
type Stage[T any] struct {
	Name  string
	Apply func(value T, r Reply) T
}

// Pipeline runs its stages in the order they were added.
type Pipeline[T any] struct {
	stages []Stage[T]
}

// Use appends a stage.
func (p *Pipeline[T]) Use(name string, fn func(value T, r Reply) T) {
	p.stages = append(p.stages, Stage[T]{Name: name, Apply: fn})
}

// Run threads value through every stage.
func (p *Pipeline[T]) Run(value T, r Reply) T {
	for _, s := range p.stages {
		value = s.Apply(value, r)
	}
	return value
}

// Names lists the stages in order.
func (p *Pipeline[T]) Names() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name)
	}
	return names
}

// Draft is a reply before it is handed to the mailer.
type Draft struct {
	SendPrevious bool
	Threads      []model.Thread
	Subject      string
	Body         string
}

// EventKind names a conversation event the composer reacts to.
type EventKind int

const (
	EventConversationCreated EventKind = iota + 1
	EventCustomerReplied
)

func (k EventKind) String() string {
	switch k {
	case EventConversationCreated:
		return "conversation.created"
	case EventCustomerReplied:
		return "conversation.customer_replied"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is a conversation created or replied to by a customer.
type Event struct {
	Kind          EventKind
	Conversation  *model.Conversation
	CustomerEmail string
}

// Handler reacts to an event.
type Handler func(ctx context.Context, ev Event) error

type handler struct {
	name string
	fn   Handler
}

// Composer holds the composition pipelines and event handlers.
type Composer struct {
	SendPrevious Pipeline[bool]
	ReplyThreads Pipeline[[]model.Thread]
	Subject      Pipeline[string]
	Body         Pipeline[string]

	handlers map[EventKind][]handler
}

func NewComposer() *Composer {
	return &Composer{handlers: make(map[EventKind][]handler)}
}

// On registers a handler for kind.
func (c *Composer) On(kind EventKind, name string, fn Handler) {
	c.handlers[kind] = append(c.handlers[kind], handler{name: name, fn: fn})
}

// Dispatch runs the handlers for ev in registration order and stops at the
// first error.
func (c *Composer) Dispatch(ctx context.Context, ev Event) error {
	for _, h := range c.handlers[ev.Kind] {
		if err := h.fn(ctx, ev); err != nil {
			return fmt.Errorf("%s handler %s failed: %w", ev.Kind, h.name, err)
		}
	}
	return nil
}

// Compose runs every pipeline over d.
func (c *Composer) Compose(r Reply, d Draft) Draft {
	d.SendPrevious = c.SendPrevious.Run(d.SendPrevious, r)
	d.Threads = c.ReplyThreads.Run(d.Threads, r)
	d.Subject = c.Subject.Run(d.Subject, r)
	d.Body = c.Body.Run(d.Body, r)
	return d
}

// FlagStore persists the auto-reply suppression flag.
type FlagStore interface {
	SetAutoReplySent(ctx context.Context, conversationID int64) error
}

// GatewayStages configures UseGateway.
type GatewayStages struct {
	Matcher    *gateway.Matcher
	Normalizer Normalizer
	Flags      FlagStore
	Logger     *zap.Logger
}

// UseGateway installs the stages and handlers that shape replies to gateway
// correspondents. Replies to anyone else pass through untouched.
func (c *Composer) UseGateway(g GatewayStages) {
	if g.Matcher == nil {
		g.Matcher = gateway.NewMatcher("")
	}
	if g.Logger == nil {
		g.Logger = zap.NewNop()
	}
	norm := g.Normalizer
	if norm == nil {
		norm = defaultNormalizer()
	}
	is := func(r Reply) bool { return g.Matcher.IsGateway(r.CustomerEmail) }

	c.SendPrevious.Use("gateway-no-history", func(send bool, r Reply) bool {
		if is(r) {
			return false
		}
		return send
	})
	c.ReplyThreads.Use("gateway-newest-only", func(threads []model.Thread, r Reply) []model.Thread {
		if !is(r) || len(threads) == 0 {
			return threads
		}
		newest := threads[0]
		for _, t := range threads[1:] {
			if model.Before(newest.CreatedAt, newest.ID, t.CreatedAt, t.ID) {
				newest = t
			}
		}
		newest.Body = norm.Normalize(newest.Body)
		newest.Attachments = nil
		return []model.Thread{newest}
	})
	c.Subject.Use("gateway-strip-ticket", func(subject string, r Reply) string {
		if is(r) {
			return norm.StripTicketReference(subject)
		}
		return subject
	})
	c.Body.Use("gateway-normalize", func(body string, r Reply) string {
		if is(r) {
			return norm.Normalize(body)
		}
		return body
	})

	suppress := func(ctx context.Context, ev Event) error {
		email := ev.CustomerEmail
		if email == "" && ev.Conversation != nil {
			email = ev.Conversation.CustomerEmail
		}
		if ev.Conversation == nil || !g.Matcher.IsGateway(email) {
			return nil
		}
		ev.Conversation.AutoReplySent = true
		g.Logger.Debug("suppressed auto-reply",
			zap.Int64("conversation", ev.Conversation.ID),
			zap.String("event", ev.Kind.String()))
		if g.Flags == nil {
			return nil
		}
		return g.Flags.SetAutoReplySent(ctx, ev.Conversation.ID)
	}
	c.On(EventConversationCreated, "gateway-suppress-auto-reply", suppress)
	c.On(EventCustomerReplied, "gateway-suppress-auto-reply", suppress)
}
