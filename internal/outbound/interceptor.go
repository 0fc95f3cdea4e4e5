package outbound

import (
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/gateway"
	"github.com/maxo-smsgw/smsgw/internal/normalize"
)

// DefaultMaxBodyBytes bounds how much of a body is normalized on the send path.
const DefaultMaxBodyBytes = 64 << 10

// Normalizer reduces bodies and subjects to what an SMS can carry.
type Normalizer interface {
	Normalize(raw string) string
	StripTicketReference(subject string) string
}

func defaultNormalizer() Normalizer {
	return normalize.New(nil)
}

// Interceptor rewrites outgoing messages addressed to gateway
// correspondents into a single normalized text/plain body.
type Interceptor struct {
	matcher  *gateway.Matcher
	norm     Normalizer
	maxBytes int
	log      *zap.Logger
}

// Options configures an Interceptor. Zero values select defaults.
type Options struct {
	Matcher      *gateway.Matcher
	Normalizer   Normalizer
	MaxBodyBytes int
	Logger       *zap.Logger
}

func NewInterceptor(opts Options) *Interceptor {
	if opts.Matcher == nil {
		opts.Matcher = gateway.NewMatcher("")
	}
	if opts.Normalizer == nil {
		opts.Normalizer = defaultNormalizer()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Interceptor{
		matcher:  opts.Matcher,
		norm:     opts.Normalizer,
		maxBytes: opts.MaxBodyBytes,
		log:      opts.Logger,
	}
}

// Intercept rewrites msg in place when any recipient is a gateway
// correspondent and reports whether it did. Failures are logged and never
// returned: the message goes out with whatever content survived.
func (i *Interceptor) Intercept(msg OutgoingMessage) (rewritten bool) {
	var recipients []string
	defer func() {
		if r := recover(); r != nil {
			i.log.Error("failed to process gateway message",
				zap.Strings("recipients", recipients),
				zap.Error(fmt.Errorf("panic: %v", r)))
			rewritten = false
		}
	}()

	recipients = msg.Recipients()
	if !i.matcher.AnyGateway(recipients) {
		return false
	}
	log := i.log.With(zap.Strings("recipients", i.matcher.Filter(recipients)))

	original := bestBody(msg)
	input := truncate(original, i.maxBytes)
	text := i.norm.Normalize(input)
	log.Info("gateway recipient detected",
		zap.Int("original_length", len(original)),
		zap.Bool("truncated", len(input) < len(original)),
		zap.Int("stripped_length", len(text)))

	if err := msg.SetBody(text, TypePlain); err != nil {
		log.Error("failed to replace gateway message body", zap.Error(err))
		return false
	}
	if err := msg.DetachParts(); err != nil {
		log.Error("failed to detach gateway message parts", zap.Error(err))
	}
	return true
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
