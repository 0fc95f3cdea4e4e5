package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/model"
)

// BodyNormalizer rewrites a stored body to its human text.
type BodyNormalizer interface {
	Normalize(raw string) string
}

// Cleaner rewrites stored thread bodies with a normalizer.
type Cleaner struct {
	repo     Repository
	norm     BodyNormalizer
	log      *zap.Logger
	progress Progress
}

// NewCleaner creates a cleaner. A nil logger or progress func is allowed.
func NewCleaner(repo Repository, norm BodyNormalizer, log *zap.Logger, progress Progress) *Cleaner {
	if log == nil {
		log = zap.NewNop()
	}
	if progress == nil {
		progress = noProgress
	}
	return &Cleaner{repo: repo, norm: norm, log: log, progress: progress}
}

// cleanable reports whether a thread holds correspondent or agent text.
// Notes are internal and line items carry no body.
func cleanable(t model.Thread) bool {
	return t.Type == model.ThreadCustomer || t.Type == model.ThreadMessage
}

// CleanConversation normalizes every message body of a conversation and
// returns how many bodies changed. Confirmation echoes are left for the
// pruner to delete.
func (c *Cleaner) CleanConversation(ctx context.Context, id int64) (int, error) {
	threads, err := c.repo.Threads(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to load threads of conversation %d: %w", id, err)
	}

	cleaned := 0
	for _, t := range threads {
		if !cleanable(t) || t.Body == "" || isEcho(t) {
			continue
		}
		body := c.norm.Normalize(t.Body)
		if body == t.Body {
			continue
		}
		if err := c.repo.UpdateThreadBody(ctx, t.ID, body); err != nil {
			return cleaned, fmt.Errorf("failed to clean thread %d: %w", t.ID, err)
		}
		cleaned++
		c.progress("  Thread #%d cleaned: %s", t.ID, preview(model.Thread{Body: body}))
		c.log.Debug("cleaned thread",
			zap.Int64("conversation", id),
			zap.Int64("thread", t.ID),
			zap.Int("before", len(t.Body)),
			zap.Int("after", len(body)))
	}
	return cleaned, nil
}

// Clean runs CleanConversation over convs and returns the IDs of the
// conversations whose bodies changed.
func (c *Cleaner) Clean(ctx context.Context, convs []model.Conversation) (model.Counts, []int64, error) {
	var counts model.Counts
	var changed []int64
	for _, conv := range convs {
		n, err := c.CleanConversation(ctx, conv.ID)
		counts.ThreadsCleaned += n
		if n > 0 {
			changed = append(changed, conv.ID)
		}
		if err != nil {
			return counts, changed, err
		}
	}
	return counts, changed, nil
}
