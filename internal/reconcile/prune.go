package reconcile

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/classify"
	"github.com/maxo-smsgw/smsgw/internal/model"
	"github.com/maxo-smsgw/smsgw/internal/plaintext"
)

// minuteLayout truncates a timestamp to the minute for line item keys.
const minuteLayout = "2006-01-02 15:04"

// PrunePlan is the outcome of pruning one timeline, before it is applied.
type PrunePlan struct {
	Echoes     []model.Thread // confirmation echoes
	Duplicates []model.Thread // consecutive repeats of a message body
	LineItems  []model.Thread // repeated (action type, minute) log entries
	Survivors  []model.Thread
}

// Deleted reports whether the plan removes any thread.
func (p PrunePlan) Deleted() int {
	return len(p.Echoes) + len(p.Duplicates) + len(p.LineItems)
}

// PlanPrune decides which threads of a timeline go. threads must be in
// timeline order.
//
// Echoes are dropped first. The body pass then runs over the remaining
// message threads, with line items neither compared nor resetting the
// previous body. The line item pass keeps the first entry per key.
func PlanPrune(threads []model.Thread) PrunePlan {
	var plan PrunePlan

	remaining := make([]model.Thread, 0, len(threads))
	for _, t := range threads {
		if isEcho(t) {
			plan.Echoes = append(plan.Echoes, t)
			continue
		}
		remaining = append(remaining, t)
	}

	drop := make(map[int64]bool)

	var prev string
	tracking := false
	for _, t := range remaining {
		if !t.Type.IsMessage() {
			continue
		}
		body := strings.TrimSpace(t.Body)
		if tracking && body != "" && body == prev {
			plan.Duplicates = append(plan.Duplicates, t)
			drop[t.ID] = true
			continue
		}
		prev, tracking = body, true
	}

	seen := make(map[string]bool)
	for _, t := range remaining {
		if t.Type != model.ThreadLineItem {
			continue
		}
		// 0 stands for an unset action type, so unset line items in the same
		// minute collapse together and never with a real type
		key := fmt.Sprintf("%d|%s", t.ActionType, t.CreatedAt.UTC().Format(minuteLayout))
		if seen[key] {
			plan.LineItems = append(plan.LineItems, t)
			drop[t.ID] = true
			continue
		}
		seen[key] = true
	}

	for _, t := range remaining {
		if !drop[t.ID] {
			plan.Survivors = append(plan.Survivors, t)
		}
	}
	return plan
}

// isEcho reports whether a message thread is a gateway confirmation echo.
func isEcho(t model.Thread) bool {
	return t.Type.IsMessage() && classify.IsConfirmation(plaintext.Extract(t.Body))
}

// Pruner applies prune plans to stored conversations.
type Pruner struct {
	repo     Repository
	log      *zap.Logger
	progress Progress
}

// NewPruner creates a pruner. A nil logger or progress func is allowed.
func NewPruner(repo Repository, log *zap.Logger, progress Progress) *Pruner {
	if log == nil {
		log = zap.NewNop()
	}
	if progress == nil {
		progress = noProgress
	}
	return &Pruner{repo: repo, log: log, progress: progress}
}

// PruneConversation plans and applies pruning for one conversation, then
// recomputes its counters if anything changed.
func (p *Pruner) PruneConversation(ctx context.Context, id int64) (model.Counts, error) {
	var counts model.Counts

	threads, err := p.repo.Threads(ctx, id)
	if err != nil {
		return counts, fmt.Errorf("failed to load threads of conversation %d: %w", id, err)
	}
	model.SortTimeline(threads)
	plan := PlanPrune(threads)

	remove := func(t model.Thread, reason string) error {
		if _, err := p.repo.DeleteThread(ctx, t.ID); err != nil {
			return fmt.Errorf("failed to delete thread %d: %w", t.ID, err)
		}
		counts.AttachmentsDeleted += len(t.Attachments)
		p.progress("  Conv #%d: deleting %s thread #%d (%s)", id, reason, t.ID, preview(t))
		p.log.Debug("deleted thread",
			zap.Int64("conversation", id),
			zap.Int64("thread", t.ID),
			zap.String("reason", reason))
		return nil
	}

	for _, t := range plan.Echoes {
		if err := remove(t, "echo"); err != nil {
			return counts, err
		}
		counts.EchoesDeleted++
	}
	for _, t := range plan.Duplicates {
		if err := remove(t, "duplicate"); err != nil {
			return counts, err
		}
		counts.DuplicatesDeleted++
	}
	for _, t := range plan.LineItems {
		if err := remove(t, "duplicate action"); err != nil {
			return counts, err
		}
		counts.LineItemsDeleted++
	}

	stripped := 0
	for _, t := range plan.Survivors {
		if len(t.Attachments) == 0 {
			continue
		}
		if _, err := p.repo.DeleteAttachments(ctx, t.ID); err != nil {
			return counts, fmt.Errorf("failed to strip attachments of thread %d: %w", t.ID, err)
		}
		stripped += len(t.Attachments)
	}
	counts.AttachmentsDeleted += stripped

	if plan.Deleted() == 0 && stripped == 0 {
		return counts, nil
	}
	if err := recount(ctx, p.repo, id); err != nil {
		return counts, err
	}
	return counts, nil
}

// Prune runs PruneConversation over every conversation in convs.
func (p *Pruner) Prune(ctx context.Context, convs []model.Conversation) (model.Counts, error) {
	var total model.Counts
	for _, c := range convs {
		counts, err := p.PruneConversation(ctx, c.ID)
		total.Add(counts)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func preview(t model.Thread) string {
	if t.Type == model.ThreadLineItem {
		return fmt.Sprintf("action: %d", t.ActionType)
	}
	body := strings.Join(strings.Fields(t.Body), " ")
	if r := []rune(body); len(r) > 60 {
		body = string(r[:60])
	}
	return "body: " + body
}
