package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/model"
)

// Merger folds duplicate conversations into their primary.
type Merger struct {
	repo     Repository
	log      *zap.Logger
	progress Progress
}

// NewMerger creates a merger. A nil logger or progress func is allowed.
func NewMerger(repo Repository, log *zap.Logger, progress Progress) *Merger {
	if log == nil {
		log = zap.NewNop()
	}
	if progress == nil {
		progress = noProgress
	}
	return &Merger{repo: repo, log: log, progress: progress}
}

// MergeGroup re-parents every duplicate's threads onto the primary, soft
// deletes the duplicates and recomputes the primary's counters. Singleton
// groups are left alone.
func (m *Merger) MergeGroup(ctx context.Context, g Group) (model.Counts, error) {
	var counts model.Counts
	if g.Singleton() {
		return counts, nil
	}

	m.progress("%s: %d conversation(s)", g.Email, len(g.Duplicates)+1)
	for _, dup := range g.Duplicates {
		moved, err := m.repo.MoveThreads(ctx, dup.ID, g.Primary.ID)
		if err != nil {
			return counts, fmt.Errorf("failed to merge conversation %d: %w", dup.ID, err)
		}
		if err := m.repo.SetConversationState(ctx, dup.ID, model.StateDeleted); err != nil {
			return counts, fmt.Errorf("failed to delete conversation %d: %w", dup.ID, err)
		}

		counts.ThreadsMoved += moved
		counts.ConversationsMerged++
		counts.ConversationsDeleted++
		m.progress("  merged #%d (%d threads) into #%d", dup.ID, moved, g.Primary.ID)
		m.log.Debug("merged conversation",
			zap.Int64("duplicate", dup.ID),
			zap.Int64("primary", g.Primary.ID),
			zap.Int("threads", moved))
	}

	if err := recount(ctx, m.repo, g.Primary.ID); err != nil {
		return counts, err
	}
	return counts, nil
}

// recount writes a conversation's live thread count and latest thread time.
func recount(ctx context.Context, repo Repository, id int64) error {
	threads, err := repo.Threads(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load threads of conversation %d: %w", id, err)
	}

	var last *time.Time
	for i := range threads {
		at := threads[i].CreatedAt
		if last == nil || at.After(*last) {
			last = &at
		}
	}
	if err := repo.UpdateConversationStats(ctx, id, len(threads), last); err != nil {
		return fmt.Errorf("failed to update counters of conversation %d: %w", id, err)
	}
	return nil
}
