// Package reconcile merges duplicate gateway conversations and prunes the
// duplicate threads that gateway retries and merges leave behind.
package reconcile

import (
	"context"
	"time"

	"github.com/maxo-smsgw/smsgw/internal/model"
)

// Repository is the record store the reconciler works against. Every
// mutation must be atomic on its own; a run as a whole is not.
type Repository interface {
	// LiveConversations returns non-deleted conversations whose customer
	// address ends in "@domain", ordered by (CreatedAt, ID).
	LiveConversations(ctx context.Context, domain string) ([]model.Conversation, error)
	// Threads returns a conversation's timeline with attachments loaded.
	Threads(ctx context.Context, conversationID int64) ([]model.Thread, error)

	MoveThreads(ctx context.Context, from, to int64) (int, error)
	SetConversationState(ctx context.Context, id int64, state model.State) error
	UpdateConversationStats(ctx context.Context, id int64, threadsCount int, lastReplyAt *time.Time) error
	UpdateThreadBody(ctx context.Context, id int64, body string) error
	DeleteThread(ctx context.Context, id int64) (int, error)
	DeleteAttachments(ctx context.Context, threadID int64) (int, error)
}

// Progress receives one human-readable line per action taken.
type Progress func(format string, args ...interface{})

func noProgress(string, ...interface{}) {}

// DryRun wraps a repository so reads pass through and mutations are only
// counted. Mutation results report what the real store would have done.
type DryRun struct {
	Repository
}

// NewDryRun returns a read-only view over repo.
func NewDryRun(repo Repository) *DryRun {
	return &DryRun{Repository: repo}
}

func (d *DryRun) MoveThreads(ctx context.Context, from, to int64) (int, error) {
	threads, err := d.Repository.Threads(ctx, from)
	if err != nil {
		return 0, err
	}
	return len(threads), nil
}

func (d *DryRun) SetConversationState(context.Context, int64, model.State) error {
	return nil
}

func (d *DryRun) UpdateConversationStats(context.Context, int64, int, *time.Time) error {
	return nil
}

func (d *DryRun) UpdateThreadBody(context.Context, int64, string) error {
	return nil
}

func (d *DryRun) DeleteThread(context.Context, int64) (int, error) {
	return 0, nil
}

func (d *DryRun) DeleteAttachments(context.Context, int64) (int, error) {
	return 0, nil
}
