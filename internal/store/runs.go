package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/maxo-smsgw/smsgw/internal/model"
)

type runRow struct {
	ID                   string `db:"id"`
	Kind                 string `db:"kind"`
	StartedAt            int64  `db:"started_at"`
	FinishedAt           int64  `db:"finished_at"`
	DryRun               int    `db:"dry_run"`
	Error                string `db:"error"`
	ConversationsMerged  int    `db:"conversations_merged"`
	ConversationsDeleted int    `db:"conversations_deleted"`
	ThreadsMoved         int    `db:"threads_moved"`
	ThreadsCleaned       int    `db:"threads_cleaned"`
	EchoesDeleted        int    `db:"echoes_deleted"`
	DuplicatesDeleted    int    `db:"duplicates_deleted"`
	LineItemsDeleted     int    `db:"lineitems_deleted"`
	AttachmentsDeleted   int    `db:"attachments_deleted"`
}

// RecordRun stores a finished maintenance run. A missing ID is generated.
func (s *Store) RecordRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO maintenance_runs (
			id, kind, started_at, finished_at, dry_run, error,
			conversations_merged, conversations_deleted, threads_moved, threads_cleaned,
			echoes_deleted, duplicates_deleted, lineitems_deleted, attachments_deleted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, string(run.Kind), toMillis(run.StartedAt), toMillis(run.FinishedAt),
		boolToInt(run.DryRun), run.Error,
		run.ConversationsMerged, run.ConversationsDeleted, run.ThreadsMoved, run.ThreadsCleaned,
		run.EchoesDeleted, run.DuplicatesDeleted, run.LineItemsDeleted, run.AttachmentsDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to record maintenance run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, kind, started_at, finished_at, dry_run, error,
			conversations_merged, conversations_deleted, threads_moved, threads_cleaned,
			echoes_deleted, duplicates_deleted, lineitems_deleted, attachments_deleted
		FROM maintenance_runs
		ORDER BY started_at DESC, id
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query maintenance runs: %w", err)
	}

	runs := make([]model.Run, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, model.Run{
			ID:         r.ID,
			Kind:       model.RunKind(r.Kind),
			StartedAt:  fromMillis(r.StartedAt),
			FinishedAt: fromMillis(r.FinishedAt),
			DryRun:     r.DryRun != 0,
			Error:      r.Error,
			Counts: model.Counts{
				ConversationsMerged:  r.ConversationsMerged,
				ConversationsDeleted: r.ConversationsDeleted,
				ThreadsMoved:         r.ThreadsMoved,
				ThreadsCleaned:       r.ThreadsCleaned,
				EchoesDeleted:        r.EchoesDeleted,
				DuplicatesDeleted:    r.DuplicatesDeleted,
				LineItemsDeleted:     r.LineItemsDeleted,
				AttachmentsDeleted:   r.AttachmentsDeleted,
			},
		})
	}
	return runs, nil
}
