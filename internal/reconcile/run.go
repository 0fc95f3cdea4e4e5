package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/gateway"
	"github.com/maxo-smsgw/smsgw/internal/model"
	"github.com/maxo-smsgw/smsgw/internal/normalize"
)

// RunRecorder stores finished runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, run *model.Run) error
}

// Config configures a Runner. Zero values select defaults.
type Config struct {
	Matcher    *gateway.Matcher
	Normalizer BodyNormalizer
	DryRun     bool
	Recorder   RunRecorder
	Logger     *zap.Logger
	Progress   Progress
}

// Runner drives maintenance runs over a repository.
type Runner struct {
	repo     Repository
	matcher  *gateway.Matcher
	dryRun   bool
	recorder RunRecorder
	log      *zap.Logger
	progress Progress

	merger  *Merger
	pruner  *Pruner
	cleaner *Cleaner
}

// NewRunner creates a runner. With DryRun set, mutations are counted but
// never reach repo.
func NewRunner(repo Repository, cfg Config) *Runner {
	if cfg.Matcher == nil {
		cfg.Matcher = gateway.NewMatcher("")
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.New(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Progress == nil {
		cfg.Progress = noProgress
	}
	if cfg.DryRun {
		repo = NewDryRun(repo)
	}

	return &Runner{
		repo:     repo,
		matcher:  cfg.Matcher,
		dryRun:   cfg.DryRun,
		recorder: cfg.Recorder,
		log:      cfg.Logger,
		progress: cfg.Progress,
		merger:   NewMerger(repo, cfg.Logger, cfg.Progress),
		pruner:   NewPruner(repo, cfg.Logger, cfg.Progress),
		cleaner:  NewCleaner(repo, cfg.Normalizer, cfg.Logger, cfg.Progress),
	}
}

// Run performs a full maintenance run: merge, prune, clean, then prune again
// the conversations whose bodies changed so one run converges.
func (r *Runner) Run(ctx context.Context) (*model.Run, error) {
	return r.execute(ctx, model.RunFull, func(counts *model.Counts) error {
		if err := r.mergeAll(ctx, counts); err != nil {
			return err
		}

		live, err := r.liveConversations(ctx)
		if err != nil {
			return err
		}
		pruned, err := r.pruner.Prune(ctx, live)
		counts.Add(pruned)
		if err != nil {
			return err
		}

		cleaned, changed, err := r.cleaner.Clean(ctx, live)
		counts.Add(cleaned)
		if err != nil {
			return err
		}
		for _, id := range changed {
			again, err := r.pruner.PruneConversation(ctx, id)
			counts.Add(again)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Merge merges duplicate conversations and cleans the bodies of the
// survivors.
func (r *Runner) Merge(ctx context.Context) (*model.Run, error) {
	return r.execute(ctx, model.RunMerge, func(counts *model.Counts) error {
		if err := r.mergeAll(ctx, counts); err != nil {
			return err
		}
		live, err := r.liveConversations(ctx)
		if err != nil {
			return err
		}
		cleaned, _, err := r.cleaner.Clean(ctx, live)
		counts.Add(cleaned)
		return err
	})
}

// Dedup prunes duplicate threads without merging.
func (r *Runner) Dedup(ctx context.Context) (*model.Run, error) {
	return r.execute(ctx, model.RunDedup, func(counts *model.Counts) error {
		live, err := r.liveConversations(ctx)
		if err != nil {
			return err
		}
		pruned, err := r.pruner.Prune(ctx, live)
		counts.Add(pruned)
		return err
	})
}

// Execute starts the run of the given kind. An empty kind is a full run.
func (r *Runner) Execute(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	switch kind {
	case model.RunFull, "":
		return r.Run(ctx)
	case model.RunMerge:
		return r.Merge(ctx)
	case model.RunDedup:
		return r.Dedup(ctx)
	}
	return nil, fmt.Errorf("unknown run kind %q", kind)
}

func (r *Runner) execute(ctx context.Context, kind model.RunKind, body func(*model.Counts) error) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		StartedAt: time.Now().UTC(),
		DryRun:    r.dryRun,
	}
	log := r.log.With(zap.String("run", run.ID), zap.String("kind", string(kind)))
	log.Info("maintenance run started", zap.Bool("dry_run", r.dryRun))

	err := body(&run.Counts)
	run.FinishedAt = time.Now().UTC()
	if err != nil {
		run.Error = err.Error()
		log.Error("maintenance run failed", zap.Error(err))
	} else {
		log.Info("maintenance run finished",
			zap.Int("conversations_merged", run.ConversationsMerged),
			zap.Int("threads_cleaned", run.ThreadsCleaned),
			zap.Int("threads_deleted", run.ThreadsDeleted()),
			zap.Int("attachments_deleted", run.AttachmentsDeleted))
	}

	if r.recorder != nil {
		if recErr := r.recorder.RecordRun(ctx, run); recErr != nil {
			log.Warn("failed to record maintenance run", zap.Error(recErr))
		}
	}
	return run, err
}

func (r *Runner) mergeAll(ctx context.Context, counts *model.Counts) error {
	convs, err := r.repo.LiveConversations(ctx, r.matcher.Domain())
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	groups := GroupConversations(convs, r.matcher)
	r.progress("Found %d SMS conversations for %d correspondents", len(convs), len(groups))

	for _, g := range groups {
		merged, err := r.merger.MergeGroup(ctx, g)
		counts.Add(merged)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) liveConversations(ctx context.Context) ([]model.Conversation, error) {
	convs, err := r.repo.LiveConversations(ctx, r.matcher.Domain())
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	live := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if c.Live() && r.matcher.IsGateway(c.CustomerEmail) {
			live = append(live, c)
		}
	}
	return live, nil
}
