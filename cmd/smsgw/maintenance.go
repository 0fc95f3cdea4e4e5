package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/model"
	"github.com/maxo-smsgw/smsgw/internal/normalize"
	"github.com/maxo-smsgw/smsgw/internal/reconcile"
	"github.com/maxo-smsgw/smsgw/internal/report"
	"github.com/maxo-smsgw/smsgw/internal/store"
)

func maintenanceCmd(kind model.RunKind, short, long string) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   string(kind),
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaintenance(cmd, kind, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count changes without writing them")

	return cmd
}

func runMaintenance(cmd *cobra.Command, kind model.RunKind, dryRun bool) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	norm, err := newProcessor(cfg)
	if err != nil {
		return err
	}
	engine, err := report.NewEngine(true)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dryRun {
		fmt.Fprintln(out, "🔍 DRY RUN MODE - nothing will be written")
		fmt.Fprintln(out)
	}
	fmt.Fprintf(out, "🧹 Starting %s on @%s conversations...\n", kind, cfg.Gateway.Domain)

	runner := reconcile.NewRunner(st, reconcile.Config{
		Matcher:    newMatcher(cfg),
		Normalizer: norm,
		DryRun:     dryRun,
		Recorder:   st,
		Logger:     log,
		Progress: func(format string, args ...interface{}) {
			fmt.Fprintf(out, "  "+format+"\n", args...)
		},
	})

	run, runErr := runner.Execute(ctx, kind)
	if c, ok := norm.(*normalize.Cached); ok {
		log.Debug("normalizer cache", zap.Int("entries", c.Len()))
	}
	if run != nil {
		fmt.Fprintln(out)
		if err := engine.Summary(out, run); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("%s failed: %w", kind, runErr)
	}
	return nil
}

func statusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent maintenance runs",
		Long:  "Display the most recent maintenance runs recorded in the store and what each changed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Number of recent runs to show")

	return cmd
}

func runStatus(cmd *cobra.Command, limit int) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.RecentRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	engine, err := report.NewEngine(true)
	if err != nil {
		return err
	}
	return engine.Status(cmd.OutOrStdout(), runs)
}

func importCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load conversations from a YAML fixture",
		Long: `Insert the conversations, threads and attachments of a YAML fixture into the
store, typically to reproduce production data locally before a maintenance run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, file)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Fixture file to import (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(cmd *cobra.Command, file string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()

	fixture, err := store.ParseFixture(f)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	convs, threads, err := st.Import(ctx, fixture)
	if err != nil {
		return fmt.Errorf("import stopped after %d conversations: %w", convs, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Imported %d conversations and %d threads from %s\n", convs, threads, file)
	return nil
}
