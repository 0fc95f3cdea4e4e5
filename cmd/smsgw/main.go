package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/config"
	"github.com/maxo-smsgw/smsgw/internal/gateway"
	"github.com/maxo-smsgw/smsgw/internal/model"
	"github.com/maxo-smsgw/smsgw/internal/normalize"
	"github.com/maxo-smsgw/smsgw/internal/store"
)

var (
	cfgFile  string
	logLevel string
)

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		config.Cleanup()
		os.Exit(1)
	}
	config.Cleanup()
}

func newRootCmd() *cobra.Command {
	var dryRun bool

	rootCmd := &cobra.Command{
		Use:   "smsgw",
		Short: "smsgw - SMS gateway hygiene for a helpdesk mailbox",
		Long: `smsgw keeps helpdesk conversations with SMS correspondents readable.

Replies to Email2SMS gateway addresses are reduced to the text an SMS can
carry, and the duplicate conversations and threads the gateway leaves
behind are merged and pruned.

Run without a command to perform a full maintenance run.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaintenance(cmd, model.RunFull, dryRun)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.smsgw/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Count changes without writing them")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(maintenanceCmd(model.RunFull, "Merge, prune and clean gateway conversations",
		"Perform a full maintenance run: merge duplicate conversations per correspondent,\nprune duplicate threads, normalize bodies, then prune again."))
	rootCmd.AddCommand(maintenanceCmd(model.RunMerge, "Merge duplicate gateway conversations",
		"Merge every correspondent's conversations into the oldest one and normalize\nthe bodies of the survivors."))
	rootCmd.AddCommand(maintenanceCmd(model.RunDedup, "Delete duplicate threads",
		"Delete gateway echoes, consecutive duplicate messages and duplicated line items\nfrom every live gateway conversation."))
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(normalizeCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(serveCmd())

	return rootCmd
}

// loadConfig reads and validates the configuration and builds the logger.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	log, err := config.InitLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*store.Store, error) {
	st, err := store.Open(ctx, store.Options{
		Driver:  cfg.Store.Driver,
		DSN:     cfg.Store.DSN,
		Migrate: cfg.Store.Migrate,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

// processor is what every command needs from a normalizer.
type processor interface {
	Process(raw string) normalize.Result
	Normalize(raw string) string
	StripTicketReference(subject string) string
}

func newProcessor(cfg *config.Config) (processor, error) {
	n := normalize.New(nil)
	if cfg.Outbound.CacheSize == 0 {
		return n, nil
	}
	return normalize.NewCached(n, cfg.Outbound.CacheSize)
}

func newMatcher(cfg *config.Config) *gateway.Matcher {
	return gateway.NewMatcher(cfg.Gateway.Domain)
}
