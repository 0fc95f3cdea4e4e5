package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maxo-smsgw/smsgw/internal/api"
	"github.com/maxo-smsgw/smsgw/internal/model"
	"github.com/maxo-smsgw/smsgw/internal/outbound"
	"github.com/maxo-smsgw/smsgw/internal/reconcile"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start an HTTP server exposing normalization and interception to the helpdesk:

  POST /api/normalize     {"body": "..."} -> normalized text and shape
  POST /api/subject       {"subject": "..."} -> subject without ticket reference
  POST /api/intercept     raw message in, message as it would be delivered out
  POST /api/runs          start a maintenance run in the background
  GET  /api/runs          recent maintenance runs
  GET  /api/conversations/{id}  one conversation and its threads
  GET  /healthz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.addr)")

	return cmd
}

func runServe(addr string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}

	st, err := openStore(context.Background(), cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	norm, err := newProcessor(cfg)
	if err != nil {
		return err
	}
	matcher := newMatcher(cfg)
	composer := outbound.NewComposer()
	composer.UseGateway(outbound.GatewayStages{Matcher: matcher, Normalizer: norm, Flags: st, Logger: log})

	runs := func(ctx context.Context, kind model.RunKind, dryRun bool) (*model.Run, error) {
		return reconcile.NewRunner(st, reconcile.Config{
			Matcher:    matcher,
			Normalizer: norm,
			DryRun:     dryRun,
			Recorder:   st,
			Logger:     log,
		}).Execute(ctx, kind)
	}

	server := api.NewServer(api.Options{
		Addr:      addr,
		Processor: norm,
		Interceptor: outbound.NewInterceptor(outbound.Options{
			Matcher:      matcher,
			Normalizer:   norm,
			MaxBodyBytes: cfg.Outbound.MaxBodyBytes,
			Logger:       log,
		}),
		Composer:      composer,
		Runs:          runs,
		History:       st,
		Conversations: st,
		RateLimit:     cfg.Server.RateLimit,
		RateWindow:    time.Duration(cfg.Server.RateWindowSec) * time.Second,
		Logger:        log,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn("shutdown did not complete", zap.Error(err))
		}
	}()

	fmt.Printf("Starting smsgw API at http://%s\n", addr)
	fmt.Println("Press Ctrl+C to stop")
	return server.Start()
}
