package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"sneakpeak/pkg/logger"
	"sneakpeak/pkg/metrics"
	"sneakpeak/pkg/scheduler"
	"sneakpeak/pkg/server"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the scrape trigger endpoint and run the optional schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := newCommandDeps()
			if err != nil {
				return err
			}
			defer func() { _ = deps.Logger.Sync() }()
			return serve(cmd.Context(), deps)
		},
	}
}

func serve(parent context.Context, deps *commandDeps) error {
	cfg, log := deps.Config, deps.Logger

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("Failed to close store", logger.Error(closeErr))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	orchestrator, err := newOrchestrator(cfg, store, newNotifier(cfg.Email, log, false), m, log)
	if err != nil {
		return err
	}

	if cfg.Server.CronSecret == "" {
		log.Warn("CRON_SECRET is not set, every scrape trigger will be rejected")
	}

	srv := server.NewServer(server.Config{
		Addr:       cfg.Server.Addr,
		CronSecret: cfg.Server.CronSecret,
		Gatherer:   reg,
		Debug:      Debug,
	}, orchestrator, log)

	if cfg.Server.Schedule != "" {
		sched, schedErr := scheduler.New(cfg.Server.Schedule, orchestrator, log)
		if schedErr != nil {
			return schedErr
		}
		sched.Start()
		defer sched.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
