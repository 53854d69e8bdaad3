package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"sneakpeak/pkg/logger"
)

type runOptions struct {
	dryRun   bool
	seedFile string
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one detection cycle and print its result",
		Long: `Run one detection cycle. Per-target failures are reported in the result;
the command only fails when the targets cannot be enumerated.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := newCommandDeps()
			if err != nil {
				return err
			}
			defer func() { _ = deps.Logger.Sync() }()
			return runOnce(cmd.Context(), deps, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log the digest instead of emailing it")
	cmd.Flags().StringVarP(&opts.seedFile, "seed", "s", "", "seed file loaded before the run (useful with STORE_DRIVER=memory)")
	return cmd
}

func runOnce(ctx context.Context, deps *commandDeps, opts *runOptions, out io.Writer) error {
	cfg, log := deps.Config, deps.Logger

	store, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Error("Failed to close store", logger.Error(closeErr))
		}
	}()

	if opts.seedFile != "" {
		if _, err := migrate(ctx, store); err != nil {
			return err
		}
		if err := seedFromFile(ctx, store, opts.seedFile, log); err != nil {
			return err
		}
	}

	orchestrator, err := newOrchestrator(cfg, store, newNotifier(cfg.Email, log, opts.dryRun), nil, log)
	if err != nil {
		return err
	}

	result, err := orchestrator.RunDetectionCycle(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
