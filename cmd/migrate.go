package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sneakpeak/pkg/config"
	"sneakpeak/pkg/logger"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := newCommandDeps()
			if err != nil {
				return err
			}
			defer func() { _ = deps.Logger.Sync() }()
			return runMigrate(cmd.Context(), deps.Config.Store, deps.Logger)
		},
	}
}

func runMigrate(ctx context.Context, cfg config.StoreConfig, log logger.Logger) error {
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	applied, err := migrate(ctx, store)
	if err != nil {
		return err
	}
	if !applied {
		log.Info("Store has no schema to migrate", logger.String("driver", cfg.Driver))
		return nil
	}
	log.Info("Schema is up to date", logger.String("driver", cfg.Driver))
	return nil
}
