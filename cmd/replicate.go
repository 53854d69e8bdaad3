package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"sneakpeak/pkg/config"
	"sneakpeak/pkg/logger"
	"sneakpeak/pkg/replication"
)

func newReplicateCommand() *cobra.Command {
	var (
		from      string
		batchSize int
		workers   int
	)
	cmd := &cobra.Command{
		Use:   "replicate",
		Short: "Copy projects, competitors and pages from another store into the configured one",
		Long: `Copy the monitored target tree from the --from backend into STORE_DRIVER.
Both backends read their connection settings from the environment.
Snapshots and changes are not copied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := newCommandDeps()
			if err != nil {
				return err
			}
			defer func() { _ = deps.Logger.Sync() }()

			if from == deps.Config.Store.Driver {
				return fmt.Errorf("source and destination are both %q", from)
			}
			srcCfg := deps.Config.Store
			srcCfg.Driver = from

			ctx := cmd.Context()
			src, err := openStore(ctx, srcCfg, deps.Logger)
			if err != nil {
				return fmt.Errorf("open source store: %w", err)
			}
			defer src.Close()

			dst, err := openStore(ctx, deps.Config.Store, deps.Logger)
			if err != nil {
				return fmt.Errorf("open destination store: %w", err)
			}
			defer dst.Close()

			if _, err := migrate(ctx, dst); err != nil {
				return err
			}
			dstSeeder, ok := dst.(replication.Destination)
			if !ok {
				return fmt.Errorf("store %T cannot receive projects", dst)
			}

			r, err := replication.NewReplicator(replication.Config{
				Source:      src,
				Destination: dstSeeder,
				Logger:      deps.Logger,
				BatchSize:   batchSize,
				Workers:     workers,
			})
			if err != nil {
				return err
			}
			res, err := r.Replicate(ctx)
			if err != nil {
				return err
			}
			deps.Logger.Info("Replicated targets",
				logger.String("from", from),
				logger.String("to", deps.Config.Store.Driver),
				logger.Int("projects", res.Projects),
				logger.Int("inserted_targets", res.Inserted),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", config.DriverMongo, "source store driver")
	cmd.Flags().IntVar(&batchSize, "batch-size", 20, "projects per write")
	cmd.Flags().IntVar(&workers, "workers", 1, "concurrent batch writes")
	return cmd
}
