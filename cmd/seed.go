package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sneakpeak/pkg/db"
	"sneakpeak/pkg/logger"
	"sneakpeak/pkg/seed"
	"sneakpeak/pkg/sitemap"
)

func newSeedCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load projects, competitors and pages from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			deps, err := newCommandDeps()
			if err != nil {
				return err
			}
			defer func() { _ = deps.Logger.Sync() }()

			ctx := cmd.Context()
			store, err := openStore(ctx, deps.Config.Store, deps.Logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			if _, err := migrate(ctx, store); err != nil {
				return err
			}
			return seedFromFile(ctx, store, file, deps.Logger)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed YAML file")
	return cmd
}

func seedFromFile(ctx context.Context, store db.Store, path string, log logger.Logger) error {
	seeder, err := asSeeder(store)
	if err != nil {
		return err
	}
	file, err := seed.Load(path)
	if err != nil {
		return err
	}
	projects, err := file.Build(ctx, seed.WithSitemapLister(sitemap.NewParser(nil)))
	if err != nil {
		return err
	}
	if err := seeder.SeedProjects(ctx, projects); err != nil {
		return fmt.Errorf("seed projects: %w", err)
	}

	targets := 0
	for _, p := range projects {
		for _, c := range p.Competitors {
			targets += len(c.Targets)
		}
	}
	log.Info("Seeded projects",
		logger.String("file", path),
		logger.Int("projects", len(projects)),
		logger.Int("targets", targets),
	)
	return nil
}
