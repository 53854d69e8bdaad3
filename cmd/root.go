// Package cmd implements the sneakpeak command-line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sneakpeak/pkg/config"
	"sneakpeak/pkg/logger"
)

// Debug enables debug logging and gin debug mode for all commands.
var Debug bool

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "sneakpeak",
		Short:         "Competitor page change detection",
		Long:          `sneakpeak captures competitor pages, diffs them against the previous capture and emails a digest of what changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(),
		newRunCommand(),
		newMigrateCommand(),
		newSeedCommand(),
		newReplicateCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// commandDeps holds what every subcommand needs.
type commandDeps struct {
	Config *config.Config
	Logger logger.Logger
}

func newCommandDeps() (*commandDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if Debug {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Development: Debug})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return &commandDeps{Config: cfg, Logger: log}, nil
}
