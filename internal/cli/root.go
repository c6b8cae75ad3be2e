// Package cli provides the command-line interface for catmigrate.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/catmigrate/internal/cli/commands"
	"github.com/leapstack-labs/catmigrate/internal/cli/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "catmigrate",
		Short: "catmigrate - Metadata Catalog Migration",
		Long: `catmigrate moves a legacy metadata catalog into a normalized destination
database: the file-lineage graph and the catalog tables (namespaces,
datasets, queries, parameter definitions, authenticators).

It runs two independent units:

  lineage   extract lineage edges from the legacy store, stage them in the
            destination, and promote the edges whose files are known there
  catalog   destructively rebuild the catalog schema and seed the derived
            rows (namespaces, catch-all dataset, file memberships)

Both units are idempotent for their destructive-rebuild portion and safe
to rerun against an unchanged source.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: level,
			}))

			ctx := config.WithConfig(cmd.Context(), cfg)
			ctx = config.WithLogger(ctx, logger)
			cmd.SetContext(ctx)

			if cfg.Verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", configFile)
				}
			}

			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Metadata Catalog Migration
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./catmigrate.yaml)")
	rootCmd.PersistentFlags().String("state", "", "Path to the run-ledger database")
	rootCmd.PersistentFlags().String("admin-user", "", "Administrative identity for seeded rows")
	rootCmd.PersistentFlags().String("fallback-namespace", "", "Namespace owning the catch-all dataset")
	rootCmd.PersistentFlags().String("catchall-dataset", "", "Name of the catch-all dataset")
	rootCmd.PersistentFlags().Int("batch-size", 0, "Edges per staging insert statement")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewLineageCommand())
	rootCmd.AddCommand(commands.NewCatalogCommand())
	rootCmd.AddCommand(commands.NewVerifyCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
