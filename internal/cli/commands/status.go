package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/catmigrate/internal/cli/config"
	"github.com/leapstack-labs/catmigrate/internal/state"
)

// StatusOptions holds options for the status command.
type StatusOptions struct {
	Limit int
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	opts := &StatusOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent migration runs",
		Long: `List recent unit runs recorded in the local run ledger, newest
first, with their row counts and outcome.`,
		Example: `  # Show the last 10 runs
  catmigrate status

  # Show more history
  catmigrate status --limit 50`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "Maximum number of runs to show")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.GetLogger(ctx)
	out := cmd.OutOrStdout()

	store, err := openLedger(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(opts.Limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		_, _ = fmt.Fprintln(out, "No recorded runs")
		return nil
	}

	_, _ = fmt.Fprintf(out, "%-36s  %-8s  %-9s  %-20s  %8s  %8s  %8s\n",
		"ID", "UNIT", "STATUS", "STARTED", "STAGED", "PROMOTED", "DROPPED")
	for _, run := range runs {
		_, _ = fmt.Fprintf(out, "%-36s  %-8s  %-9s  %-20s  %8d  %8d  %8d\n",
			run.ID, run.Unit, run.Status,
			run.StartedAt.Local().Format(time.DateTime),
			run.Staged, run.Promoted, run.Dropped)
		if run.Status == state.RunStatusFailed && run.Error != "" {
			_, _ = fmt.Fprintf(out, "    error: %s\n", run.Error)
		}
	}

	return nil
}
