package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/catmigrate/internal/cli/config"
	"github.com/leapstack-labs/catmigrate/internal/pipeline"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check destination integrity after migration",
		Long: `Run integrity checks against the destination store:

  - no lineage edge references a file missing from the file registry
  - every file belongs to at least one dataset

Exits non-zero when any check finds violations.`,
		Example: `  catmigrate verify`,
		RunE: runVerify,
	}
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	out := cmd.OutOrStdout()

	dest, err := connectStore(ctx, cfg.Destination)
	if err != nil {
		return fmt.Errorf("failed to connect to destination store: %w", err)
	}
	defer func() { _ = dest.Close() }()

	result, err := pipeline.Verify(ctx, dest)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	if result.OK() {
		_, _ = fmt.Fprintln(out, "OK: no dangling edges, no unattached files")
		return nil
	}

	if result.DanglingEdges > 0 {
		_, _ = fmt.Fprintf(out, "FAIL: %d lineage edges reference unknown files\n", result.DanglingEdges)
	}
	if result.UnattachedFiles > 0 {
		_, _ = fmt.Fprintf(out, "FAIL: %d files belong to no dataset\n", result.UnattachedFiles)
	}
	return fmt.Errorf("integrity checks failed")
}
