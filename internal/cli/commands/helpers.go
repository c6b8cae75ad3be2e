// Package commands implements the catmigrate subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/catmigrate/internal/adapter"
	"github.com/leapstack-labs/catmigrate/internal/cli/config"
	"github.com/leapstack-labs/catmigrate/internal/state"
)

// connectStore creates and connects an adapter for the given store config.
func connectStore(ctx context.Context, cfg adapter.Config) (adapter.Adapter, error) {
	a, err := adapter.NewAdapter(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// openLedger opens the run-ledger store. Ledger failures are reported to
// the caller, who should log and continue: the migration itself is the
// source of truth, the ledger is observability only.
func openLedger(cfg *config.Config, logger *slog.Logger) (*state.Store, error) {
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	return store, nil
}

// recordRunStart opens the ledger and records a running unit. Returns a
// nil store when the ledger is unavailable; the completion helper
// tolerates that.
func recordRunStart(cfg *config.Config, logger *slog.Logger, unit string) (*state.Store, *state.UnitRun) {
	store, err := openLedger(cfg, logger)
	if err != nil {
		logger.Warn("run ledger unavailable", slog.Any("error", err))
		return nil, nil
	}

	run, err := store.CreateRun(unit)
	if err != nil {
		logger.Warn("failed to record run start", slog.Any("error", err))
		_ = store.Close()
		return nil, nil
	}
	return store, run
}

// recordRunEnd finalizes the ledger entry for a unit run.
func recordRunEnd(store *state.Store, run *state.UnitRun, logger *slog.Logger, staged, promoted, dropped int64, runErr error) {
	if store == nil || run == nil {
		return
	}
	defer func() { _ = store.Close() }()

	status := state.RunStatusCompleted
	errMsg := ""
	if runErr != nil {
		status = state.RunStatusFailed
		errMsg = runErr.Error()
	}

	if err := store.CompleteRun(run.ID, status, staged, promoted, dropped, errMsg); err != nil {
		logger.Warn("failed to record run end", slog.Any("error", err))
	}
}

// storeLabel names a store for progress output without leaking credentials.
func storeLabel(cfg adapter.Config) string {
	switch {
	case cfg.Host != "" && cfg.Database != "":
		return fmt.Sprintf("%s://%s/%s", cfg.Type, cfg.Host, cfg.Database)
	case cfg.Database != "":
		return fmt.Sprintf("%s://%s", cfg.Type, cfg.Database)
	case cfg.Path != "":
		return fmt.Sprintf("%s://%s", cfg.Type, cfg.Path)
	default:
		return cfg.Type
	}
}
