// Package state provides the local run ledger: a small SQLite database
// recording every migration unit execution with its row counts. The ledger
// is observability only; unit outcome never depends on ledger writes.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// RunStatus describes the lifecycle of a unit run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// UnitRun is one recorded execution of a migration unit. The row-count
// fields are unit-specific: the lineage unit records staged/promoted/
// dropped edges, the catalog unit records created namespaces under Staged
// and attached files under Promoted.
type UnitRun struct {
	ID          string
	Unit        string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Staged      int64
	Promoted    int64
	Dropped     int64
	Error       string
}

// Store is the SQLite-backed run ledger.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewStore creates a ledger store instance. If logger is nil, a discard
// logger is used.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{logger: logger}
}

// Open opens the ledger database and runs pending migrations.
// Use ":memory:" for an in-memory ledger.
func (s *Store) Open(path string) error {
	// Enable foreign keys, and WAL mode for file-backed ledgers
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(wal)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open ledger database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping ledger database: %w", err)
	}

	s.db = db
	s.path = path

	if err := s.Migrate(); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Close closes the ledger database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateRun records the start of a unit run.
func (s *Store) CreateRun(unit string) (*UnitRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("ledger database not opened")
	}

	run := &UnitRun{
		ID:        uuid.New().String(),
		Unit:      unit,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	s.logger.Debug("recording unit run", slog.String("id", run.ID), slog.String("unit", unit))

	_, err := s.db.Exec(
		`INSERT INTO unit_runs (id, unit, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Unit, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	return run, nil
}

// CompleteRun marks a run as finished with its final status and counts.
func (s *Store) CompleteRun(id string, status RunStatus, staged, promoted, dropped int64, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("ledger database not opened")
	}

	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE unit_runs
			SET status = ?, completed_at = ?, staged = ?, promoted = ?, dropped = ?, error = ?
			WHERE id = ?`,
		status, now, staged, promoted, dropped, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(id string) (*UnitRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("ledger database not opened")
	}

	row := s.db.QueryRow(
		`SELECT id, unit, status, started_at, completed_at, staged, promoted, dropped, error
			FROM unit_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs up to the given limit.
func (s *Store) ListRuns(limit int) ([]*UnitRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("ledger database not opened")
	}

	rows, err := s.db.Query(
		`SELECT id, unit, status, started_at, completed_at, staged, promoted, dropped, error
			FROM unit_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*UnitRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*UnitRun, error) {
	var run UnitRun
	var completedAt sql.NullTime
	var errMsg sql.NullString

	if err := sc.Scan(
		&run.ID, &run.Unit, &run.Status, &run.StartedAt, &completedAt,
		&run.Staged, &run.Promoted, &run.Dropped, &errMsg,
	); err != nil {
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if errMsg.Valid {
		run.Error = errMsg.String
	}
	return &run, nil
}
