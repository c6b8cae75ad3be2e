package adapter

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx wraps a database transaction with the same Exec/Query surface as
// Adapter. Commit and Rollback end the transaction; Rollback after a
// successful Commit is a no-op, so callers can defer it unconditionally.
type Tx struct {
	tx   *sql.Tx
	done bool
}

// Exec executes a SQL statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, sqlStr string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// ExecRows executes a SQL statement inside the transaction and returns
// the number of affected rows, or -1 when the driver cannot report it.
// The pipeline uses this to report how many staged edges survived
// referential filtering.
func (t *Tx) ExecRows(ctx context.Context, sqlStr string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to execute SQL: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Not every driver reports affected rows for insert-select.
		// -1 marks the count unknown rather than pretending nothing
		// was written.
		return -1, nil
	}
	return n, nil
}

// Query executes a SQL statement that returns rows inside the transaction.
func (t *Tx) Query(ctx context.Context, sqlStr string, args ...any) (*Rows, error) {
	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := t.tx.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &Rows{Rows: rows}, nil
}

// Commit commits the transaction. A failed commit leaves the transaction
// not-done so a deferred Rollback still reaches the underlying handle.
func (t *Tx) Commit() error {
	if t.done {
		return nil
	}
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.done = true
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}
