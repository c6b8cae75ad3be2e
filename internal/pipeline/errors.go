package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes surfaced by constraint violations.
const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// SourceUnavailableError indicates the legacy source store could not be
// reached or its lineage query failed. No partial output is produced.
type SourceUnavailableError struct {
	Err error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source store unavailable: %v", e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// LoadFailureError indicates the bulk load into the staging table failed.
// Staging is left in a partially loaded state; the caller must rerun the
// whole lineage unit rather than proceed to promotion.
type LoadFailureError struct {
	Err error
}

func (e *LoadFailureError) Error() string {
	return fmt.Sprintf("staging load failed: %v", e.Err)
}

func (e *LoadFailureError) Unwrap() error { return e.Err }

// DuplicateEdgeError indicates the filtered lineage set contained duplicate
// (parent_id, child_id) pairs, detected when the composite primary key is
// added after the bulk load. This points at a data-quality problem in the
// source lineage graph.
type DuplicateEdgeError struct {
	Err error
}

func (e *DuplicateEdgeError) Error() string {
	return fmt.Sprintf("duplicate lineage edges in filtered set: %v", e.Err)
}

func (e *DuplicateEdgeError) Unwrap() error { return e.Err }

// InvalidEnumError indicates an insert carried a value outside one of the
// fixed enumerations (authenticator type, parameter type) embedded in the
// catalog schema as check constraints.
type InvalidEnumError struct {
	Err error
}

func (e *InvalidEnumError) Error() string {
	return fmt.Sprintf("value outside its fixed enumeration: %v", e.Err)
}

func (e *InvalidEnumError) Unwrap() error { return e.Err }

// isUniqueViolation reports whether err is a unique/primary-key constraint
// violation. Checks the pgx error code first, then falls back to message
// matching for the file-based engines.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "PRIMARY KEY or UNIQUE constraint")
}

// isCheckViolation reports whether err is a check-constraint violation.
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgCheckViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "check constraint") ||
		strings.Contains(msg, "CHECK constraint")
}
