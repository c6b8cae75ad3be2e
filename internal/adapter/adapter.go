// Package adapter provides database adapter interfaces and implementations
// for catmigrate's migration pipeline.
package adapter

import (
	"context"
	"database/sql"
)

// Config holds the configuration for connecting to a database.
type Config struct {
	// Type specifies the database type (e.g., "postgres", "duckdb", "sqlite")
	Type string `koanf:"type"`

	// Path is the file path for file-based databases (e.g., DuckDB, SQLite)
	// Use ":memory:" for in-memory databases
	Path string `koanf:"path"`

	// Host is the hostname for network-based databases
	Host string `koanf:"host"`

	// Port is the port number for network-based databases
	Port int `koanf:"port"`

	// Database is the database name
	Database string `koanf:"database"`

	// Username for authentication
	Username string `koanf:"username"`

	// Password for authentication
	Password string `koanf:"password"`

	// Schema is the default schema to use
	Schema string `koanf:"schema"`

	// Options contains additional driver-specific options
	Options map[string]string `koanf:"options"`
}

// Rows wraps sql.Rows to provide a consistent interface across adapters.
type Rows struct {
	*sql.Rows
}

// Adapter defines the interface that all database adapters must implement.
// The migration pipeline holds one adapter for the legacy source store and
// one for the destination store.
type Adapter interface {
	// Connect establishes a connection to the database using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the database connection and releases resources.
	Close() error

	// Exec executes a SQL statement that doesn't return rows
	// (e.g., INSERT, CREATE), with optional bind parameters.
	Exec(ctx context.Context, sql string, args ...any) error

	// Query executes a SQL statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (*Rows, error)

	// Begin starts a transaction. Every destination-side unit of the
	// pipeline runs inside a single transaction so a mid-unit failure
	// never leaves the schema partially rebuilt.
	Begin(ctx context.Context) (*Tx, error)

	// DialectName returns the SQL dialect name for this adapter
	// (e.g., "postgres", "duckdb").
	DialectName() string
}
