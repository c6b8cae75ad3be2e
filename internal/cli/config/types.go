// Package config provides configuration management for the catmigrate CLI.
package config

import (
	"github.com/leapstack-labs/catmigrate/internal/adapter"
)

// Config holds all CLI configuration options.
type Config struct {
	// Source is the legacy store the pipeline reads from (read-only).
	Source adapter.Config `koanf:"source"`

	// Destination is the normalized store the pipeline writes to.
	Destination adapter.Config `koanf:"destination"`

	// AdminUser is the administrative identity recorded as owner and
	// creator of seeded catalog rows.
	AdminUser string `koanf:"admin_user"`

	// FallbackNamespace is the namespace created unconditionally during
	// seeding; it owns the catch-all dataset.
	FallbackNamespace string `koanf:"fallback_namespace"`

	// CatchallDataset is the dataset every migrated file is attached to.
	CatchallDataset string `koanf:"catchall_dataset"`

	// BatchSize is the number of edges per staging insert statement.
	BatchSize int `koanf:"batch_size"`

	// StatePath is the path of the local run-ledger database.
	StatePath string `koanf:"state_path"`

	Verbose bool `koanf:"verbose"`
}

// Default configuration values.
const (
	DefaultAdminUser         = "admin"
	DefaultFallbackNamespace = "default"
	DefaultCatchallDataset   = "all"
	DefaultBatchSize         = 500
	DefaultStateFile         = ".catmigrate/state.db"
	DefaultStoreType         = "postgres"
)
