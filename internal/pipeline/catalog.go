package pipeline

import (
	"context"
	"log/slog"

	"github.com/leapstack-labs/catmigrate/internal/adapter"
)

// CatalogResult reports what the catalog unit did. Counts are -1 when
// the destination driver cannot report affected rows.
type CatalogResult struct {
	NamespacesCreated int64
	FilesAttached     int64
}

// Catalog rebuilds the destination catalog tables and seeds the derived
// rows. The destination file registry and the users/roles/
// parameter_categories reference tables are pre-existing and read-only
// to this unit.
type Catalog struct {
	Dest adapter.Adapter

	// AdminUser is the administrative identity recorded as owner and
	// creator of every seeded row. It must exist in the destination's
	// user and role registries.
	AdminUser string

	// FallbackNamespace is created unconditionally and owns the
	// catch-all dataset.
	FallbackNamespace string

	// CatchallDataset is the dataset every known file is attached to.
	CatchallDataset string

	Logger *slog.Logger
}

// NewCatalog creates a catalog unit. If logger is nil, a discard logger
// is used.
func NewCatalog(dest adapter.Adapter, admin, fallbackNS, catchall string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		Dest:              dest,
		AdminUser:         admin,
		FallbackNamespace: fallbackNS,
		CatchallDataset:   catchall,
		Logger:            logger,
	}
}

// catalogDrops removes any previous incarnation of the catalog tables.
// Ordered so that referencing tables go before referenced ones.
var catalogDrops = []string{
	`drop table if exists files_datasets`,
	`drop table if exists queries`,
	`drop table if exists datasets`,
	`drop table if exists parameter_definitions`,
	`drop table if exists authenticators`,
	`drop table if exists namespaces`,
}

// catalogCreates builds the catalog tables. Namespaces must precede
// datasets (foreign key); datasets is self-referential for its parent
// link and tolerates null parents. The enumerated columns carry inline
// check constraints.
var catalogCreates = []string{
	`create table authenticators (
		username text not null references users(username) on delete cascade,
		type text not null
			constraint authenticator_types
			check (type in ('x509', 'password', 'ssh')),
		secrets text[],
		primary key (username, type)
	)`,
	`create table namespaces (
		name text primary key
			check (name != ''),
		owner_role text references roles(name),
		creator text references users(username),
		created_timestamp timestamp with time zone default current_timestamp
	)`,
	`create table datasets (
		namespace text not null references namespaces(name),
		name text not null,
		parent_namespace text,
		parent_name text,
		frozen boolean default false,
		monotonic boolean default false,
		metadata jsonb default '{}',
		required_metadata text[],
		creator text references users(username),
		created_timestamp timestamp with time zone default current_timestamp,
		expiration timestamp with time zone,
		description text,
		primary key (namespace, name),
		foreign key (parent_namespace, parent_name)
			references datasets(namespace, name)
	)`,
	`create table files_datasets (
		file_id text not null references files(id),
		dataset_namespace text not null,
		dataset_name text not null,
		foreign key (dataset_namespace, dataset_name)
			references datasets(namespace, name)
	)`,
	`create table queries (
		namespace text not null references namespaces(name),
		name text not null,
		parameters text[],
		source text,
		creator text references users(username),
		created_timestamp timestamp with time zone default current_timestamp,
		primary key (namespace, name)
	)`,
	`create table parameter_definitions (
		category text not null references parameter_categories(path),
		name text not null,
		type text not null
			constraint parameter_types
			check (type in ('int', 'double', 'text', 'boolean',
				'int[]', 'double[]', 'text[]', 'boolean[]')),
		int_values bigint[],
		int_min bigint,
		int_max bigint,
		double_values double precision[],
		double_min double precision,
		double_max double precision,
		text_values text[],
		text_pattern text,
		bool_values boolean[],
		creator text references users(username),
		created_timestamp timestamp with time zone default current_timestamp,
		primary key (category, name)
	)`,
}

// RebuildSchema drops and recreates the catalog tables. This is a
// destructive rebuild: data committed against a previous incarnation of
// these tables is lost on rerun.
func (c *Catalog) RebuildSchema(ctx context.Context, tx *adapter.Tx) error {
	for _, stmt := range catalogDrops {
		if err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	for _, stmt := range catalogCreates {
		if err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	c.Logger.Debug("rebuilt catalog schema")
	return nil
}

// seedNamespacesSQL derives one namespace row per distinct namespace value
// observed in the migrated file registry.
const seedNamespacesSQL = `
	insert into namespaces(name, owner_role, creator)
		select distinct namespace, $1, $1
			from files
			where namespace is not null and namespace != ''
`

// seedFallbackSQL inserts the fixed fallback namespace. The legacy file
// data may already contain a namespace of the same name, so the insert
// tolerates the conflict.
const seedFallbackSQL = `
	insert into namespaces(name, owner_role, creator)
		values ($1, $2, $2)
		on conflict (name) do nothing
`

const seedCatchallSQL = `
	insert into datasets(namespace, name, creator, description)
		values ($1, $2, $3, 'All files carried over from the legacy catalog')
`

// attachFilesSQL gives every known file a membership row in the catch-all
// dataset. files_datasets carries no uniqueness constraint; the membership
// is recreated per run.
const attachFilesSQL = `
	insert into files_datasets(file_id, dataset_namespace, dataset_name)
		select id, $1, $2 from files
`

// Seed populates the rebuilt catalog: namespaces derived from file data,
// the fallback namespace, the catch-all dataset, and one membership row
// per file. Any step failing aborts the unit; no compensating rollback
// beyond the enclosing transaction.
func (c *Catalog) Seed(ctx context.Context, tx *adapter.Tx) (*CatalogResult, error) {
	namespaces, err := tx.ExecRows(ctx, seedNamespacesSQL, c.AdminUser)
	if err != nil {
		return nil, classifyCatalogErr(err)
	}

	if err := tx.Exec(ctx, seedFallbackSQL, c.FallbackNamespace, c.AdminUser); err != nil {
		return nil, classifyCatalogErr(err)
	}

	if err := tx.Exec(ctx, seedCatchallSQL, c.FallbackNamespace, c.CatchallDataset, c.AdminUser); err != nil {
		return nil, classifyCatalogErr(err)
	}

	attached, err := tx.ExecRows(ctx, attachFilesSQL, c.FallbackNamespace, c.CatchallDataset)
	if err != nil {
		return nil, classifyCatalogErr(err)
	}

	c.Logger.Debug("seeded catalog",
		slog.Int64("namespaces", namespaces), slog.Int64("files_attached", attached))
	return &CatalogResult{NamespacesCreated: namespaces, FilesAttached: attached}, nil
}

// classifyCatalogErr maps destination constraint violations onto the
// pipeline error taxonomy. Everything else passes through with the
// store's native error text.
func classifyCatalogErr(err error) error {
	switch {
	case isCheckViolation(err):
		return &InvalidEnumError{Err: err}
	case isUniqueViolation(err):
		return &DuplicateEdgeError{Err: err}
	default:
		return err
	}
}

// Run executes the whole catalog unit inside one destination transaction:
// destructive schema rebuild, then seeding.
func (c *Catalog) Run(ctx context.Context) (*CatalogResult, error) {
	tx, err := c.Dest.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := c.RebuildSchema(ctx, tx); err != nil {
		return nil, err
	}
	result, err := c.Seed(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}
