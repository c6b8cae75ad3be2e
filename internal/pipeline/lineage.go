// Package pipeline implements the two migration units that move a legacy
// metadata catalog into the normalized destination schema: the lineage unit
// (extract, stage, promote) and the catalog unit (rebuild, seed).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/catmigrate/internal/adapter"
)

// Edge is one directed file-lineage pair in the interchange dataset.
// It exists only between extraction from the source store and the bulk
// load into the destination staging table.
type Edge struct {
	ParentID string
	ChildID  string
}

// LineageResult reports what the lineage unit did. EdgesDropped is the
// number of staged edges whose endpoints were not present in the
// destination file registry; dropping them is a filtering policy, not an
// error, but the count is surfaced so operators can diff if they care.
// EdgesPromoted and EdgesDropped are -1 when the destination driver
// cannot report affected rows.
type LineageResult struct {
	EdgesExtracted int
	EdgesStaged    int
	EdgesPromoted  int64
	EdgesDropped   int64
}

// DefaultBatchSize is the number of edges per staging insert statement.
const DefaultBatchSize = 500

// Lineage migrates the file-lineage graph. Source is the legacy store
// (read-only), Dest the destination store (read-write). The source
// connection is released as soon as extraction completes, before any
// destination statement runs.
type Lineage struct {
	Source    adapter.Adapter
	Dest      adapter.Adapter
	BatchSize int
	Logger    *slog.Logger
}

// NewLineage creates a lineage unit with default batch size.
// If logger is nil, a discard logger is used.
func NewLineage(source, dest adapter.Adapter, logger *slog.Logger) *Lineage {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Lineage{
		Source:    source,
		Dest:      dest,
		BatchSize: DefaultBatchSize,
		Logger:    logger,
	}
}

// extractEdgesSQL selects distinct parent/child pairs whose files carry no
// retirement marker on either end of the edge. Edges touching a retired
// file never reach the interchange dataset.
const extractEdgesSQL = `
	select distinct pc.parent_id, pc.child_id
		from parent_child pc
		inner join files fp on fp.id = pc.parent_id
		inner join files fc on fc.id = pc.child_id
		where fp.retired is not true
			and fc.retired is not true
`

// ExtractEdges reads the deduplicated lineage graph from the source store.
// Any failure is reported as SourceUnavailableError and no partial output
// is returned.
func (l *Lineage) ExtractEdges(ctx context.Context) ([]Edge, error) {
	rows, err := l.Source.Query(ctx, extractEdgesSQL)
	if err != nil {
		return nil, &SourceUnavailableError{Err: err}
	}
	defer func() { _ = rows.Close() }()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ParentID, &e.ChildID); err != nil {
			return nil, &SourceUnavailableError{Err: err}
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &SourceUnavailableError{Err: err}
	}

	l.Logger.Debug("extracted lineage edges", slog.Int("count", len(edges)))
	return edges, nil
}

// lineageDDL rebuilds the destination lineage table and a staging table of
// identical shape. Neither carries a constraint yet: the composite primary
// key is added after the bulk load (load-then-constrain).
var lineageDDL = []string{
	`drop table if exists parent_child_staging`,
	`drop table if exists parent_child`,
	`create table parent_child (
		parent_id text,
		child_id text
	)`,
	`create table parent_child_staging (
		parent_id text,
		child_id text
	)`,
}

// RebuildLineageTables drops and recreates the destination lineage table
// and its staging twin. Idempotent, but destroys previously loaded rows.
func (l *Lineage) RebuildLineageTables(ctx context.Context, tx *adapter.Tx) error {
	for _, stmt := range lineageDDL {
		if err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// StageEdges bulk-loads the interchange dataset into the staging table
// verbatim, in batches of parameterized inserts. No filtering happens at
// this stage. A failed batch is reported as LoadFailureError and leaves
// staging partially loaded.
func (l *Lineage) StageEdges(ctx context.Context, tx *adapter.Tx, edges []Edge) error {
	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for start := 0; start < len(edges); start += batchSize {
		end := start + batchSize
		if end > len(edges) {
			end = len(edges)
		}
		batch := edges[start:end]

		var sb strings.Builder
		sb.WriteString("insert into parent_child_staging(parent_id, child_id) values ")
		args := make([]any, 0, len(batch)*2)
		for i, e := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "($%d, $%d)", len(args)+1, len(args)+2)
			args = append(args, e.ParentID, e.ChildID)
		}

		if err := tx.Exec(ctx, sb.String(), args...); err != nil {
			return &LoadFailureError{Err: err}
		}
	}

	l.Logger.Debug("staged lineage edges", slog.Int("count", len(edges)))
	return nil
}

// promoteEdgesSQL promotes staging rows whose both endpoints exist in the
// destination file registry. Rows referencing unknown or not-yet-migrated
// files are silently dropped.
const promoteEdgesSQL = `
	insert into parent_child(parent_id, child_id)
		select s.parent_id, s.child_id
			from parent_child_staging s
			inner join files fp on fp.id = s.parent_id
			inner join files fc on fc.id = s.child_id
`

const lineagePrimaryKeySQL = `
	alter table parent_child add primary key (parent_id, child_id)
`

// PromoteEdges runs the referential filter, adds the composite primary key,
// and drops the staging table. Returns the promoted and dropped counts.
// A unique violation while adding the key is reported as DuplicateEdgeError.
func (l *Lineage) PromoteEdges(ctx context.Context, tx *adapter.Tx, staged int) (promoted, dropped int64, err error) {
	promoted, err = tx.ExecRows(ctx, promoteEdgesSQL)
	if err != nil {
		return 0, 0, err
	}
	if promoted >= 0 {
		dropped = int64(staged) - promoted
	} else {
		// Affected-row count unavailable; leave both counts unknown
		// rather than reporting every staged edge as dropped.
		dropped = -1
		l.Logger.Warn("destination driver does not report affected rows; promoted/dropped counts unknown")
	}

	if err := tx.Exec(ctx, lineagePrimaryKeySQL); err != nil {
		if isUniqueViolation(err) {
			return 0, 0, &DuplicateEdgeError{Err: err}
		}
		return 0, 0, err
	}

	if err := tx.Exec(ctx, `drop table parent_child_staging`); err != nil {
		return 0, 0, err
	}

	l.Logger.Debug("promoted lineage edges",
		slog.Int64("promoted", promoted), slog.Int64("dropped", dropped))
	return promoted, dropped, nil
}

// Run executes the whole lineage unit: extract from the source, then
// rebuild, stage, and promote on the destination inside one transaction.
// The source connection is closed before any destination work starts.
func (l *Lineage) Run(ctx context.Context) (*LineageResult, error) {
	edges, err := l.ExtractEdges(ctx)
	if err != nil {
		return nil, err
	}

	// The interchange dataset decouples extraction from loading.
	if err := l.Source.Close(); err != nil {
		l.Logger.Warn("failed to close source connection", slog.Any("error", err))
	}

	tx, err := l.Dest.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := l.RebuildLineageTables(ctx, tx); err != nil {
		return nil, err
	}
	if err := l.StageEdges(ctx, tx, edges); err != nil {
		return nil, err
	}
	promoted, dropped, err := l.PromoteEdges(ctx, tx, len(edges))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &LineageResult{
		EdgesExtracted: len(edges),
		EdgesStaged:    len(edges),
		EdgesPromoted:  promoted,
		EdgesDropped:   dropped,
	}, nil
}
