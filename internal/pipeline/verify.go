package pipeline

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/catmigrate/internal/adapter"
)

// VerifyResult reports read-only consistency checks against the
// destination store after a migration.
type VerifyResult struct {
	// DanglingEdges counts parent_child rows with an endpoint missing
	// from the file registry. Must be zero after a lineage run.
	DanglingEdges int64

	// UnattachedFiles counts files without any dataset membership.
	// Must be zero after a catalog run.
	UnattachedFiles int64
}

// OK reports whether every check passed.
func (r *VerifyResult) OK() bool {
	return r.DanglingEdges == 0 && r.UnattachedFiles == 0
}

const danglingEdgesSQL = `
	select count(*)
		from parent_child pc
		where not exists (select 1 from files f where f.id = pc.parent_id)
			or not exists (select 1 from files f where f.id = pc.child_id)
`

const unattachedFilesSQL = `
	select count(*)
		from files f
		where not exists (
			select 1 from files_datasets fd where fd.file_id = f.id
		)
`

// Verify runs the consistency checks against the destination store.
func Verify(ctx context.Context, dest adapter.Adapter) (*VerifyResult, error) {
	result := &VerifyResult{}

	if err := queryCount(ctx, dest, danglingEdgesSQL, &result.DanglingEdges); err != nil {
		return nil, fmt.Errorf("failed to count dangling edges: %w", err)
	}
	if err := queryCount(ctx, dest, unattachedFilesSQL, &result.UnattachedFiles); err != nil {
		return nil, fmt.Errorf("failed to count unattached files: %w", err)
	}

	return result, nil
}

func queryCount(ctx context.Context, dest adapter.Adapter, sqlStr string, out *int64) error {
	rows, err := dest.Query(ctx, sqlStr)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return fmt.Errorf("count query returned no rows")
	}
	if err := rows.Scan(out); err != nil {
		return err
	}
	return rows.Err()
}
