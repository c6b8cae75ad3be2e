package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/catmigrate/internal/adapter"
	"github.com/leapstack-labs/catmigrate/internal/testutil"
)

// mockAdapter wraps a sqlmock-backed connection behind the Adapter
// interface so pipeline units can run against scripted statements.
type mockAdapter struct {
	adapter.BaseSQLAdapter
}

func (m *mockAdapter) Connect(_ context.Context, cfg adapter.Config) error {
	m.Cfg = cfg
	return nil
}

func (m *mockAdapter) DialectName() string { return "mock" }

func newMockAdapter(t *testing.T) (*mockAdapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	a := &mockAdapter{}
	a.DB = db
	return a, mock
}

// newSQLiteStore opens a file-backed sqlite adapter for scenario tests
// that need real DDL and constraint behavior instead of scripted
// statements. opts is appended to the database path verbatim, so tests
// can enable driver pragmas.
func newSQLiteStore(t *testing.T, opts string) adapter.Adapter {
	t.Helper()
	a := adapter.NewSQLiteAdapter()
	cfg := adapter.Config{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "store.db") + opts,
	}
	require.NoError(t, a.Connect(context.Background(), cfg))
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func queryStrings(t *testing.T, store adapter.Adapter, sqlStr string) []string {
	t.Helper()
	rows, err := store.Query(context.Background(), sqlStr)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	return out
}

// expectLineageRebuild queues the drop/create statements of the lineage
// table rebuild in their required order.
func expectLineageRebuild(mock sqlmock.Sqlmock) {
	mock.ExpectExec("drop table if exists parent_child_staging").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("drop table if exists parent_child").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table parent_child").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table parent_child_staging").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestLineage_Run(t *testing.T) {
	source, sourceMock := newMockAdapter(t)
	dest, destMock := newMockAdapter(t)

	// Source side: two surviving edges, then connection release.
	sourceMock.ExpectQuery("select distinct pc.parent_id, pc.child_id").
		WillReturnRows(sqlmock.NewRows([]string{"parent_id", "child_id"}).
			AddRow("A", "B").
			AddRow("B", "C"))
	sourceMock.ExpectClose()

	// Destination side: rebuild, stage, promote, constrain, cleanup.
	destMock.ExpectBegin()
	expectLineageRebuild(destMock)
	destMock.ExpectExec("insert into parent_child_staging").
		WithArgs("A", "B", "B", "C").
		WillReturnResult(sqlmock.NewResult(0, 2))
	// C is unknown to the destination registry: only one row promoted.
	destMock.ExpectExec("insert into parent_child").
		WillReturnResult(sqlmock.NewResult(0, 1))
	destMock.ExpectExec("alter table parent_child add primary key").
		WillReturnResult(sqlmock.NewResult(0, 0))
	destMock.ExpectExec("drop table parent_child_staging").
		WillReturnResult(sqlmock.NewResult(0, 0))
	destMock.ExpectCommit()

	l := NewLineage(source, dest, testutil.NewTestLogger(t))
	result, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.EdgesExtracted)
	assert.Equal(t, 2, result.EdgesStaged)
	assert.Equal(t, int64(1), result.EdgesPromoted)
	assert.Equal(t, int64(1), result.EdgesDropped)

	assert.NoError(t, sourceMock.ExpectationsWereMet())
	assert.NoError(t, destMock.ExpectationsWereMet())
}

func TestLineage_Run_NoEdges(t *testing.T) {
	source, sourceMock := newMockAdapter(t)
	dest, destMock := newMockAdapter(t)

	sourceMock.ExpectQuery("select distinct").
		WillReturnRows(sqlmock.NewRows([]string{"parent_id", "child_id"}))
	sourceMock.ExpectClose()

	destMock.ExpectBegin()
	expectLineageRebuild(destMock)
	// No staging insert happens for an empty interchange dataset.
	destMock.ExpectExec("insert into parent_child").
		WillReturnResult(sqlmock.NewResult(0, 0))
	destMock.ExpectExec("alter table parent_child add primary key").
		WillReturnResult(sqlmock.NewResult(0, 0))
	destMock.ExpectExec("drop table parent_child_staging").
		WillReturnResult(sqlmock.NewResult(0, 0))
	destMock.ExpectCommit()

	l := NewLineage(source, dest, testutil.NewTestLogger(t))
	result, err := l.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.EdgesExtracted)
	assert.Equal(t, int64(0), result.EdgesPromoted)
	assert.Equal(t, int64(0), result.EdgesDropped)
	assert.NoError(t, destMock.ExpectationsWereMet())
}

func TestLineage_ExtractEdges_SourceUnavailable(t *testing.T) {
	source, sourceMock := newMockAdapter(t)
	sourceMock.ExpectQuery("select distinct").WillReturnError(assert.AnError)

	l := NewLineage(source, nil, testutil.NewTestLogger(t))
	_, err := l.ExtractEdges(context.Background())
	require.Error(t, err)

	var srcErr *SourceUnavailableError
	require.ErrorAs(t, err, &srcErr)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLineage_ExtractEdges_SkipsRetiredEndpoints(t *testing.T) {
	source := newSQLiteStore(t, "")
	ctx := context.Background()

	stmts := []string{
		`create table files (id text primary key, namespace text, retired boolean)`,
		`create table parent_child (parent_id text, child_id text)`,
		`insert into files(id, namespace, retired) values
			('A', 'alpha', false),
			('B', 'alpha', null),
			('C', 'alpha', true),
			('D', 'beta', false)`,
		`insert into parent_child(parent_id, child_id) values
			('A', 'B'),
			('A', 'B'),
			('B', 'C'),
			('C', 'D'),
			('B', 'D')`,
	}
	for _, stmt := range stmts {
		require.NoError(t, source.Exec(ctx, stmt))
	}

	l := NewLineage(source, nil, testutil.NewTestLogger(t))
	edges, err := l.ExtractEdges(ctx)
	require.NoError(t, err)

	// Edges touching the retired file C never reach the interchange
	// dataset, the duplicate (A,B) collapses, and B's null retirement
	// marker counts as not retired.
	assert.ElementsMatch(t, []Edge{{"A", "B"}, {"B", "D"}}, edges)
}

func TestLineage_Run_AffectedRowsUnreported(t *testing.T) {
	source, sourceMock := newMockAdapter(t)
	dest, destMock := newMockAdapter(t)

	sourceMock.ExpectQuery("select distinct").
		WillReturnRows(sqlmock.NewRows([]string{"parent_id", "child_id"}).
			AddRow("A", "B"))
	sourceMock.ExpectClose()

	destMock.ExpectBegin()
	expectLineageRebuild(destMock)
	destMock.ExpectExec("insert into parent_child_staging").
		WithArgs("A", "B").
		WillReturnResult(sqlmock.NewResult(0, 1))
	destMock.ExpectExec("insert into parent_child").
		WillReturnResult(sqlmock.NewErrorResult(assert.AnError))
	destMock.ExpectExec("alter table parent_child add primary key").
		WillReturnResult(sqlmock.NewResult(0, 0))
	destMock.ExpectExec("drop table parent_child_staging").
		WillReturnResult(sqlmock.NewResult(0, 0))
	destMock.ExpectCommit()

	l := NewLineage(source, dest, testutil.NewTestLogger(t))
	result, err := l.Run(context.Background())
	require.NoError(t, err)

	// Unknown counts must not masquerade as everything-dropped.
	assert.Equal(t, int64(-1), result.EdgesPromoted)
	assert.Equal(t, int64(-1), result.EdgesDropped)
	assert.NoError(t, destMock.ExpectationsWereMet())
}

func TestLineage_Run_StageFailure(t *testing.T) {
	source, sourceMock := newMockAdapter(t)
	dest, destMock := newMockAdapter(t)

	sourceMock.ExpectQuery("select distinct").
		WillReturnRows(sqlmock.NewRows([]string{"parent_id", "child_id"}).
			AddRow("A", "B"))
	sourceMock.ExpectClose()

	destMock.ExpectBegin()
	expectLineageRebuild(destMock)
	destMock.ExpectExec("insert into parent_child_staging").
		WillReturnError(assert.AnError)
	destMock.ExpectRollback()

	l := NewLineage(source, dest, testutil.NewTestLogger(t))
	_, err := l.Run(context.Background())
	require.Error(t, err)

	var loadErr *LoadFailureError
	require.ErrorAs(t, err, &loadErr)
	assert.NoError(t, destMock.ExpectationsWereMet())
}

func TestLineage_Run_DuplicateEdge(t *testing.T) {
	source, sourceMock := newMockAdapter(t)
	dest, destMock := newMockAdapter(t)

	sourceMock.ExpectQuery("select distinct").
		WillReturnRows(sqlmock.NewRows([]string{"parent_id", "child_id"}).
			AddRow("A", "B"))
	sourceMock.ExpectClose()

	destMock.ExpectBegin()
	expectLineageRebuild(destMock)
	destMock.ExpectExec("insert into parent_child_staging").
		WithArgs("A", "B").
		WillReturnResult(sqlmock.NewResult(0, 1))
	destMock.ExpectExec("insert into parent_child").
		WillReturnResult(sqlmock.NewResult(0, 1))
	destMock.ExpectExec("alter table parent_child add primary key").
		WillReturnError(errors.New(`duplicate key value violates unique constraint "parent_child_pkey"`))
	destMock.ExpectRollback()

	l := NewLineage(source, dest, testutil.NewTestLogger(t))
	_, err := l.Run(context.Background())
	require.Error(t, err)

	var dupErr *DuplicateEdgeError
	require.ErrorAs(t, err, &dupErr)
	assert.NoError(t, destMock.ExpectationsWereMet())
}

func TestLineage_StageEdges_Batching(t *testing.T) {
	dest, destMock := newMockAdapter(t)

	destMock.ExpectBegin()
	destMock.ExpectExec("insert into parent_child_staging").
		WithArgs("a", "b", "c", "d").
		WillReturnResult(sqlmock.NewResult(0, 2))
	destMock.ExpectExec("insert into parent_child_staging").
		WithArgs("e", "f").
		WillReturnResult(sqlmock.NewResult(0, 1))
	destMock.ExpectCommit()

	l := NewLineage(nil, dest, testutil.NewTestLogger(t))
	l.BatchSize = 2

	tx, err := dest.Begin(context.Background())
	require.NoError(t, err)

	edges := []Edge{{"a", "b"}, {"c", "d"}, {"e", "f"}}
	require.NoError(t, l.StageEdges(context.Background(), tx, edges))
	require.NoError(t, tx.Commit())

	assert.NoError(t, destMock.ExpectationsWereMet())
}
