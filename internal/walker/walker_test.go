package walker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duro-sh/duro/internal/graph"
	"github.com/duro-sh/duro/internal/ident"
	"github.com/duro-sh/duro/internal/schedule"
	"github.com/duro-sh/duro/internal/view"
)

func openTestStore(t *testing.T) *schedule.Store {
	t.Helper()
	s, err := schedule.Open(context.Background(), t.TempDir()+"/duro.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func intPtr(i int) *int { return &i }

func TestShouldBeCreatedNewTableIsForced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertTables(ctx, []schedule.UpsertRecord{
		{Name: "a.x", Query: "select 1", Interval: intPtr(60), Config: "{}"},
	}, ""))

	w := New(Deps{Store: s})
	row, err := s.LoadTableDetails(ctx, "a.x")
	require.NoError(t, err)

	should, err := w.shouldBeCreated(ctx, row)
	require.NoError(t, err)
	assert.True(t, should)
}

func TestShouldBeCreatedFreshUnforcedTableIsSkipped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertTables(ctx, []schedule.UpsertRecord{
		{Name: "a.x", Query: "select 1", Interval: intPtr(60), Config: "{}"},
	}, ""))
	require.NoError(t, s.UpdateLastCreated(ctx, "a.x", time.Now(), time.Second))

	w := New(Deps{Store: s})
	row, err := s.LoadTableDetails(ctx, "a.x")
	require.NoError(t, err)
	assert.False(t, row.Force)

	should, err := w.shouldBeCreated(ctx, row)
	require.NoError(t, err)
	assert.False(t, should)
}

func TestShouldBeCreatedStaleTableIsDue(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertTables(ctx, []schedule.UpsertRecord{
		{Name: "a.x", Query: "select 1", Interval: intPtr(1), Config: "{}"},
	}, ""))
	require.NoError(t, s.UpdateLastCreated(ctx, "a.x", time.Now().Add(-time.Hour), time.Second))

	w := New(Deps{Store: s})
	row, err := s.LoadTableDetails(ctx, "a.x")
	require.NoError(t, err)

	should, err := w.shouldBeCreated(ctx, row)
	require.NoError(t, err)
	assert.True(t, should)
}

func TestShouldBeCreatedRecentlyMarkedWaitingIsSkipped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertTables(ctx, []schedule.UpsertRecord{
		{Name: "a.x", Query: "select 1", Interval: intPtr(60), Config: "{}"},
	}, ""))
	require.NoError(t, s.MarkWaiting(ctx, "a.x", true))

	w := New(Deps{Store: s})
	row, err := s.LoadTableDetails(ctx, "a.x")
	require.NoError(t, err)

	should, err := w.shouldBeCreated(ctx, row)
	require.NoError(t, err)
	assert.False(t, should)
}

func TestCreateSingleTablePropagatesMissingTableError(t *testing.T) {
	s := openTestStore(t)
	w := New(Deps{Store: s})
	err := w.CreateSingleTable(context.Background(), "nope.nope")
	require.ErrorIs(t, err, schedule.ErrTableNotFoundInDB)
}

func TestCreateTreeSkipsFreshLeafWithoutTouchingWarehouse(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertTables(ctx, []schedule.UpsertRecord{
		{Name: "a.leaf", Query: "select 1", Interval: intPtr(60), Config: "{}"},
	}, ""))
	require.NoError(t, s.UpdateLastCreated(ctx, "a.leaf", time.Now(), time.Second))

	g := graph.New([]view.Record{{Name: ident.MustParse("a.leaf"), Query: "select 1"}})

	w := New(Deps{Store: s, Graph: g})
	err := w.CreateTree(ctx, "a.leaf", nil, 0)
	require.NoError(t, err)
}

func TestCreateTreePropagatesContextCancellation(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(Deps{Store: s})
	err := w.CreateTree(ctx, "a.x", nil, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandleCreationErrorSwallowsDomainErrors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertTables(ctx, []schedule.UpsertRecord{
		{Name: "a.x", Query: "select 1", Interval: intPtr(60), Config: "{}"},
	}, ""))
	require.NoError(t, s.LogStart(ctx, "a.x"))

	w := New(Deps{Store: s})
	err := w.handleCreationError(ctx, "a.x", "test-run-id", assertError{"boom"})
	require.NoError(t, err)

	row, err := s.LoadTableDetails(ctx, "a.x")
	require.NoError(t, err)
	assert.Nil(t, row.Started)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
