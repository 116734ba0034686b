package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duro-sh/duro/internal/schedule"
)

func openTestStore(t *testing.T) *schedule.Store {
	t.Helper()
	s, err := schedule.Open(context.Background(), filepath.Join(t.TempDir(), "duro.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeView(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestRescheduleInsertsNewTables(t *testing.T) {
	root := t.TempDir()
	writeView(t, filepath.Join(root, "a", "x — 1h.sql"), "select 1")

	s := openTestStore(t)
	summary, err := Reschedule(context.Background(), s, nil, RescheduleOptions{
		ViewsRoot: root,
		GraphPath: filepath.Join(t.TempDir(), "deps.dot"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.x"}, summary.Inserted)
	assert.Empty(t, summary.Changed)
}

func TestRescheduleRejectsRootWithoutInterval(t *testing.T) {
	root := t.TempDir()
	writeView(t, filepath.Join(root, "a", "x.sql"), "select 1")

	s := openTestStore(t)
	_, err := Reschedule(context.Background(), s, nil, RescheduleOptions{
		ViewsRoot: root,
		GraphPath: filepath.Join(t.TempDir(), "deps.dot"),
	})
	require.Error(t, err)
	var rwi *RootsWithoutIntervalError
	require.ErrorAs(t, err, &rwi)
}

func TestRescheduleSecondPassUnchangedProducesNoChanges(t *testing.T) {
	root := t.TempDir()
	writeView(t, filepath.Join(root, "a", "x — 1h.sql"), "select 1")

	s := openTestStore(t)
	opts := RescheduleOptions{ViewsRoot: root, GraphPath: filepath.Join(t.TempDir(), "deps.dot")}
	_, err := Reschedule(context.Background(), s, nil, opts)
	require.NoError(t, err)

	summary, err := Reschedule(context.Background(), s, nil, opts)
	require.NoError(t, err)
	assert.Empty(t, summary.Inserted)
	assert.Empty(t, summary.Changed)
}

func TestRescheduleDetectsChangedQuery(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a", "x — 1h.sql")
	writeView(t, path, "select 1")

	s := openTestStore(t)
	opts := RescheduleOptions{ViewsRoot: root, GraphPath: filepath.Join(t.TempDir(), "deps.dot")}
	_, err := Reschedule(context.Background(), s, nil, opts)
	require.NoError(t, err)

	writeView(t, path, "select 2")
	summary, err := Reschedule(context.Background(), s, nil, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.x"}, summary.Changed)
}

func TestRescheduleFailsPreflightChecks(t *testing.T) {
	root := t.TempDir()
	writeView(t, filepath.Join(root, "a", "ghost_test.sql"), "select 1")

	s := openTestStore(t)
	_, err := Reschedule(context.Background(), s, nil, RescheduleOptions{
		ViewsRoot: root,
		GraphPath: filepath.Join(t.TempDir(), "deps.dot"),
	})
	require.Error(t, err)
	var twrf *TablesWithoutRequiredFilesError
	require.ErrorAs(t, err, &twrf)
}
