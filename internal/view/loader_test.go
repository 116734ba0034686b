package view

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLoadParsesSchemaDirForm(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "first", "cities — 24h.sql"), "select * from raw.cities")

	recs, _, err := Load(root)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "first.cities", recs[0].Name.String())
	require.NotNil(t, recs[0].IntervalRaw)
	assert.Equal(t, "24h", *recs[0].IntervalRaw)
}

func TestLoadRejectsMissingSchema(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "cities.sql"), "select 1")

	_, _, err := Load(root)
	require.Error(t, err)
}

func TestLoadFlatSchemaDotTableFormIgnoresDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "second", "first.cities - 1h.sql"), "select 1")

	recs, _, err := Load(root)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "first.cities", recs[0].Name.String())
	require.NotNil(t, recs[0].IntervalRaw)
	assert.Equal(t, "1h", *recs[0].IntervalRaw)
}

func TestLoadNoIntervalIsAbsent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "first", "cities.sql"), "select 1")

	recs, _, err := Load(root)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].IntervalRaw)
}

func TestLoadAttachesTestsAndProcessor(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "first", "cities.sql"), "CREATE TABLE first.cities (id int)")
	writeFile(t, filepath.Join(root, "first", "cities.py"), "print('process')")
	writeFile(t, filepath.Join(root, "first", "cities_select.sql"), "select * from raw.cities")
	writeFile(t, filepath.Join(root, "first", "cities_test.sql"), "select count(*) from first.cities; select 1")
	writeFile(t, filepath.Join(root, "first", "requirements.txt"), "pandas==2.0\n")

	recs, diag, err := Load(root)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, diag.OrphanTestFiles)
	assert.Empty(t, diag.OrphanProcessorFiles)

	rec := recs[0]
	assert.Equal(t, "first.cities", rec.Name.String())
	assert.NotEmpty(t, rec.ProcessorPath)
	assert.Equal(t, "select * from raw.cities", rec.ProcessorSelect)
	assert.NotEmpty(t, rec.RequirementsPath)
	require.Len(t, rec.TestQueries, 2)
}

func TestLoadOrphanSelectWithoutProcessorIsIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "first", "cities.sql"), "select 1")
	writeFile(t, filepath.Join(root, "first", "cities_select.sql"), "select 2")

	recs, _, err := Load(root)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].ProcessorPath)
	assert.Empty(t, recs[0].ProcessorSelect)
}

func TestLoadReportsOrphanTestFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "first", "ghost_test.sql"), "select 1")

	recs, diag, err := Load(root)
	require.NoError(t, err)
	assert.Empty(t, recs)
	require.Len(t, diag.OrphanTestFiles, 1)
}

func TestLoadReportsOrphanProcessorFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "first", "ghost.py"), "print('x')")

	recs, diag, err := Load(root)
	require.NoError(t, err)
	assert.Empty(t, recs)
	require.Len(t, diag.OrphanProcessorFiles, 1)
}
