package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duro-sh/duro/internal/ident"
	"github.com/duro-sh/duro/internal/view"
)

func TestRunChecksPassesOnCleanTree(t *testing.T) {
	recs := []view.Record{
		{Name: ident.MustParse("a.x"), Query: "select 1"},
	}
	assert.NoError(t, runChecks(recs, view.Diagnostics{}))
}

func TestRunChecksFlagsOrphanTestFile(t *testing.T) {
	err := runChecks(nil, view.Diagnostics{OrphanTestFiles: []string{"a/ghost_test.sql"}})
	require.Error(t, err)
	var twrf *TablesWithoutRequiredFilesError
	require.ErrorAs(t, err, &twrf)
	assert.Len(t, twrf.Violations, 1)
}

func TestRunChecksFlagsProcessorWithoutSelect(t *testing.T) {
	recs := []view.Record{
		{Name: ident.MustParse("a.x"), Query: "CREATE TABLE a.x (id int)", ProcessorPath: "a/x.py"},
	}
	err := runChecks(recs, view.Diagnostics{})
	require.Error(t, err)
	var twrf *TablesWithoutRequiredFilesError
	require.ErrorAs(t, err, &twrf)
	assert.Len(t, twrf.Violations, 1)
}

func TestRunChecksFlagsProcessorWithoutDDL(t *testing.T) {
	err := runChecks(nil, view.Diagnostics{OrphanProcessorFiles: []string{"a/ghost.py"}})
	require.Error(t, err)
	var twrf *TablesWithoutRequiredFilesError
	require.ErrorAs(t, err, &twrf)
	assert.Len(t, twrf.Violations, 1)
}

func TestRunChecksAggregatesMultipleViolations(t *testing.T) {
	recs := []view.Record{
		{Name: ident.MustParse("a.x"), Query: "CREATE TABLE a.x (id int)", ProcessorPath: "a/x.py"},
	}
	err := runChecks(recs, view.Diagnostics{OrphanTestFiles: []string{"a/ghost_test.sql"}})
	require.Error(t, err)
	var twrf *TablesWithoutRequiredFilesError
	require.ErrorAs(t, err, &twrf)
	assert.Len(t, twrf.Violations, 2)
}
