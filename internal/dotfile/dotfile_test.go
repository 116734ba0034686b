package dotfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duro-sh/duro/internal/graph"
	"github.com/duro-sh/duro/internal/ident"
	"github.com/duro-sh/duro/internal/view"
)

func TestRenderIncludesNodesAndEdges(t *testing.T) {
	g := graph.New([]view.Record{
		{Name: ident.MustParse("a.parent"), Query: "select * from a.child"},
		{Name: ident.MustParse("a.child"), Query: "select 1"},
	})

	out := Render(g)
	assert.Contains(t, out, `"a.parent"`)
	assert.Contains(t, out, `"a.child"`)
	assert.Contains(t, out, `"a.parent" -> "a.child"`)
}

func TestWriteFileWritesToDisk(t *testing.T) {
	g := graph.New([]view.Record{{Name: ident.MustParse("a.x"), Query: "select 1"}})
	path := filepath.Join(t.TempDir(), "dependencies.dot")

	require.NoError(t, WriteFile(g, path))
}
