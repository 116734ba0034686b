package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duro-sh/duro/internal/ident"
)

func writeConf(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestMergeTableConfigGrantSelectAdd(t *testing.T) {
	root := t.TempDir()
	writeConf(t, filepath.Join(root, "global.conf"), "grant_select=Jane\n")
	writeConf(t, filepath.Join(root, "first.conf"), "grant_select=Tegan, Sara\n")
	writeConf(t, filepath.Join(root, "first.cities.conf"), "grant_select=+Kendrick\n")

	cfg, err := MergeTableConfig(root, ident.MustParse("first.cities"))
	require.NoError(t, err)
	assert.Equal(t, "Kendrick, Sara, Tegan", cfg.GrantSelectString())
}

func TestMergeTableConfigGrantSelectRemove(t *testing.T) {
	root := t.TempDir()
	writeConf(t, filepath.Join(root, "global.conf"), "grant_select=Jane\n")
	writeConf(t, filepath.Join(root, "first.conf"), "grant_select=Tegan, Sara\n")
	writeConf(t, filepath.Join(root, "first.cities.conf"), "grant_select=-Sara\n")

	cfg, err := MergeTableConfig(root, ident.MustParse("first.cities"))
	require.NoError(t, err)
	assert.Equal(t, "Tegan", cfg.GrantSelectString())
}

func TestMergeTableConfigDistKeyOverride(t *testing.T) {
	root := t.TempDir()
	writeConf(t, filepath.Join(root, "global.conf"), "distkey=id\n")
	writeConf(t, filepath.Join(root, "first", "cities.conf"), "distkey=city_id\n")

	cfg, err := MergeTableConfig(root, ident.MustParse("first.cities"))
	require.NoError(t, err)
	require.NotNil(t, cfg.DistKey)
	assert.Equal(t, "city_id", *cfg.DistKey)
}

func TestMergeTableConfigNullNormalizesToAbsent(t *testing.T) {
	root := t.TempDir()
	writeConf(t, filepath.Join(root, "global.conf"), "distkey=id\n")
	writeConf(t, filepath.Join(root, "first.conf"), "distkey=null\n")

	cfg, err := MergeTableConfig(root, ident.MustParse("first.cities"))
	require.NoError(t, err)
	assert.Nil(t, cfg.DistKey)
}

func TestMergeTableConfigMissingFilesSkipped(t *testing.T) {
	root := t.TempDir()
	cfg, err := MergeTableConfig(root, ident.MustParse("first.cities"))
	require.NoError(t, err)
	assert.Nil(t, cfg.DistKey)
	assert.Nil(t, cfg.GrantSelect)
}
