package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ".codebase-index", cfg.Output)
	assert.Equal(t, 3, cfg.HotspotThreshold)
	assert.False(t, cfg.SkipParseErrors)
	assert.False(t, cfg.Strict)
	assert.Greater(t, cfg.Workers, 0)
}

func TestFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := "output: reports\nworkers: 2\nhotspot_threshold: 5\nskip_parse_errors: true\nstrict: true\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cratemap.yml"), []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "reports", cfg.Output)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 5, cfg.HotspotThreshold)
	assert.True(t, cfg.SkipParseErrors)
	assert.True(t, cfg.Strict)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CRATEMAP_OUTPUT", "env-out")
	t.Setenv("CRATEMAP_WORKERS", "7")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "env-out", cfg.Output)
	assert.Equal(t, 7, cfg.Workers)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cratemap.yml"), []byte("workers: -1\nhotspot_threshold: 0\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Greater(t, cfg.Workers, 0)
	assert.Equal(t, 3, cfg.HotspotThreshold)
}

func TestMalformedConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cratemap.yml"), []byte("output: [unclosed\n"), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}
