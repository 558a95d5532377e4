package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/craftocr/internal/config"
)

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "craftocr.yaml")

	out, _, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, err := config.FromYAML(data)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Server.Port, cfg.Server.Port)

	_, _, err = execute(t, "config", "init", path)
	require.ErrorContains(t, err, "already exists")

	_, _, err = execute(t, "config", "init", path, "--force")
	require.NoError(t, err)
}

func TestConfigShow(t *testing.T) {
	out, _, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "text_threshold:")
	assert.Contains(t, out, "blank_index: -1")

	out, _, err = execute(t, "config", "show", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"max_workers": 1`)

	_, _, err = execute(t, "config", "show", "--format", "toml")
	assert.Error(t, err)
}

func TestConfigPaths(t *testing.T) {
	out, _, err := execute(t, "config", "paths")
	require.NoError(t, err)
	assert.Contains(t, out, "/etc/craftocr")
}
