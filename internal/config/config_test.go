package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Limits.MaxMailWatchers)
	assert.Equal(t, 60, cfg.Limits.MinPollSeconds)
	assert.NotEmpty(t, cfg.AI.MinimalModel)
}

func TestLoadClampsLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
limits:
  max_mail_watchers: -1
  min_poll_seconds: 2
  processed_id_cap: 0
  debounce_seconds: -5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Limits.MaxMailWatchers, "non-positive watcher cap resets to default")
	assert.Equal(t, 60, cfg.Limits.MinPollSeconds, "sub-10s poll clamps to default")
	assert.Equal(t, 200, cfg.Limits.ProcessedIDCap)
	assert.Equal(t, 2*time.Second, cfg.Debounce())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("SORTWATCH_DATA_DIR", "/tmp/sw-test")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "test-key", cfg.AI.APIKey)
	assert.Equal(t, "/tmp/sw-test", cfg.DataDir)
	assert.Equal(t, filepath.Join("/tmp/sw-test", "sortwatch.db"), cfg.DBPath())
	assert.Equal(t, filepath.Join("/tmp/sw-test", "trash"), cfg.TrashDir())
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limits: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
