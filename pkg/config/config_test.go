package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Graph.Directed)
	assert.False(t, cfg.Graph.WriteBackups)
	assert.Equal(t, 0, cfg.Graph.HistoryCap)
	assert.Equal(t, "./backups", cfg.Backup.Dir)
	assert.Equal(t, 10, cfg.Backup.Keep)
	assert.False(t, cfg.Archive.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Run("env overrides defaults", func(t *testing.T) {
		t.Setenv("VEV_GRAPH_DIRECTED", "false")
		t.Setenv("VEV_GRAPH_WRITE_BACKUPS", "true")
		t.Setenv("VEV_BACKUP_DIR", "/var/lib/vev")
		t.Setenv("VEV_BACKUP_KEEP", "3")
		t.Setenv("VEV_ARCHIVE_ENABLED", "true")
		t.Setenv("VEV_ARCHIVE_PATH", "/var/lib/vev/history.db")

		cfg := LoadFromEnv()
		assert.False(t, cfg.Graph.Directed)
		assert.True(t, cfg.Graph.WriteBackups)
		assert.Equal(t, "/var/lib/vev", cfg.Backup.Dir)
		assert.Equal(t, 3, cfg.Backup.Keep)
		assert.True(t, cfg.Archive.Enabled)
	})

	t.Run("unparseable values fall back", func(t *testing.T) {
		t.Setenv("VEV_GRAPH_DIRECTED", "sometimes")
		t.Setenv("VEV_BACKUP_KEEP", "many")

		cfg := LoadFromEnv()
		assert.True(t, cfg.Graph.Directed)
		assert.Equal(t, 10, cfg.Backup.Keep)
	})
}

func TestLoadFile(t *testing.T) {
	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vev.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"graph:\n  directed: false\n  history_cap: 100\nbackup:\n  keep: 5\n"), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.False(t, cfg.Graph.Directed)
		assert.Equal(t, 100, cfg.Graph.HistoryCap)
		assert.Equal(t, 5, cfg.Backup.Keep)
		// Untouched sections keep defaults.
		assert.Equal(t, "./backups", cfg.Backup.Dir)
	})

	t.Run("env outranks file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vev.yaml")
		require.NoError(t, os.WriteFile(path, []byte("backup:\n  keep: 5\n"), 0o644))
		t.Setenv("VEV_BACKUP_KEEP", "7")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Backup.Keep)
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml fails", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vev.yaml")
		require.NoError(t, os.WriteFile(path, []byte("graph: ["), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative history cap", func(c *Config) { c.Graph.HistoryCap = -1 }},
		{"negative keep", func(c *Config) { c.Backup.Keep = -2 }},
		{"backups without dir", func(c *Config) { c.Graph.WriteBackups = true; c.Backup.Dir = "" }},
		{"archive without path", func(c *Config) { c.Archive.Enabled = true; c.Archive.Path = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vev.yaml")
	cfg := Default()
	cfg.Graph.HistoryCap = 42
	require.NoError(t, cfg.WriteFile(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestString(t *testing.T) {
	s := Default().String()
	assert.Contains(t, s, "directed=true")
	assert.Contains(t, s, "keep=10")
}
