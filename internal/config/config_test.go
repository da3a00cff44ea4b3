package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4096", cfg.ServerURL)
	assert.Equal(t, 100, cfg.SessionLimit)
	assert.Equal(t, 50, cfg.RecentCap)
	assert.Equal(t, 400, cfg.MessagePageSize)
	assert.Equal(t, 40, cfg.FileCacheEntries)
	assert.Equal(t, int64(20*1024*1024), cfg.FileCacheBytes)
	assert.Equal(t, 2, cfg.BootstrapConcurrency)
	assert.Equal(t, 30*24*time.Hour, cfg.PersistMaxAge)
	assert.Equal(t, time.Hour, cfg.PersistSweepEvery)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("MIRROR_SESSION_LIMIT", "25")
	t.Setenv("MIRROR_SERVER_URL", "http://remote:9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.SessionLimit)
	assert.Equal(t, "http://remote:9000", cfg.ServerURL)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workspaces.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workspaces:\n  - /tmp/proj-a\n  - /tmp/proj-b\n"), 0o644))

	cfg := &Config{WorkspaceManifest: path}
	dirs, err := cfg.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/proj-a", "/tmp/proj-b"}, dirs)
}

func TestLoadManifest_Empty(t *testing.T) {
	cfg := &Config{}
	dirs, err := cfg.LoadManifest()
	require.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestLoadManifest_Missing(t *testing.T) {
	cfg := &Config{WorkspaceManifest: "/nonexistent/workspaces.yaml"}
	_, err := cfg.LoadManifest()
	assert.Error(t, err)
}
