package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "poller:\n  base_url: \"http://ess.local:9000/\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Poller.Interval)
	assert.Equal(t, time.Second, cfg.Poller.Timeout)
	assert.Equal(t, "http://ess.local:9000/ess-api/model/queryModelByType?modelType=robot", cfg.Poller.Endpoint())
	assert.Equal(t, "application/json", cfg.Poller.Headers["Accept"])
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./resources/blacklist.json", cfg.Blacklist.Path)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 5, cfg.Server.CacheTTLSeconds)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
poller:
  enabled: true
  base_url: "http://ess.local"
  interval_seconds: 3
  timeout_ms: 250
database:
  driver: postgres
  dsn: "host=db user=fleet"
push:
  vapid_public_key: pub
  vapid_private_key: priv
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Poller.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Poller.Interval)
	assert.Equal(t, 250*time.Millisecond, cfg.Poller.Timeout)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=db user=fleet", cfg.Database.DSN)
	assert.True(t, cfg.Push.Enabled())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
