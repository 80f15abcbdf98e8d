package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"KANBAN_CONFIG", "KANBAN_ADDR", "KANBAN_DB_DRIVER", "KANBAN_DB_DSN", "KANBAN_REDIS_URL",
		"KANBAN_SERVER_URL", "KANBAN_USER", "KANBAN_LOG_LEVEL", "KANBAN_LOG_FILE", "KANBAN_DRAG_THRESHOLD",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "kanban.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
db:
  driver: pgx
  dsn: postgres://kanban@localhost/kanban
redis:
  url: redis://localhost:6379/0
client:
  drag_threshold: 4
log:
  level: debug
`), 0o600))
	t.Setenv("KANBAN_CONFIG", path)
	t.Setenv("KANBAN_ADDR", ":9100")
	t.Setenv("KANBAN_USER", "alice")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, "pgx", cfg.DB.Driver)
	assert.Equal(t, "postgres://kanban@localhost/kanban", cfg.DB.DSN)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 4, cfg.Client.DragThreshold)
	assert.Equal(t, "alice", cfg.Client.User)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset keys keep their defaults.
	assert.Equal(t, "http://localhost:8080", cfg.Client.ServerURL)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("KANBAN_DRAG_THRESHOLD", "far")
	_, err := Load()
	assert.ErrorContains(t, err, "KANBAN_DRAG_THRESHOLD")

	clearEnv(t)
	t.Setenv("KANBAN_DRAG_THRESHOLD", "-1")
	_, err = Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("KANBAN_LOG_LEVEL", "chatty")
	_, err = Load()
	assert.ErrorContains(t, err, "log level")

	clearEnv(t)
	t.Setenv("KANBAN_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.ErrorContains(t, err, "read config file")
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, l)
}
