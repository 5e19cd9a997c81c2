package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/lexisync/internal/config"
)

func validConfig() config.Config {
	return config.Config{
		Addr:                    ":8080",
		DBPath:                  "test.db",
		MirrorURL:               "",
		MirrorAddr:              ":8090",
		MirrorDBPath:            "mirror.db",
		LogLevel:                "INFO",
		SyncWorkerCount:         2,
		SyncQueueSize:           64,
		RemoteTimeoutSeconds:    15,
		SessionDueLimit:         10,
		SessionSize:             20,
		SessionMaxPresentations: 3,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"empty addr", func(c *config.Config) { c.Addr = "" }, "ADDR cannot be empty"},
		{"empty db path", func(c *config.Config) { c.DBPath = "" }, "DB_PATH cannot be empty"},
		{"no mirror at all", func(c *config.Config) { c.MirrorDBPath = "" }, "MIRROR_DB_PATH"},
		{"bad log level", func(c *config.Config) { c.LogLevel = "LOUD" }, "LOG_LEVEL"},
		{"zero workers", func(c *config.Config) { c.SyncWorkerCount = 0 }, "SYNC_WORKER_COUNT"},
		{"too many workers", func(c *config.Config) { c.SyncWorkerCount = 33 }, "SYNC_WORKER_COUNT"},
		{"zero queue", func(c *config.Config) { c.SyncQueueSize = 0 }, "SYNC_QUEUE_SIZE"},
		{"zero timeout", func(c *config.Config) { c.RemoteTimeoutSeconds = 0 }, "REMOTE_TIMEOUT_SECONDS"},
		{"negative due limit", func(c *config.Config) { c.SessionDueLimit = -1 }, "SESSION_DUE_LIMIT"},
		{"zero session", func(c *config.Config) { c.SessionSize = 0 }, "SESSION_SIZE"},
		{"due above size", func(c *config.Config) { c.SessionDueLimit = 25 }, "cannot exceed"},
		{"zero presentations", func(c *config.Config) { c.SessionMaxPresentations = 0 }, "SESSION_MAX_PRESENTATIONS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_RemoteMirrorNeedsNoLocalMirrorDB(t *testing.T) {
	cfg := validConfig()
	cfg.MirrorURL = "http://mirror.local"
	cfg.MirrorDBPath = ""
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "DB_PATH", "MIRROR_URL", "SYNC_WORKER_COUNT", "SESSION_SIZE"} {
		t.Setenv(k, "")
	}

	cfg := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "file:lexisync.db", cfg.DBPath)
	assert.Equal(t, "", cfg.MirrorURL)
	assert.Equal(t, 2, cfg.SyncWorkerCount)
	assert.Equal(t, 20, cfg.SessionSize)
	assert.Equal(t, 15*time.Second, cfg.RemoteTimeout())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("SYNC_WORKER_COUNT", "4")
	t.Setenv("SESSION_SIZE", "not-a-number")

	cfg := config.Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, 4, cfg.SyncWorkerCount)
	assert.Equal(t, 20, cfg.SessionSize, "invalid ints fall back to the default")
}

func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("MIRROR_URL", "")
	os.Unsetenv("MIRROR_URL")
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("MIRROR_URL=http://mirror.test:8090\n"), 0o600))

	cfg := config.Load(path)

	assert.Equal(t, "http://mirror.test:8090", cfg.MirrorURL)
}
