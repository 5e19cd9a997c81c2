package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/vytor/lexisync/internal/logger"
)

type Config struct {
	Addr                    string
	DBPath                  string
	MirrorURL               string
	MirrorAddr              string
	MirrorDBPath            string
	LogLevel                string
	SyncWorkerCount         int
	SyncQueueSize           int
	RemoteTimeoutSeconds    int
	SessionDueLimit         int
	SessionSize             int
	SessionMaxPresentations int
}

// Load reads configuration from the given .env files (or ./.env when none are
// given) and environment variables, applying defaults when values are missing
// or invalid.
func Load(envFiles ...string) Config {
	// Ignore error so the app still starts when .env is absent in production.
	_ = godotenv.Load(envFiles...)

	return Config{
		Addr:                    envOr("ADDR", ":8080"),
		DBPath:                  envOr("DB_PATH", "file:lexisync.db"),
		MirrorURL:               envOr("MIRROR_URL", ""),
		MirrorAddr:              envOr("MIRROR_ADDR", ":8090"),
		MirrorDBPath:            envOr("MIRROR_DB_PATH", "file:mirror.db"),
		LogLevel:                envOr("LOG_LEVEL", "INFO"),
		SyncWorkerCount:         envIntOr("SYNC_WORKER_COUNT", 2),
		SyncQueueSize:           envIntOr("SYNC_QUEUE_SIZE", 64),
		RemoteTimeoutSeconds:    envIntOr("REMOTE_TIMEOUT_SECONDS", 15),
		SessionDueLimit:         envIntOr("SESSION_DUE_LIMIT", 10),
		SessionSize:             envIntOr("SESSION_SIZE", 20),
		SessionMaxPresentations: envIntOr("SESSION_MAX_PRESENTATIONS", 3),
	}
}

// Validate checks the configuration and returns the first problem found.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("ADDR cannot be empty")
	case c.DBPath == "":
		return fmt.Errorf("DB_PATH cannot be empty")
	case c.MirrorURL == "" && c.MirrorDBPath == "":
		return fmt.Errorf("MIRROR_DB_PATH cannot be empty when MIRROR_URL is not set")
	case !logger.ValidLevel(c.LogLevel):
		return fmt.Errorf("LOG_LEVEL %q is not one of DEBUG, INFO, WARN, ERROR", c.LogLevel)
	case c.SyncWorkerCount < 1 || c.SyncWorkerCount > 32:
		return fmt.Errorf("SYNC_WORKER_COUNT must be between 1 and 32, got %d", c.SyncWorkerCount)
	case c.SyncQueueSize < 1:
		return fmt.Errorf("SYNC_QUEUE_SIZE must be positive, got %d", c.SyncQueueSize)
	case c.RemoteTimeoutSeconds < 1:
		return fmt.Errorf("REMOTE_TIMEOUT_SECONDS must be positive, got %d", c.RemoteTimeoutSeconds)
	case c.SessionDueLimit < 0:
		return fmt.Errorf("SESSION_DUE_LIMIT cannot be negative, got %d", c.SessionDueLimit)
	case c.SessionSize < 1:
		return fmt.Errorf("SESSION_SIZE must be positive, got %d", c.SessionSize)
	case c.SessionDueLimit > c.SessionSize:
		return fmt.Errorf("SESSION_DUE_LIMIT (%d) cannot exceed SESSION_SIZE (%d)", c.SessionDueLimit, c.SessionSize)
	case c.SessionMaxPresentations < 1:
		return fmt.Errorf("SESSION_MAX_PRESENTATIONS must be at least 1, got %d", c.SessionMaxPresentations)
	}
	return nil
}

// RemoteTimeout returns the per-attempt timeout for remote mirror calls.
func (c Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSeconds) * time.Second
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Printf("invalid value for %s=%q, using default %d", key, v, def)
	}
	return def
}
