package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/esperto")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 3, cfg.Realtime.MaxRetries)
	assert.Equal(t, time.Second, cfg.Realtime.BaseDelay)
	assert.Equal(t, 30*time.Second, cfg.Realtime.PollInterval)
	assert.Equal(t, 10, cfg.Realtime.NotificationsCap)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 500, cfg.Queue.MaxRecords)
	assert.Equal(t, 2*time.Minute, cfg.Offers.CacheTTL)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoadConfig_RequiredFields(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "REDIS_URL", "JWT_SECRET"} {
		t.Run(key, func(t *testing.T) {
			setRequired(t)
			t.Setenv(key, "")

			_, err := LoadConfig()
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_EXPIRY", "tomorrow")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("JWT_EXPIRY", "1h")
	t.Setenv("QUEUE_MAX_RECORDS", "many")
	_, err = LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_File(t *testing.T) {
	setRequired(t)
	t.Setenv("POLL_EVERY", "45s")

	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := `
allowed_origins:
  - http://localhost:5173
realtime:
  max_retries: 5
  base_delay: 2s
  poll_interval: ${POLL_EVERY}
sync:
  interval: 1m
queue:
  max_records: 50
offers:
  cache_ttl: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("QUEUE_MAX_RECORDS", "75")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Realtime.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Realtime.BaseDelay)
	assert.Equal(t, 45*time.Second, cfg.Realtime.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Realtime.MaxDelay)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 30*time.Second, cfg.Offers.CacheTTL)
	// environment wins over the file
	assert.Equal(t, 75, cfg.Queue.MaxRecords)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	setRequired(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "read config file")
}
