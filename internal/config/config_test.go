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
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.True(t, cfg.Database.SeedDefaults)
	assert.Equal(t, "postgres", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 1000, cfg.RateLimit.GlobalLimit)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
  environment: production
cache:
  backend: memory
  ttl: 15m
rate_limit:
  per_user_limit: 10
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Environment)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 10, cfg.RateLimit.PerUserLimit)
	// Untouched keys keep their defaults.
	assert.Equal(t, 1000, cfg.RateLimit.GlobalLimit)
}

func TestLoad_UnknownCacheBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  backend: memcached\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RedisBackendRequiresRedis(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cache:\n  backend: redis\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("cache:\n  backend: redis\nredis:\n  enabled: true\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Cache.Backend)
}

func TestRateLimitConfig_Limits(t *testing.T) {
	cfg := RateLimitConfig{
		GlobalLimit:   100,
		GlobalWindow:  time.Minute,
		PerUserLimit:  10,
		PerUserWindow: time.Second,
		PerIPLimit:    5,
		PerIPWindow:   time.Hour,
	}

	limits := cfg.Limits()
	assert.Equal(t, 100, limits.Global.Limit)
	assert.Equal(t, time.Minute, limits.Global.Window)
	assert.Equal(t, 10, limits.PerUser.Limit)
	assert.Equal(t, 5, limits.PerIP.Limit)
	assert.Equal(t, time.Hour, limits.PerIP.Window)
}
