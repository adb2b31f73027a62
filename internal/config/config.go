// Package config loads server configuration from an optional YAML file
// plus SITEWISE_-prefixed environment variables; the environment wins.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sitewise/platform/internal/domain/ratelimit"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig holds the Postgres settings
type DatabaseConfig struct {
	URL          string `mapstructure:"url"`
	MaxConns     int32  `mapstructure:"max_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
	SeedDefaults bool   `mapstructure:"seed_defaults"`
}

// RedisConfig holds the Redis connection settings. Redis is optional;
// with Enabled false the server uses in-process cache and rate limits.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig holds per-window request budgets
type RateLimitConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	GlobalLimit   int           `mapstructure:"global_limit"`
	GlobalWindow  time.Duration `mapstructure:"global_window"`
	PerUserLimit  int           `mapstructure:"per_user_limit"`
	PerUserWindow time.Duration `mapstructure:"per_user_window"`
	PerIPLimit    int           `mapstructure:"per_ip_limit"`
	PerIPWindow   time.Duration `mapstructure:"per_ip_window"`
}

// Limits converts the flat config into the domain shape
func (c RateLimitConfig) Limits() *ratelimit.Config {
	return &ratelimit.Config{
		Global:  ratelimit.WindowConfig{Limit: c.GlobalLimit, Window: c.GlobalWindow},
		PerUser: ratelimit.WindowConfig{Limit: c.PerUserLimit, Window: c.PerUserWindow},
		PerIP:   ratelimit.WindowConfig{Limit: c.PerIPLimit, Window: c.PerIPWindow},
	}
}

// CacheConfig selects the effective-permission cache backend.
// Backends: "postgres" (transactional with mutations), "redis",
// "memory".
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the given file (optional; empty path
// skips it) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("database.url", "postgres://localhost:5432/sitewise?sslmode=disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.seed_defaults", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.global_limit", 1000)
	v.SetDefault("rate_limit.global_window", time.Minute)
	v.SetDefault("rate_limit.per_user_limit", 100)
	v.SetDefault("rate_limit.per_user_window", time.Minute)
	v.SetDefault("rate_limit.per_ip_limit", 60)
	v.SetDefault("rate_limit.per_ip_window", time.Minute)
	v.SetDefault("cache.backend", "postgres")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("SITEWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	switch cfg.Cache.Backend {
	case "postgres", "redis", "memory":
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "redis" && !cfg.Redis.Enabled {
		return nil, fmt.Errorf("cache backend redis requires redis.enabled")
	}

	return &cfg, nil
}
