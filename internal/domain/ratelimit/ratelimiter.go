package ratelimit

import (
	"context"
	"time"
)

// Result represents the outcome of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter is a fixed-window counter keyed by client identity. The
// counter store is injected so single-process deployments can use an
// in-memory map while multi-process deployments share an external
// store; module-level mutable state is never used.
type Limiter interface {
	// Check checks if a request should be allowed and updates counters
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)

	// Reset resets the rate limit for a key
	Reset(ctx context.Context, key string) error
}

// WindowConfig is one limit/window pair
type WindowConfig struct {
	Limit  int
	Window time.Duration
}

// Config holds rate limiting configuration per key class
type Config struct {
	Global  WindowConfig
	PerUser WindowConfig
	PerIP   WindowConfig
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() *Config {
	return &Config{
		Global:  WindowConfig{Limit: 1000, Window: time.Hour},
		PerUser: WindowConfig{Limit: 100, Window: time.Hour},
		PerIP:   WindowConfig{Limit: 60, Window: time.Minute},
	}
}
