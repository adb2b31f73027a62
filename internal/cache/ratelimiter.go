package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sitewise/platform/internal/domain/ratelimit"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimiter implements ratelimit.Limiter with fixed windows in
// a mutex-guarded map.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryRateLimiter creates an in-process fixed-window limiter
func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check increments the counter for key and reports whether the request
// fits inside the current window
func (l *MemoryRateLimiter) Check(_ context.Context, key string, limit int, windowSize time.Duration) (*ratelimit.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(windowSize)}
		l.windows[key] = w
	}
	w.count++

	result := &ratelimit.Result{
		Allowed:   w.count <= limit,
		Limit:     limit,
		Remaining: limit - w.count,
		ResetTime: w.resetAt,
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	if !result.Allowed {
		result.RetryAfter = w.resetAt.Sub(now)
	}
	return result, nil
}

// Reset clears the counter for key
func (l *MemoryRateLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}
