package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitewise/platform/internal/domain/ratelimit"
)

const rateLimitKeyPrefix = "rate_limit:"

// RateLimiter implements ratelimit.Limiter on Redis sorted sets with a
// sliding window, so limits hold across server processes.
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a new Redis rate limiter
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{
		client: client,
	}
}

// checkScript trims expired entries, counts the window and records the
// request atomically.
const checkScript = `
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current = redis.call('ZCARD', key)
	if current < limit then
		redis.call('ZADD', key, now, now .. ':' .. math.random())
		redis.call('EXPIRE', key, ttl)
		local new_count = current + 1
		return {1, new_count, limit - new_count, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local reset_time = now
	if #oldest > 0 then
		reset_time = tonumber(oldest[2])
	end
	return {0, current, 0, reset_time}
`

// Check records the request and reports whether it fits the window
func (r *RateLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*ratelimit.Result, error) {
	now := time.Now()
	windowStart := now.Add(-window)
	redisKey := rateLimitKeyPrefix + key
	ttlSeconds := int(window.Seconds()) + 1

	raw, err := r.client.Eval(ctx, checkScript, []string{redisKey},
		windowStart.UnixMilli(), now.UnixMilli(), limit, ttlSeconds).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) < 4 {
		return nil, fmt.Errorf("unexpected result format from rate limiter")
	}

	allowed := values[0].(int64) == 1
	remaining := int(values[2].(int64))

	result := &ratelimit.Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetTime: now.Add(window),
	}

	if !allowed {
		// The window slides: the slot frees when the oldest entry ages out.
		if oldestMs, ok := values[3].(int64); ok && oldestMs > 0 {
			result.ResetTime = time.UnixMilli(oldestMs).Add(window)
		}
		result.RetryAfter = time.Until(result.ResetTime)
		if result.RetryAfter < 0 {
			result.RetryAfter = 0
		}
	}

	return result, nil
}

// Reset resets the rate limit for a key
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, rateLimitKeyPrefix+key).Err()
}
