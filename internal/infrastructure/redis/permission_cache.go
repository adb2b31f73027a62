package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sitewise/platform/internal/domain/rbac"
)

const permissionCacheKeyPrefix = "effective_permissions:"

// PermissionCache implements rbac.PermissionCache using Redis. Entries
// are stored as JSON with a TTL matching their expiry, so Redis evicts
// stale entries on its own; the expiry check in Get covers clock skew
// between the server and Redis.
type PermissionCache struct {
	client *redis.Client
}

// NewPermissionCache creates a new Redis permission cache
func NewPermissionCache(client *redis.Client) *PermissionCache {
	return &PermissionCache{
		client: client,
	}
}

func permissionCacheKey(companyID int64, userID uuid.UUID) string {
	return fmt.Sprintf("%s%d:%s", permissionCacheKeyPrefix, companyID, userID)
}

// Get returns the cached entry, or (nil, nil) when absent or expired
func (c *PermissionCache) Get(ctx context.Context, companyID int64, userID uuid.UUID, now time.Time) (*rbac.EffectivePermissions, error) {
	data, err := c.client.Get(ctx, permissionCacheKey(companyID, userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached permissions: %w", err)
	}

	var entry rbac.EffectivePermissions
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to deserialize cached permissions: %w", err)
	}

	if entry.Expired(now) {
		return nil, nil
	}
	return &entry, nil
}

// Put replaces any prior entry for the (company, user) pair
func (c *PermissionCache) Put(ctx context.Context, entry *rbac.EffectivePermissions) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize permissions entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	key := permissionCacheKey(entry.CompanyID, entry.UserID)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store permissions entry: %w", err)
	}
	return nil
}

// Invalidate deletes the (company, user) entry. Idempotent.
func (c *PermissionCache) Invalidate(ctx context.Context, companyID int64, userID uuid.UUID) error {
	if err := c.client.Del(ctx, permissionCacheKey(companyID, userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate permissions entry: %w", err)
	}
	return nil
}
