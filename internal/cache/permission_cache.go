// Package cache provides in-process implementations of the permission
// cache and the rate-limit counter store for single-process
// deployments. Multi-process deployments use the Redis implementations
// in internal/infrastructure/redis.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sitewise/platform/internal/domain/rbac"
)

type cacheKey struct {
	companyID int64
	userID    uuid.UUID
}

// MemoryPermissionCache implements rbac.PermissionCache with a mutex-
// guarded map. Entries expire by timestamp exactly like the table- and
// Redis-backed implementations; expired entries are misses.
type MemoryPermissionCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]*rbac.EffectivePermissions
}

// NewMemoryPermissionCache creates an empty in-process cache
func NewMemoryPermissionCache() *MemoryPermissionCache {
	return &MemoryPermissionCache{
		entries: make(map[cacheKey]*rbac.EffectivePermissions),
	}
}

// Get returns the cached entry, or (nil, nil) when absent or expired
func (c *MemoryPermissionCache) Get(_ context.Context, companyID int64, userID uuid.UUID, now time.Time) (*rbac.EffectivePermissions, error) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey{companyID, userID}]
	c.mu.RUnlock()

	if !ok || entry.Expired(now) {
		return nil, nil
	}
	return entry, nil
}

// Put replaces any prior entry for the (company, user) pair
func (c *MemoryPermissionCache) Put(_ context.Context, entry *rbac.EffectivePermissions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{entry.CompanyID, entry.UserID})
	c.entries[cacheKey{entry.CompanyID, entry.UserID}] = entry
	return nil
}

// Invalidate deletes the (company, user) entry. Idempotent.
func (c *MemoryPermissionCache) Invalidate(_ context.Context, companyID int64, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{companyID, userID})
	return nil
}

// Len reports the number of live entries, expired included. Test hook.
func (c *MemoryPermissionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
