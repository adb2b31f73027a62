package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise/platform/internal/domain/rbac"
	redisimpl "github.com/sitewise/platform/internal/infrastructure/redis"
)

func cacheEntry(companyID int64, userID uuid.UUID, now time.Time, ttl time.Duration) *rbac.EffectivePermissions {
	return &rbac.EffectivePermissions{
		UserID:        userID,
		CompanyID:     companyID,
		PermissionIDs: []uuid.UUID{uuid.New(), uuid.New()},
		Roles: []rbac.RoleSummary{
			{ID: uuid.New(), Name: "project_manager", Scope: "company"},
		},
		ComputedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
}

func TestPermissionCache_GetMiss(t *testing.T) {
	cache := redisimpl.NewPermissionCache(setupClient(t))

	entry, err := cache.Get(context.Background(), 1, uuid.New(), time.Now())
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestPermissionCache_PutGet(t *testing.T) {
	cache := redisimpl.NewPermissionCache(setupClient(t))
	ctx := context.Background()
	now := time.Now()
	userID := uuid.New()
	entry := cacheEntry(1, userID, now, time.Hour)

	require.NoError(t, cache.Put(ctx, entry))

	got, err := cache.Get(ctx, 1, userID, now)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.PermissionIDs, got.PermissionIDs)
	assert.Equal(t, entry.Roles, got.Roles)
	assert.WithinDuration(t, entry.ExpiresAt, got.ExpiresAt, time.Second)

	// Same user in another company is a separate entry.
	got, err = cache.Get(ctx, 2, userID, now)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPermissionCache_ExpiredIsMiss(t *testing.T) {
	cache := redisimpl.NewPermissionCache(setupClient(t))
	ctx := context.Background()
	now := time.Now()
	userID := uuid.New()

	require.NoError(t, cache.Put(ctx, cacheEntry(1, userID, now, time.Hour)))

	// Entry still lives in Redis but is past its expiry timestamp.
	got, err := cache.Get(ctx, 1, userID, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPermissionCache_PutReplaces(t *testing.T) {
	cache := redisimpl.NewPermissionCache(setupClient(t))
	ctx := context.Background()
	now := time.Now()
	userID := uuid.New()

	first := cacheEntry(1, userID, now, time.Hour)
	second := cacheEntry(1, userID, now.Add(time.Minute), time.Hour)

	require.NoError(t, cache.Put(ctx, first))
	require.NoError(t, cache.Put(ctx, second))

	got, err := cache.Get(ctx, 1, userID, now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, second.PermissionIDs, got.PermissionIDs)
}

func TestPermissionCache_Invalidate(t *testing.T) {
	cache := redisimpl.NewPermissionCache(setupClient(t))
	ctx := context.Background()
	now := time.Now()
	userID := uuid.New()

	require.NoError(t, cache.Put(ctx, cacheEntry(1, userID, now, time.Hour)))
	require.NoError(t, cache.Invalidate(ctx, 1, userID))

	got, err := cache.Get(ctx, 1, userID, now)
	require.NoError(t, err)
	assert.Nil(t, got)

	// Invalidating an absent entry is not an error.
	require.NoError(t, cache.Invalidate(ctx, 1, userID))
}
