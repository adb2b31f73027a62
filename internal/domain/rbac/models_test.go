package rbac

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEffectivePermissions_Has(t *testing.T) {
	granted := uuid.New()
	other := uuid.New()
	eff := &EffectivePermissions{PermissionIDs: []uuid.UUID{granted}}

	assert.True(t, eff.Has(granted))
	assert.False(t, eff.Has(other))
}

func TestEffectivePermissions_HasAny(t *testing.T) {
	granted := uuid.New()
	other := uuid.New()
	eff := &EffectivePermissions{PermissionIDs: []uuid.UUID{granted}}

	assert.True(t, eff.HasAny([]uuid.UUID{other, granted}))
	assert.False(t, eff.HasAny([]uuid.UUID{other}))
	// Vacuously false: no candidate can match.
	assert.False(t, eff.HasAny(nil))
}

func TestEffectivePermissions_HasAll(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()
	eff := &EffectivePermissions{PermissionIDs: []uuid.UUID{a, b}}

	assert.True(t, eff.HasAll([]uuid.UUID{a, b}))
	assert.False(t, eff.HasAll([]uuid.UUID{a, c}))
	// Vacuously true: nothing is required.
	assert.True(t, eff.HasAll(nil))
}

func TestEffectivePermissions_Expired(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	eff := &EffectivePermissions{ExpiresAt: now.Add(time.Hour)}

	assert.False(t, eff.Expired(now))
	assert.True(t, eff.Expired(now.Add(time.Hour)), "expiry instant itself is a miss")
	assert.True(t, eff.Expired(now.Add(2*time.Hour)))
}
