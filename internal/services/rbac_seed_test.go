package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedDefaultCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SeedDefaultCatalog(ctx))

	permissions, err := f.svc.ListPermissions(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, permissions)

	byPair := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		byPair[p.Resource+":"+p.Action] = true
	}
	assert.True(t, byPair["projects:create"])
	assert.True(t, byPair["tasks:assign"])
	assert.True(t, byPair["audit:read"])

	templates, err := f.svc.ListRoleTemplates(ctx, "")
	require.NoError(t, err)
	require.Len(t, templates, len(defaultTemplates))

	// Every template references only catalog entries.
	known := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		known[p.ID.String()] = true
	}
	for _, tmpl := range templates {
		assert.NotEmpty(t, tmpl.PermissionIDs, tmpl.Name)
		for _, id := range tmpl.PermissionIDs {
			assert.True(t, known[id.String()], "template %s references unknown permission", tmpl.Name)
		}
	}
}

func TestSeedDefaultCatalog_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SeedDefaultCatalog(ctx))
	before, err := f.svc.ListPermissions(ctx)
	require.NoError(t, err)

	require.NoError(t, f.svc.SeedDefaultCatalog(ctx))
	after, err := f.svc.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	templates, err := f.svc.ListRoleTemplates(ctx, "")
	require.NoError(t, err)
	assert.Len(t, templates, len(defaultTemplates))
}

func TestSeedDefaultCatalog_FiltersTemplatesByCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SeedDefaultCatalog(ctx))

	field, err := f.svc.ListRoleTemplates(ctx, "field")
	require.NoError(t, err)
	require.NotEmpty(t, field)
	for _, tmpl := range field {
		assert.Equal(t, "field", tmpl.Category)
	}
}
