package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewise/platform/internal/cache"
	"github.com/sitewise/platform/internal/domain/audit"
	"github.com/sitewise/platform/internal/domain/rbac"
	"github.com/sitewise/platform/internal/domain/user"
)

// memStore is an in-memory rbac.Store. It mirrors the repository
// semantics closely enough that the engine's caching and invalidation
// behavior can be exercised without a database.
type memStore struct {
	companies    map[int64]*rbac.Company
	permissions  map[uuid.UUID]*rbac.Permission
	templates    map[uuid.UUID]*rbac.RoleTemplate
	roles        map[uuid.UUID]*rbac.Role
	grants       []*rbac.RolePermission
	companyUsers []*rbac.CompanyUser
	projects     []*rbac.ProjectAssignment
	cache        *cache.MemoryPermissionCache
}

func newMemStore() *memStore {
	return &memStore{
		companies:   make(map[int64]*rbac.Company),
		permissions: make(map[uuid.UUID]*rbac.Permission),
		templates:   make(map[uuid.UUID]*rbac.RoleTemplate),
		roles:       make(map[uuid.UUID]*rbac.Role),
		cache:       cache.NewMemoryPermissionCache(),
	}
}

func (m *memStore) Companies() rbac.CompanyRepository      { return (*memCompanies)(m) }
func (m *memStore) Permissions() rbac.PermissionRepository { return (*memPermissions)(m) }
func (m *memStore) Templates() rbac.RoleTemplateRepository { return (*memTemplates)(m) }
func (m *memStore) Roles() rbac.RoleRepository             { return (*memRoles)(m) }
func (m *memStore) Assignments() rbac.AssignmentRepository { return (*memAssignments)(m) }
func (m *memStore) Cache() rbac.PermissionCache            { return m.cache }

func (m *memStore) RunInTx(_ context.Context, fn func(rbac.Store) error) error {
	return fn(m)
}

type memCompanies memStore

func (m *memCompanies) Create(_ context.Context, company *rbac.Company) error {
	m.companies[company.ID] = company
	return nil
}

func (m *memCompanies) GetByID(_ context.Context, id int64) (*rbac.Company, error) {
	company, ok := m.companies[id]
	if !ok {
		return nil, rbac.ErrCompanyNotFound
	}
	return company, nil
}

func (m *memCompanies) GetByDomain(_ context.Context, domain string) (*rbac.Company, error) {
	for _, company := range m.companies {
		if company.Domain == domain {
			return company, nil
		}
	}
	return nil, rbac.ErrCompanyNotFound
}

func (m *memCompanies) Update(_ context.Context, company *rbac.Company) error {
	if _, ok := m.companies[company.ID]; !ok {
		return rbac.ErrCompanyNotFound
	}
	m.companies[company.ID] = company
	return nil
}

func (m *memCompanies) List(_ context.Context) ([]*rbac.Company, error) {
	out := make([]*rbac.Company, 0, len(m.companies))
	for _, company := range m.companies {
		out = append(out, company)
	}
	return out, nil
}

type memPermissions memStore

func (m *memPermissions) Create(_ context.Context, permission *rbac.Permission) error {
	m.permissions[permission.ID] = permission
	return nil
}

func (m *memPermissions) GetByID(_ context.Context, id uuid.UUID) (*rbac.Permission, error) {
	permission, ok := m.permissions[id]
	if !ok {
		return nil, rbac.ErrPermissionNotFound
	}
	return permission, nil
}

func (m *memPermissions) GetByResourceAction(_ context.Context, resource, action string) (*rbac.Permission, error) {
	for _, permission := range m.permissions {
		if permission.Resource == resource && permission.Action == action {
			return permission, nil
		}
	}
	return nil, rbac.ErrPermissionNotFound
}

func (m *memPermissions) List(_ context.Context) ([]*rbac.Permission, error) {
	out := make([]*rbac.Permission, 0, len(m.permissions))
	for _, permission := range m.permissions {
		out = append(out, permission)
	}
	return out, nil
}

type memTemplates memStore

func (m *memTemplates) Create(_ context.Context, template *rbac.RoleTemplate) error {
	m.templates[template.ID] = template
	return nil
}

func (m *memTemplates) GetByID(_ context.Context, id uuid.UUID) (*rbac.RoleTemplate, error) {
	template, ok := m.templates[id]
	if !ok {
		return nil, rbac.ErrTemplateNotFound
	}
	return template, nil
}

func (m *memTemplates) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*rbac.RoleTemplate, error) {
	var out []*rbac.RoleTemplate
	for _, id := range ids {
		if template, ok := m.templates[id]; ok {
			out = append(out, template)
		}
	}
	return out, nil
}

func (m *memTemplates) Update(_ context.Context, template *rbac.RoleTemplate) error {
	if _, ok := m.templates[template.ID]; !ok {
		return rbac.ErrTemplateNotFound
	}
	m.templates[template.ID] = template
	return nil
}

func (m *memTemplates) List(_ context.Context, category string) ([]*rbac.RoleTemplate, error) {
	var out []*rbac.RoleTemplate
	for _, template := range m.templates {
		if category == "" || template.Category == category {
			out = append(out, template)
		}
	}
	return out, nil
}

type memRoles memStore

func (m *memRoles) Create(_ context.Context, role *rbac.Role) error {
	m.roles[role.ID] = role
	return nil
}

func (m *memRoles) GetByID(_ context.Context, id uuid.UUID) (*rbac.Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return nil, rbac.ErrRoleNotFound
	}
	return role, nil
}

func (m *memRoles) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*rbac.Role, error) {
	var out []*rbac.Role
	for _, id := range ids {
		if role, ok := m.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (m *memRoles) GetByName(_ context.Context, companyID *int64, name string) (*rbac.Role, error) {
	for _, role := range m.roles {
		if role.Name != name {
			continue
		}
		if companyID == nil && role.CompanyID == nil {
			return role, nil
		}
		if companyID != nil && role.CompanyID != nil && *companyID == *role.CompanyID {
			return role, nil
		}
	}
	return nil, rbac.ErrRoleNotFound
}

func (m *memRoles) Update(_ context.Context, role *rbac.Role) error {
	if _, ok := m.roles[role.ID]; !ok {
		return rbac.ErrRoleNotFound
	}
	m.roles[role.ID] = role
	return nil
}

func (m *memRoles) ListByCompany(_ context.Context, companyID int64) ([]*rbac.Role, error) {
	var out []*rbac.Role
	for _, role := range m.roles {
		if role.CompanyID != nil && *role.CompanyID == companyID {
			out = append(out, role)
		}
	}
	return out, nil
}

func (m *memRoles) GrantPermission(_ context.Context, grant *rbac.RolePermission) error {
	m.grants = append(m.grants, grant)
	return nil
}

func (m *memRoles) RevokePermission(_ context.Context, roleID, permissionID uuid.UUID) error {
	revoked := false
	for _, grant := range m.grants {
		if grant.RoleID == roleID && grant.PermissionID == permissionID && grant.Lifecycle.State == rbac.StateActive {
			grant.Lifecycle.Revoke()
			revoked = true
		}
	}
	if !revoked {
		return rbac.ErrPermissionNotFound
	}
	return nil
}

func (m *memRoles) GetRolePermissions(_ context.Context, roleID uuid.UUID) ([]*rbac.RolePermission, error) {
	var out []*rbac.RolePermission
	for _, grant := range m.grants {
		if grant.RoleID == roleID {
			out = append(out, grant)
		}
	}
	return out, nil
}

func (m *memRoles) ListActivePermissionIDs(_ context.Context, roleIDs []uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	wanted := make(map[uuid.UUID]bool, len(roleIDs))
	for _, id := range roleIDs {
		wanted[id] = true
	}
	var out []uuid.UUID
	for _, grant := range m.grants {
		if wanted[grant.RoleID] && grant.Lifecycle.ActiveAt(now) {
			out = append(out, grant.PermissionID)
		}
	}
	return out, nil
}

type memAssignments memStore

func (m *memAssignments) AssignUserToCompany(_ context.Context, assignment *rbac.CompanyUser) error {
	m.companyUsers = append(m.companyUsers, assignment)
	return nil
}

func (m *memAssignments) RevokeUserFromCompany(_ context.Context, companyID int64, userID, roleID uuid.UUID) error {
	revoked := false
	for _, cu := range m.companyUsers {
		if cu.CompanyID == companyID && cu.UserID == userID && cu.RoleID == roleID && cu.Lifecycle.State == rbac.StateActive {
			cu.Lifecycle.Revoke()
			revoked = true
		}
	}
	if !revoked {
		return rbac.ErrCompanyAccessDenied
	}
	return nil
}

func (m *memAssignments) ListActiveCompanyUsers(_ context.Context, companyID int64, userID uuid.UUID, now time.Time) ([]*rbac.CompanyUser, error) {
	var out []*rbac.CompanyUser
	for _, cu := range m.companyUsers {
		if cu.CompanyID == companyID && cu.UserID == userID && cu.Lifecycle.ActiveAt(now) {
			out = append(out, cu)
		}
	}
	return out, nil
}

func (m *memAssignments) ListCompanyUsersByRole(_ context.Context, roleID uuid.UUID, now time.Time) ([]*rbac.CompanyUser, error) {
	var out []*rbac.CompanyUser
	for _, cu := range m.companyUsers {
		if cu.RoleID == roleID && cu.Lifecycle.ActiveAt(now) {
			out = append(out, cu)
		}
	}
	return out, nil
}

func (m *memAssignments) ListCompanyMembers(_ context.Context, companyID int64, now time.Time) ([]*rbac.CompanyUser, error) {
	var out []*rbac.CompanyUser
	for _, cu := range m.companyUsers {
		if cu.CompanyID == companyID && cu.Lifecycle.ActiveAt(now) {
			out = append(out, cu)
		}
	}
	return out, nil
}

func (m *memAssignments) AssignUserToProject(_ context.Context, assignment *rbac.ProjectAssignment) error {
	m.projects = append(m.projects, assignment)
	return nil
}

func (m *memAssignments) RevokeUserFromProject(_ context.Context, companyID int64, projectID, userID uuid.UUID) error {
	for _, pa := range m.projects {
		if pa.CompanyID == companyID && pa.ProjectID == projectID && pa.UserID == userID && pa.Lifecycle.State == rbac.StateActive {
			pa.Lifecycle.Revoke()
		}
	}
	return nil
}

func (m *memAssignments) ListActiveProjectAssignments(_ context.Context, companyID int64, userID uuid.UUID, now time.Time) ([]*rbac.ProjectAssignment, error) {
	var out []*rbac.ProjectAssignment
	for _, pa := range m.projects {
		if pa.CompanyID == companyID && pa.UserID == userID && pa.Lifecycle.ActiveAt(now) {
			out = append(out, pa)
		}
	}
	return out, nil
}

// memUsers is an in-memory user.Repository.
type memUsers struct {
	users map[uuid.UUID]*user.User
}

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *memUsers) Update(_ context.Context, u *user.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) UpdateLastLogin(_ context.Context, id uuid.UUID) error {
	if u, ok := m.users[id]; ok {
		now := time.Now()
		u.LastLoginAt = &now
	}
	return nil
}

// recordingAudit captures entries instead of persisting them.
type recordingAudit struct {
	entries []*audit.Entry
}

func (r *recordingAudit) Log(_ context.Context, entry *audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *recordingAudit) GetLogs(_ context.Context, companyID int64, _ audit.Filter) ([]*audit.Entry, error) {
	var out []*audit.Entry
	for _, entry := range r.entries {
		if entry.CompanyID == companyID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *recordingAudit) actions() []audit.Action {
	out := make([]audit.Action, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Action)
	}
	return out
}

// fixture bundles a service over fresh in-memory backends with a
// controllable clock.
type fixture struct {
	svc   *RBACService
	store *memStore
	users *memUsers
	audit *recordingAudit
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemStore()
	users := &memUsers{users: make(map[uuid.UUID]*user.User)}
	auditRec := &recordingAudit{}

	f := &fixture{
		svc:   NewRBACService(store, users, auditRec, nil, time.Hour),
		store: store,
		users: users,
		audit: auditRec,
		now:   time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) addCompany(t *testing.T, id int64) *rbac.Company {
	t.Helper()
	company := &rbac.Company{ID: id, Name: "Company", Status: rbac.CompanyStatusActive}
	require.NoError(t, f.svc.CreateCompany(context.Background(), company))
	return company
}

func (f *fixture) addUser(t *testing.T) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, f.users.Create(context.Background(), &user.User{
		ID: id, Email: id.String() + "@example.com", Active: true,
	}))
	return id
}

func (f *fixture) addPermission(t *testing.T, resource, action string) uuid.UUID {
	t.Helper()
	permission := &rbac.Permission{Name: resource + ":" + action, Resource: resource, Action: action}
	require.NoError(t, f.svc.CreatePermission(context.Background(), permission))
	return permission.ID
}

func (f *fixture) addRole(t *testing.T, companyID int64, name string) *rbac.Role {
	t.Helper()
	role := &rbac.Role{CompanyID: &companyID, Name: name}
	require.NoError(t, f.svc.CreateRole(context.Background(), role, uuid.New()))
	return role
}

func TestCreateCompany_ReservedID(t *testing.T) {
	f := newFixture(t)

	err := f.svc.CreateCompany(context.Background(), &rbac.Company{ID: rbac.PlatformCompanyID, Name: "Evil"})
	assert.ErrorIs(t, err, rbac.ErrReservedCompanyID)
}

func TestCreateCompany_DomainTaken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.CreateCompany(ctx, &rbac.Company{ID: 1, Name: "Acme", Domain: "acme.example.com"}))

	err := f.svc.CreateCompany(ctx, &rbac.Company{ID: 2, Name: "Acme Clone", Domain: "acme.example.com"})
	assert.ErrorIs(t, err, rbac.ErrDomainTaken)

	// A blank domain is never checked for uniqueness.
	require.NoError(t, f.svc.CreateCompany(ctx, &rbac.Company{ID: 3, Name: "No Domain"}))
	require.NoError(t, f.svc.CreateCompany(ctx, &rbac.Company{ID: 4, Name: "Also No Domain"}))
}

func TestComputeEffectivePermissions_Union(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)

	basePerm := f.addPermission(t, "projects", "read")
	templatePerm := f.addPermission(t, "documents", "read")
	customPerm := f.addPermission(t, "reports", "create")
	projectPerm := f.addPermission(t, "punchlists", "manage")

	template := &rbac.RoleTemplate{Name: "viewer", PermissionIDs: []uuid.UUID{templatePerm}}
	require.NoError(t, f.svc.CreateRoleTemplate(ctx, template))

	role := &rbac.Role{
		CompanyID:         func() *int64 { id := int64(1); return &id }(),
		Name:              "site_engineer",
		TemplateID:        &template.ID,
		CustomPermissions: []uuid.UUID{customPerm},
	}
	require.NoError(t, f.svc.CreateRole(ctx, role, actor))
	require.NoError(t, f.svc.AssignPermissionToRole(ctx, role.ID, basePerm, actor, nil))
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))
	require.NoError(t, f.svc.AssignUserToProject(ctx, 1, uuid.New(), userID, []uuid.UUID{projectPerm, basePerm}, actor))

	eff, err := f.svc.ComputeUserEffectivePermissions(ctx, userID, 1)
	require.NoError(t, err)

	// basePerm appears in both the role grant and the project extras but
	// is counted once.
	assert.Len(t, eff.PermissionIDs, 4)
	assert.True(t, eff.Has(basePerm))
	assert.True(t, eff.Has(templatePerm))
	assert.True(t, eff.Has(customPerm))
	assert.True(t, eff.Has(projectPerm))
	require.Len(t, eff.Roles, 1)
	assert.Equal(t, "site_engineer", eff.Roles[0].Name)
	assert.Equal(t, f.now, eff.ComputedAt)
	assert.Equal(t, f.now.Add(time.Hour), eff.ExpiresAt)
}

func TestComputeEffectivePermissions_EmptyStateCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addCompany(t, 1)
	userID := f.addUser(t)

	eff, err := f.svc.GetUserEffectivePermissions(ctx, userID, 1)
	require.NoError(t, err)
	assert.Empty(t, eff.PermissionIDs)
	assert.Empty(t, eff.Roles)

	// The empty result landed in the cache.
	cached, err := f.store.cache.Get(ctx, 1, userID, f.now)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Empty(t, cached.PermissionIDs)
}

func TestGetEffectivePermissions_ServesCacheUntilExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	perm := f.addPermission(t, "projects", "read")
	role := f.addRole(t, 1, "viewer")
	require.NoError(t, f.svc.AssignPermissionToRole(ctx, role.ID, perm, actor, nil))
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))

	first, err := f.svc.GetUserEffectivePermissions(ctx, userID, 1)
	require.NoError(t, err)
	assert.True(t, first.Has(perm))

	// Mutate the backing data without going through the service. The
	// cached entry keeps answering until its TTL passes.
	f.store.grants = nil

	f.advance(30 * time.Minute)
	cached, err := f.svc.GetUserEffectivePermissions(ctx, userID, 1)
	require.NoError(t, err)
	assert.True(t, cached.Has(perm))
	assert.Equal(t, first.ComputedAt, cached.ComputedAt)

	f.advance(31 * time.Minute)
	recomputed, err := f.svc.GetUserEffectivePermissions(ctx, userID, 1)
	require.NoError(t, err)
	assert.False(t, recomputed.Has(perm))
	assert.NotEqual(t, first.ComputedAt, recomputed.ComputedAt)
}

func TestComputeEffectivePermissions_ExpiredAssignmentExcluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	perm := f.addPermission(t, "projects", "read")
	role := f.addRole(t, 1, "temp_contractor")
	require.NoError(t, f.svc.AssignPermissionToRole(ctx, role.ID, perm, actor, nil))

	expiresAt := f.now.Add(30 * time.Minute)
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, &expiresAt))

	eff, err := f.svc.ComputeUserEffectivePermissions(ctx, userID, 1)
	require.NoError(t, err)
	assert.True(t, eff.Has(perm))

	f.advance(30 * time.Minute)
	eff, err = f.svc.ComputeUserEffectivePermissions(ctx, userID, 1)
	require.NoError(t, err)
	assert.False(t, eff.Has(perm), "assignment expired exactly at expires_at")
	assert.Empty(t, eff.Roles)
}

func TestComputeEffectivePermissions_ExpiredGrantExcluded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	perm := f.addPermission(t, "projects", "read")
	role := f.addRole(t, 1, "viewer")

	expiresAt := f.now.Add(10 * time.Minute)
	require.NoError(t, f.svc.AssignPermissionToRole(ctx, role.ID, perm, actor, &expiresAt))
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))

	f.advance(11 * time.Minute)
	eff, err := f.svc.ComputeUserEffectivePermissions(ctx, userID, 1)
	require.NoError(t, err)
	assert.False(t, eff.Has(perm))
	// The role itself is still held, just without the expired grant.
	assert.Len(t, eff.Roles, 1)
}

func TestComputeEffectivePermissions_SuspendedCompany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	company := f.addCompany(t, 1)
	userID := f.addUser(t)

	company.Status = rbac.CompanyStatusSuspended
	require.NoError(t, f.store.Companies().Update(ctx, company))

	_, err := f.svc.ComputeUserEffectivePermissions(ctx, userID, 1)
	assert.ErrorIs(t, err, rbac.ErrCompanySuspended)
}

func TestGrantThenCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	perm := f.addPermission(t, "budgets", "approve")
	role := f.addRole(t, 1, "project_manager")
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))

	allowed, err := f.svc.HasPermission(ctx, userID, 1, perm)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Granting to the role invalidates every holder's cache, so the
	// next check sees the new permission immediately.
	require.NoError(t, f.svc.AssignPermissionToRole(ctx, role.ID, perm, actor, nil))

	allowed, err = f.svc.HasPermission(ctx, userID, 1, perm)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRevokeThenCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	perm := f.addPermission(t, "budgets", "approve")
	role := f.addRole(t, 1, "project_manager")
	require.NoError(t, f.svc.AssignPermissionToRole(ctx, role.ID, perm, actor, nil))
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))

	allowed, err := f.svc.HasPermission(ctx, userID, 1, perm)
	require.NoError(t, err)
	require.True(t, allowed)

	// Revocation invalidates symmetrically with assignment; the stale
	// cache entry cannot answer the next check.
	require.NoError(t, f.svc.RevokePermissionFromRole(ctx, role.ID, perm, actor))

	allowed, err = f.svc.HasPermission(ctx, userID, 1, perm)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRoleUpdateFansOutToAllHolders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	alice := f.addUser(t)
	bob := f.addUser(t)
	perm := f.addPermission(t, "drawings", "upload")
	role := f.addRole(t, 1, "site_engineer")
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, alice, role.ID, actor, nil))
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, bob, role.ID, actor, nil))

	for _, userID := range []uuid.UUID{alice, bob} {
		allowed, err := f.svc.HasPermission(ctx, userID, 1, perm)
		require.NoError(t, err)
		require.False(t, allowed)
	}

	updated := *role
	updated.CustomPermissions = []uuid.UUID{perm}
	require.NoError(t, f.svc.UpdateRole(ctx, &updated, actor))

	for _, userID := range []uuid.UUID{alice, bob} {
		allowed, err := f.svc.HasPermission(ctx, userID, 1, perm)
		require.NoError(t, err)
		assert.True(t, allowed, "holder %s sees the update immediately", userID)
	}
}

func TestDeleteRoleRemovesItFromEffectiveSets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	perm := f.addPermission(t, "projects", "read")
	role := f.addRole(t, 1, "viewer")
	require.NoError(t, f.svc.AssignPermissionToRole(ctx, role.ID, perm, actor, nil))
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))

	allowed, err := f.svc.HasPermission(ctx, userID, 1, perm)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, f.svc.DeleteRole(ctx, role.ID, actor))

	allowed, err = f.svc.HasPermission(ctx, userID, 1, perm)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRevokeUserFromCompany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	perm := f.addPermission(t, "projects", "read")
	role := f.addRole(t, 1, "viewer")
	require.NoError(t, f.svc.AssignPermissionToRole(ctx, role.ID, perm, actor, nil))
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))

	allowed, err := f.svc.HasPermission(ctx, userID, 1, perm)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, f.svc.RevokeUserFromCompany(ctx, 1, userID, role.ID, actor))

	allowed, err = f.svc.HasPermission(ctx, userID, 1, perm)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestAssignUserToCompany_DuplicateTriple(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	role := f.addRole(t, 1, "viewer")

	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))
	err := f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil)
	assert.ErrorIs(t, err, rbac.ErrRoleAlreadyAssigned)

	// Revoking frees the triple for re-assignment.
	require.NoError(t, f.svc.RevokeUserFromCompany(ctx, 1, userID, role.ID, actor))
	assert.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))
}

func TestAssignPermissionToRole_DuplicateGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	perm := f.addPermission(t, "projects", "read")
	role := f.addRole(t, 1, "viewer")

	require.NoError(t, f.svc.AssignPermissionToRole(ctx, role.ID, perm, actor, nil))
	err := f.svc.AssignPermissionToRole(ctx, role.ID, perm, actor, nil)
	assert.ErrorIs(t, err, rbac.ErrPermissionAlreadyGranted)
}

func TestAssignUserToCompany_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	f.addCompany(t, 2)
	userID := f.addUser(t)
	role := f.addRole(t, 2, "viewer")

	t.Run("unknown company", func(t *testing.T) {
		err := f.svc.AssignUserToCompany(ctx, 99, userID, role.ID, actor, nil)
		assert.ErrorIs(t, err, rbac.ErrInvalidConfiguration)
	})

	t.Run("unknown user", func(t *testing.T) {
		err := f.svc.AssignUserToCompany(ctx, 1, uuid.New(), role.ID, actor, nil)
		assert.ErrorIs(t, err, rbac.ErrInvalidConfiguration)
	})

	t.Run("unknown role", func(t *testing.T) {
		err := f.svc.AssignUserToCompany(ctx, 1, userID, uuid.New(), actor, nil)
		assert.ErrorIs(t, err, rbac.ErrInvalidConfiguration)
	})

	t.Run("role from another company", func(t *testing.T) {
		err := f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil)
		assert.ErrorIs(t, err, rbac.ErrInvalidConfiguration)
	})
}

func TestProjectAssignmentOverlay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	perm := f.addPermission(t, "punchlists", "manage")
	projectID := uuid.New()

	// No role anywhere, just a project grant.
	require.NoError(t, f.svc.AssignUserToProject(ctx, 1, projectID, userID, []uuid.UUID{perm}, actor))

	allowed, err := f.svc.HasPermission(ctx, userID, 1, perm)
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, f.svc.RevokeUserFromProject(ctx, 1, projectID, userID, actor))

	allowed, err = f.svc.HasPermission(ctx, userID, 1, perm)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestInstantiateTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	perm := f.addPermission(t, "documents", "read")

	template := &rbac.RoleTemplate{Name: "document_viewer", Category: "field", PermissionIDs: []uuid.UUID{perm}}
	require.NoError(t, f.svc.CreateRoleTemplate(ctx, template))

	role, err := f.svc.InstantiateTemplate(ctx, 1, template.ID, "doc_viewer", actor)
	require.NoError(t, err)
	require.NotNil(t, role.TemplateID)
	assert.Equal(t, template.ID, *role.TemplateID)
	require.NotNil(t, role.CompanyID)
	assert.Equal(t, int64(1), *role.CompanyID)

	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))

	allowed, err := f.svc.HasPermission(ctx, userID, 1, perm)
	require.NoError(t, err)
	assert.True(t, allowed, "template bundle flows through the instantiated role")

	_, err = f.svc.InstantiateTemplate(ctx, 1, uuid.New(), "ghost", actor)
	assert.ErrorIs(t, err, rbac.ErrInvalidConfiguration)
}

func TestPromoteToPlatform(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()
	userID := f.addUser(t)

	platform, err := f.svc.IsPlatformUser(ctx, userID)
	require.NoError(t, err)
	require.False(t, platform)

	// First promotion bootstraps the platform company and admin role.
	require.NoError(t, f.svc.PromoteToPlatform(ctx, userID, actor))

	platform, err = f.svc.IsPlatformUser(ctx, userID)
	require.NoError(t, err)
	assert.True(t, platform)

	_, err = f.store.Companies().GetByID(ctx, rbac.PlatformCompanyID)
	require.NoError(t, err)
	adminRole, err := f.store.Roles().GetByName(ctx, nil, rbac.PlatformAdminRoleName)
	require.NoError(t, err)
	assert.Nil(t, adminRole.CompanyID)

	// Promoting again is a no-op, not an error.
	require.NoError(t, f.svc.PromoteToPlatform(ctx, userID, actor))

	members, err := f.svc.GetPlatformUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestInvalidateUserPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addCompany(t, 1)
	userID := f.addUser(t)

	_, err := f.svc.GetUserEffectivePermissions(ctx, userID, 1)
	require.NoError(t, err)
	require.Equal(t, 1, f.store.cache.Len())

	require.NoError(t, f.svc.InvalidateUserPermissions(ctx, userID, 1))
	assert.Equal(t, 0, f.store.cache.Len())

	// Idempotent on an empty cache.
	assert.NoError(t, f.svc.InvalidateUserPermissions(ctx, userID, 1))
}

func TestCacheReplaceNotUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addCompany(t, 1)
	userID := f.addUser(t)

	_, err := f.svc.ComputeUserEffectivePermissions(ctx, userID, 1)
	require.NoError(t, err)
	_, err = f.svc.ComputeUserEffectivePermissions(ctx, userID, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.cache.Len(), "one entry per (company, user) pair")
}

func TestGetUserContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	perm := f.addPermission(t, "projects", "read")
	role := f.addRole(t, 1, "viewer")
	require.NoError(t, f.svc.AssignPermissionToRole(ctx, role.ID, perm, actor, nil))
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))

	userContext, err := f.svc.GetUserContext(ctx, userID, 1)
	require.NoError(t, err)
	assert.Equal(t, userID, userContext.UserID)
	assert.Equal(t, int64(1), userContext.CompanyID)
	assert.False(t, userContext.IsPlatform)
	require.NotNil(t, userContext.Permissions)
	assert.True(t, userContext.Permissions.Has(perm))
}

func TestMutationsAreAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := uuid.New()

	f.addCompany(t, 1)
	userID := f.addUser(t)
	perm := f.addPermission(t, "projects", "read")
	companyID := int64(1)
	role := &rbac.Role{CompanyID: &companyID, Name: "viewer"}
	require.NoError(t, f.svc.CreateRole(ctx, role, actor))
	require.NoError(t, f.svc.AssignPermissionToRole(ctx, role.ID, perm, actor, nil))
	require.NoError(t, f.svc.AssignUserToCompany(ctx, 1, userID, role.ID, actor, nil))
	require.NoError(t, f.svc.RevokePermissionFromRole(ctx, role.ID, perm, actor))
	require.NoError(t, f.svc.RevokeUserFromCompany(ctx, 1, userID, role.ID, actor))

	assert.Equal(t, []audit.Action{
		audit.ActionRoleCreated,
		audit.ActionPermissionGranted,
		audit.ActionRoleAssigned,
		audit.ActionPermissionRevoked,
		audit.ActionRoleRevoked,
	}, f.audit.actions())

	for _, entry := range f.audit.entries {
		assert.Equal(t, actor, entry.ActorID)
		assert.Equal(t, int64(1), entry.CompanyID)
	}
}
