package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitewise/platform/internal/domain/audit"
	"github.com/sitewise/platform/internal/domain/rbac"
	"github.com/sitewise/platform/internal/domain/user"
	"github.com/sitewise/platform/internal/metrics"
)

// RBACService implements the rbac.Service interface: the effective
// permission engine plus the administrative operations around it. Every
// mutation that can change a user's effective set invalidates the
// affected cache entries inside the same store transaction before the
// call returns.
type RBACService struct {
	store    rbac.Store
	users    user.Repository
	auditSvc audit.Service
	logger   *zap.Logger
	cacheTTL time.Duration
	now      func() time.Time
}

// NewRBACService creates a new RBAC service. A zero cacheTTL falls back
// to rbac.DefaultCacheTTL.
func NewRBACService(
	store rbac.Store,
	users user.Repository,
	auditSvc audit.Service,
	logger *zap.Logger,
	cacheTTL time.Duration,
) *RBACService {
	if cacheTTL <= 0 {
		cacheTTL = rbac.DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RBACService{
		store:    store,
		users:    users,
		auditSvc: auditSvc,
		logger:   logger,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// CreateCompany creates a new tenant. The platform id is reserved.
func (s *RBACService) CreateCompany(ctx context.Context, company *rbac.Company) error {
	if company.ID == rbac.PlatformCompanyID {
		return rbac.ErrReservedCompanyID
	}
	if company.Domain != "" {
		existing, err := s.store.Companies().GetByDomain(ctx, company.Domain)
		if err != nil && !errors.Is(err, rbac.ErrCompanyNotFound) {
			return fmt.Errorf("failed to check company domain: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", rbac.ErrDomainTaken, company.Domain)
		}
	}
	now := s.now()
	if company.Status == "" {
		company.Status = rbac.CompanyStatusActive
	}
	company.CreatedAt = now
	company.UpdatedAt = now

	if err := s.store.Companies().Create(ctx, company); err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// GetCompany retrieves a company by ID
func (s *RBACService) GetCompany(ctx context.Context, id int64) (*rbac.Company, error) {
	company, err := s.store.Companies().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return company, nil
}

// ListCompanies lists all companies
func (s *RBACService) ListCompanies(ctx context.Context) ([]*rbac.Company, error) {
	companies, err := s.store.Companies().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

// CreatePermission creates a new catalog entry
func (s *RBACService) CreatePermission(ctx context.Context, permission *rbac.Permission) error {
	if permission.ID == uuid.Nil {
		permission.ID = uuid.New()
	}
	permission.CreatedAt = s.now()

	if err := s.store.Permissions().Create(ctx, permission); err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// GetPermission retrieves a permission by ID
func (s *RBACService) GetPermission(ctx context.Context, id uuid.UUID) (*rbac.Permission, error) {
	permission, err := s.store.Permissions().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return permission, nil
}

// GetPermissionByResourceAction resolves a catalog entry by its
// (resource, action) pair. Route guards use this to turn route
// annotations into permission IDs.
func (s *RBACService) GetPermissionByResourceAction(ctx context.Context, resource, action string) (*rbac.Permission, error) {
	permission, err := s.store.Permissions().GetByResourceAction(ctx, resource, action)
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return permission, nil
}

// ListPermissions lists the full catalog ordered by (category, name)
func (s *RBACService) ListPermissions(ctx context.Context) ([]*rbac.Permission, error) {
	permissions, err := s.store.Permissions().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return permissions, nil
}

// CreateRoleTemplate creates a new reusable permission bundle
func (s *RBACService) CreateRoleTemplate(ctx context.Context, template *rbac.RoleTemplate) error {
	if template.ID == uuid.Nil {
		template.ID = uuid.New()
	}
	now := s.now()
	template.CreatedAt = now
	template.UpdatedAt = now

	if err := s.store.Templates().Create(ctx, template); err != nil {
		return fmt.Errorf("failed to create role template: %w", err)
	}
	return nil
}

// GetRoleTemplate retrieves a template by ID
func (s *RBACService) GetRoleTemplate(ctx context.Context, id uuid.UUID) (*rbac.RoleTemplate, error) {
	template, err := s.store.Templates().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get role template: %w", err)
	}
	return template, nil
}

// ListRoleTemplates lists templates, filtered by category when non-empty
func (s *RBACService) ListRoleTemplates(ctx context.Context, category string) ([]*rbac.RoleTemplate, error) {
	templates, err := s.store.Templates().List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list role templates: %w", err)
	}
	return templates, nil
}

// InstantiateTemplate creates a concrete company role inheriting a
// template's permission bundle.
func (s *RBACService) InstantiateTemplate(ctx context.Context, companyID int64, templateID uuid.UUID, name string, actorID uuid.UUID) (*rbac.Role, error) {
	template, err := s.store.Templates().GetByID(ctx, templateID)
	if err != nil {
		if errors.Is(err, rbac.ErrTemplateNotFound) {
			return nil, fmt.Errorf("%w: template %s", rbac.ErrInvalidConfiguration, templateID)
		}
		return nil, fmt.Errorf("failed to get role template: %w", err)
	}

	role := &rbac.Role{
		CompanyID:  &companyID,
		Name:       name,
		TemplateID: &template.ID,
	}
	if err := s.CreateRole(ctx, role, actorID); err != nil {
		return nil, err
	}
	return role, nil
}

// CreateRole creates a new role
func (s *RBACService) CreateRole(ctx context.Context, role *rbac.Role, actorID uuid.UUID) error {
	if role.CompanyID != nil {
		if _, err := s.store.Companies().GetByID(ctx, *role.CompanyID); err != nil {
			if errors.Is(err, rbac.ErrCompanyNotFound) {
				return fmt.Errorf("%w: company %d", rbac.ErrInvalidConfiguration, *role.CompanyID)
			}
			return fmt.Errorf("failed to get company: %w", err)
		}
	}
	if role.TemplateID != nil {
		if _, err := s.store.Templates().GetByID(ctx, *role.TemplateID); err != nil {
			if errors.Is(err, rbac.ErrTemplateNotFound) {
				return fmt.Errorf("%w: template %s", rbac.ErrInvalidConfiguration, *role.TemplateID)
			}
			return fmt.Errorf("failed to get role template: %w", err)
		}
	}

	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	now := s.now()
	role.Lifecycle = rbac.ActiveLifecycle(nil)
	role.CreatedAt = now
	role.UpdatedAt = now

	if err := s.store.Roles().Create(ctx, role); err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	return s.writeAudit(ctx, roleCompanyID(role), actorID, audit.ActionRoleCreated,
		"role", role.ID.String(), nil, role)
}

// GetRole retrieves a role by ID
func (s *RBACService) GetRole(ctx context.Context, id uuid.UUID) (*rbac.Role, error) {
	role, err := s.store.Roles().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// UpdateRole updates a role. Because the custom permission list lives
// on the role, an update can change effective sets, so the caches of
// every active holder are invalidated in the same transaction.
func (s *RBACService) UpdateRole(ctx context.Context, role *rbac.Role, actorID uuid.UUID) error {
	existing, err := s.store.Roles().GetByID(ctx, role.ID)
	if err != nil {
		return fmt.Errorf("failed to get role: %w", err)
	}

	now := s.now()
	role.UpdatedAt = now

	err = s.store.RunInTx(ctx, func(tx rbac.Store) error {
		if err := tx.Roles().Update(ctx, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
		return s.invalidateRoleHolders(ctx, tx, role.ID, now)
	})
	if err != nil {
		return err
	}

	return s.writeAudit(ctx, roleCompanyID(existing), actorID, audit.ActionRoleUpdated,
		"role", role.ID.String(), existing, role)
}

// DeleteRole soft-deletes a role. History is never removed.
func (s *RBACService) DeleteRole(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	existing, err := s.store.Roles().GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get role: %w", err)
	}

	now := s.now()
	updated := *existing
	updated.Lifecycle.Revoke()
	updated.UpdatedAt = now

	err = s.store.RunInTx(ctx, func(tx rbac.Store) error {
		if err := tx.Roles().Update(ctx, &updated); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return s.invalidateRoleHolders(ctx, tx, id, now)
	})
	if err != nil {
		return err
	}

	return s.writeAudit(ctx, roleCompanyID(existing), actorID, audit.ActionRoleDeleted,
		"role", id.String(), existing, &updated)
}

// ListRoles lists a company's roles
func (s *RBACService) ListRoles(ctx context.Context, companyID int64) ([]*rbac.Role, error) {
	roles, err := s.store.Roles().ListByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// AssignPermissionToRole grants a permission to a role and invalidates
// the cache of every user currently holding that role, not just the
// acting user.
func (s *RBACService) AssignPermissionToRole(ctx context.Context, roleID, permissionID, actorID uuid.UUID, expiresAt *time.Time) error {
	role, err := s.store.Roles().GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			return fmt.Errorf("%w: role %s", rbac.ErrInvalidConfiguration, roleID)
		}
		return fmt.Errorf("failed to get role: %w", err)
	}
	if _, err := s.store.Permissions().GetByID(ctx, permissionID); err != nil {
		if errors.Is(err, rbac.ErrPermissionNotFound) {
			return fmt.Errorf("%w: permission %s", rbac.ErrInvalidConfiguration, permissionID)
		}
		return fmt.Errorf("failed to get permission: %w", err)
	}

	now := s.now()
	grant := &rbac.RolePermission{
		RoleID:       roleID,
		PermissionID: permissionID,
		Lifecycle:    rbac.ActiveLifecycle(expiresAt),
		GrantedBy:    actorID,
		GrantedAt:    now,
	}

	err = s.store.RunInTx(ctx, func(tx rbac.Store) error {
		existing, err := tx.Roles().GetRolePermissions(ctx, roleID)
		if err != nil {
			return fmt.Errorf("failed to get role permissions: %w", err)
		}
		for _, rp := range existing {
			if rp.PermissionID == permissionID && rp.Lifecycle.ActiveAt(now) {
				return rbac.ErrPermissionAlreadyGranted
			}
		}
		if err := tx.Roles().GrantPermission(ctx, grant); err != nil {
			return fmt.Errorf("failed to grant permission: %w", err)
		}
		return s.invalidateRoleHolders(ctx, tx, roleID, now)
	})
	if err != nil {
		return err
	}

	return s.writeAudit(ctx, roleCompanyID(role), actorID, audit.ActionPermissionGranted,
		"role_permission", roleID.String(), nil, grant)
}

// RevokePermissionFromRole soft-deactivates a role-permission grant.
// Invalidation fans out to all holders, symmetric with assignment, so a
// revoked permission never outlives the call through a stale cache row.
func (s *RBACService) RevokePermissionFromRole(ctx context.Context, roleID, permissionID, actorID uuid.UUID) error {
	role, err := s.store.Roles().GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			return fmt.Errorf("%w: role %s", rbac.ErrInvalidConfiguration, roleID)
		}
		return fmt.Errorf("failed to get role: %w", err)
	}

	now := s.now()
	err = s.store.RunInTx(ctx, func(tx rbac.Store) error {
		if err := tx.Roles().RevokePermission(ctx, roleID, permissionID); err != nil {
			return fmt.Errorf("failed to revoke permission: %w", err)
		}
		return s.invalidateRoleHolders(ctx, tx, roleID, now)
	})
	if err != nil {
		return err
	}

	return s.writeAudit(ctx, roleCompanyID(role), actorID, audit.ActionPermissionRevoked,
		"role_permission", roleID.String(), permissionID, nil)
}

// AssignUserToCompany binds a user to a company with one role
func (s *RBACService) AssignUserToCompany(ctx context.Context, companyID int64, userID, roleID, actorID uuid.UUID, expiresAt *time.Time) error {
	company, err := s.store.Companies().GetByID(ctx, companyID)
	if err != nil {
		if errors.Is(err, rbac.ErrCompanyNotFound) {
			return fmt.Errorf("%w: company %d", rbac.ErrInvalidConfiguration, companyID)
		}
		return fmt.Errorf("failed to get company: %w", err)
	}
	if company.Status != rbac.CompanyStatusActive {
		return rbac.ErrCompanySuspended
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return fmt.Errorf("%w: user %s", rbac.ErrInvalidConfiguration, userID)
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	role, err := s.store.Roles().GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			return fmt.Errorf("%w: role %s", rbac.ErrInvalidConfiguration, roleID)
		}
		return fmt.Errorf("failed to get role: %w", err)
	}
	if role.CompanyID != nil && *role.CompanyID != companyID {
		return fmt.Errorf("%w: role %s belongs to company %d", rbac.ErrInvalidConfiguration, roleID, *role.CompanyID)
	}

	now := s.now()
	assignment := &rbac.CompanyUser{
		CompanyID: companyID,
		UserID:    userID,
		RoleID:    roleID,
		Lifecycle: rbac.ActiveLifecycle(expiresAt),
		GrantedBy: actorID,
		GrantedAt: now,
	}

	err = s.store.RunInTx(ctx, func(tx rbac.Store) error {
		existing, err := tx.Assignments().ListActiveCompanyUsers(ctx, companyID, userID, now)
		if err != nil {
			return fmt.Errorf("failed to get company assignments: %w", err)
		}
		for _, cu := range existing {
			if cu.RoleID == roleID {
				return rbac.ErrRoleAlreadyAssigned
			}
		}
		if err := tx.Assignments().AssignUserToCompany(ctx, assignment); err != nil {
			return fmt.Errorf("failed to assign user to company: %w", err)
		}
		if err := tx.Cache().Invalidate(ctx, companyID, userID); err != nil {
			return fmt.Errorf("failed to invalidate permission cache: %w", err)
		}
		metrics.CacheInvalidations.Inc()
		return nil
	})
	if err != nil {
		return err
	}

	return s.writeAudit(ctx, companyID, actorID, audit.ActionRoleAssigned,
		"company_user", userID.String(), nil, assignment)
}

// RevokeUserFromCompany soft-revokes a company assignment and
// invalidates the affected user's cache so a pre-revocation entry can
// never answer the next check.
func (s *RBACService) RevokeUserFromCompany(ctx context.Context, companyID int64, userID, roleID, actorID uuid.UUID) error {
	err := s.store.RunInTx(ctx, func(tx rbac.Store) error {
		if err := tx.Assignments().RevokeUserFromCompany(ctx, companyID, userID, roleID); err != nil {
			return fmt.Errorf("failed to revoke user from company: %w", err)
		}
		if err := tx.Cache().Invalidate(ctx, companyID, userID); err != nil {
			return fmt.Errorf("failed to invalidate permission cache: %w", err)
		}
		metrics.CacheInvalidations.Inc()
		return nil
	})
	if err != nil {
		return err
	}

	return s.writeAudit(ctx, companyID, actorID, audit.ActionRoleRevoked,
		"company_user", userID.String(), roleID, nil)
}

// AssignUserToProject grants a user project-scoped extra permissions
func (s *RBACService) AssignUserToProject(ctx context.Context, companyID int64, projectID, userID uuid.UUID, extraPermissions []uuid.UUID, actorID uuid.UUID) error {
	if _, err := s.store.Companies().GetByID(ctx, companyID); err != nil {
		if errors.Is(err, rbac.ErrCompanyNotFound) {
			return fmt.Errorf("%w: company %d", rbac.ErrInvalidConfiguration, companyID)
		}
		return fmt.Errorf("failed to get company: %w", err)
	}

	now := s.now()
	assignment := &rbac.ProjectAssignment{
		CompanyID:        companyID,
		ProjectID:        projectID,
		UserID:           userID,
		ExtraPermissions: extraPermissions,
		Lifecycle:        rbac.ActiveLifecycle(nil),
		GrantedBy:        actorID,
		GrantedAt:        now,
	}

	err := s.store.RunInTx(ctx, func(tx rbac.Store) error {
		if err := tx.Assignments().AssignUserToProject(ctx, assignment); err != nil {
			return fmt.Errorf("failed to assign user to project: %w", err)
		}
		// Project grants feed the company-wide effective set, so this
		// mutation invalidates like every other.
		if err := tx.Cache().Invalidate(ctx, companyID, userID); err != nil {
			return fmt.Errorf("failed to invalidate permission cache: %w", err)
		}
		metrics.CacheInvalidations.Inc()
		return nil
	})
	if err != nil {
		return err
	}

	return s.writeAudit(ctx, companyID, actorID, audit.ActionProjectAssigned,
		"project_assignment", projectID.String(), nil, assignment)
}

// RevokeUserFromProject soft-revokes a project assignment
func (s *RBACService) RevokeUserFromProject(ctx context.Context, companyID int64, projectID, userID, actorID uuid.UUID) error {
	err := s.store.RunInTx(ctx, func(tx rbac.Store) error {
		if err := tx.Assignments().RevokeUserFromProject(ctx, companyID, projectID, userID); err != nil {
			return fmt.Errorf("failed to revoke user from project: %w", err)
		}
		if err := tx.Cache().Invalidate(ctx, companyID, userID); err != nil {
			return fmt.Errorf("failed to invalidate permission cache: %w", err)
		}
		metrics.CacheInvalidations.Inc()
		return nil
	})
	if err != nil {
		return err
	}

	return s.writeAudit(ctx, companyID, actorID, audit.ActionProjectRevoked,
		"project_assignment", projectID.String(), userID, nil)
}

// ComputeUserEffectivePermissions resolves the full permission set for
// a (user, company) pair: the union of permissions on all active,
// non-expired roles the user holds in the company, each role's template
// bundle and custom list, and extra permissions from active project
// assignments. The result is cached replace-not-update; an empty result
// is cached too, so unassigned users don't trigger recomputation on
// every check.
func (s *RBACService) ComputeUserEffectivePermissions(ctx context.Context, userID uuid.UUID, companyID int64) (*rbac.EffectivePermissions, error) {
	timer := metrics.ComputeTimer()
	defer timer.ObserveDuration()

	company, err := s.store.Companies().GetByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	if company.Status != rbac.CompanyStatusActive {
		return nil, rbac.ErrCompanySuspended
	}

	now := s.now()
	entry := &rbac.EffectivePermissions{
		UserID:        userID,
		CompanyID:     companyID,
		PermissionIDs: []uuid.UUID{},
		Roles:         []rbac.RoleSummary{},
		ComputedAt:    now,
		ExpiresAt:     now.Add(s.cacheTTL),
	}

	assignments, err := s.store.Assignments().ListActiveCompanyUsers(ctx, companyID, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get company assignments: %w", err)
	}

	if len(assignments) > 0 {
		roleIDs := make([]uuid.UUID, 0, len(assignments))
		seenRole := make(map[uuid.UUID]bool, len(assignments))
		for _, cu := range assignments {
			if !seenRole[cu.RoleID] {
				seenRole[cu.RoleID] = true
				roleIDs = append(roleIDs, cu.RoleID)
			}
		}

		roles, err := s.store.Roles().GetByIDs(ctx, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to get roles: %w", err)
		}

		set := make(map[uuid.UUID]bool)
		var add = func(ids []uuid.UUID) {
			for _, id := range ids {
				if !set[id] {
					set[id] = true
					entry.PermissionIDs = append(entry.PermissionIDs, id)
				}
			}
		}

		activeRoleIDs := make([]uuid.UUID, 0, len(roles))
		templateIDs := make([]uuid.UUID, 0, len(roles))
		for _, role := range roles {
			if !role.Lifecycle.ActiveAt(now) {
				continue
			}
			activeRoleIDs = append(activeRoleIDs, role.ID)
			entry.Roles = append(entry.Roles, rbac.RoleSummary{
				ID:        role.ID,
				Name:      role.Name,
				CompanyID: role.CompanyID,
				Scope:     "company",
			})
			if role.TemplateID != nil {
				templateIDs = append(templateIDs, *role.TemplateID)
			}
			add(role.CustomPermissions)
		}

		if len(activeRoleIDs) > 0 {
			basePerms, err := s.store.Roles().ListActivePermissionIDs(ctx, activeRoleIDs, now)
			if err != nil {
				return nil, fmt.Errorf("failed to get role permissions: %w", err)
			}
			add(basePerms)
		}

		if len(templateIDs) > 0 {
			templates, err := s.store.Templates().GetByIDs(ctx, templateIDs)
			if err != nil {
				return nil, fmt.Errorf("failed to get role templates: %w", err)
			}
			for _, tmpl := range templates {
				add(tmpl.PermissionIDs)
			}
		}

		projects, err := s.store.Assignments().ListActiveProjectAssignments(ctx, companyID, userID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to get project assignments: %w", err)
		}
		for _, pa := range projects {
			add(pa.ExtraPermissions)
		}
	} else {
		// No role assignments: project grants still apply, and the
		// empty result is cached like any other.
		projects, err := s.store.Assignments().ListActiveProjectAssignments(ctx, companyID, userID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to get project assignments: %w", err)
		}
		set := make(map[uuid.UUID]bool)
		for _, pa := range projects {
			for _, id := range pa.ExtraPermissions {
				if !set[id] {
					set[id] = true
					entry.PermissionIDs = append(entry.PermissionIDs, id)
				}
			}
		}
	}

	if err := s.store.Cache().Put(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to cache effective permissions: %w", err)
	}
	metrics.Computations.Inc()

	s.logger.Debug("computed effective permissions",
		zap.String("user_id", userID.String()),
		zap.Int64("company_id", companyID),
		zap.Int("permissions", len(entry.PermissionIDs)),
		zap.Int("roles", len(entry.Roles)))

	return entry, nil
}

// GetUserEffectivePermissions returns the cached entry when present and
// unexpired, computing and caching on miss.
func (s *RBACService) GetUserEffectivePermissions(ctx context.Context, userID uuid.UUID, companyID int64) (*rbac.EffectivePermissions, error) {
	cached, err := s.store.Cache().Get(ctx, companyID, userID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to read permission cache: %w", err)
	}
	if cached != nil {
		metrics.CacheHits.Inc()
		return cached, nil
	}
	metrics.CacheMisses.Inc()
	return s.ComputeUserEffectivePermissions(ctx, userID, companyID)
}

// HasPermission checks membership of one permission in the user's
// effective set for the company.
func (s *RBACService) HasPermission(ctx context.Context, userID uuid.UUID, companyID int64, permissionID uuid.UUID) (bool, error) {
	eff, err := s.GetUserEffectivePermissions(ctx, userID, companyID)
	if err != nil {
		return false, err
	}
	allowed := eff.Has(permissionID)
	metrics.ObserveCheck(allowed)
	return allowed, nil
}

// HasAnyPermissions checks whether the user holds at least one of the
// given permissions.
func (s *RBACService) HasAnyPermissions(ctx context.Context, userID uuid.UUID, companyID int64, permissionIDs []uuid.UUID) (bool, error) {
	eff, err := s.GetUserEffectivePermissions(ctx, userID, companyID)
	if err != nil {
		return false, err
	}
	allowed := eff.HasAny(permissionIDs)
	metrics.ObserveCheck(allowed)
	return allowed, nil
}

// HasAllPermissions checks whether the user holds every given
// permission.
func (s *RBACService) HasAllPermissions(ctx context.Context, userID uuid.UUID, companyID int64, permissionIDs []uuid.UUID) (bool, error) {
	eff, err := s.GetUserEffectivePermissions(ctx, userID, companyID)
	if err != nil {
		return false, err
	}
	allowed := eff.HasAll(permissionIDs)
	metrics.ObserveCheck(allowed)
	return allowed, nil
}

// InvalidateUserPermissions deletes the user's cache entry for the
// company. Idempotent.
func (s *RBACService) InvalidateUserPermissions(ctx context.Context, userID uuid.UUID, companyID int64) error {
	if err := s.store.Cache().Invalidate(ctx, companyID, userID); err != nil {
		return fmt.Errorf("failed to invalidate permission cache: %w", err)
	}
	metrics.CacheInvalidations.Inc()
	return nil
}

// GetUserContext assembles the read-only view route guards and UI
// gating consume: identity fields, the resolved permission set and role
// summaries, last login and MFA flag.
func (s *RBACService) GetUserContext(ctx context.Context, userID uuid.UUID, companyID int64) (*rbac.UserContext, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	eff, err := s.GetUserEffectivePermissions(ctx, userID, companyID)
	if err != nil {
		return nil, err
	}

	isPlatform, err := s.IsPlatformUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &rbac.UserContext{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CompanyID:   companyID,
		Permissions: eff,
		LastLoginAt: u.LastLoginAt,
		MFAEnabled:  u.MFAEnabled,
		IsPlatform:  isPlatform,
	}, nil
}

// IsPlatformUser reports whether the user holds an active assignment in
// the reserved platform company. The bypass this enables is a policy
// decision made by consuming middleware; the engine's permission math
// never special-cases company 0.
func (s *RBACService) IsPlatformUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	assignments, err := s.store.Assignments().ListActiveCompanyUsers(ctx, rbac.PlatformCompanyID, userID, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to get platform assignments: %w", err)
	}
	return len(assignments) > 0, nil
}

// GetPlatformUsers lists every active member of the platform company
func (s *RBACService) GetPlatformUsers(ctx context.Context) ([]*rbac.CompanyUser, error) {
	members, err := s.store.Assignments().ListCompanyMembers(ctx, rbac.PlatformCompanyID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list platform users: %w", err)
	}
	return members, nil
}

// PromoteToPlatform makes a user a platform superuser. The platform
// company and its admin role are created on first use; promoting an
// existing member is a no-op. The promotion is always audited.
func (s *RBACService) PromoteToPlatform(ctx context.Context, userID, actorID uuid.UUID) error {
	now := s.now()

	err := s.store.RunInTx(ctx, func(tx rbac.Store) error {
		if _, err := tx.Companies().GetByID(ctx, rbac.PlatformCompanyID); err != nil {
			if !errors.Is(err, rbac.ErrCompanyNotFound) {
				return fmt.Errorf("failed to get platform company: %w", err)
			}
			platform := &rbac.Company{
				ID:        rbac.PlatformCompanyID,
				Name:      "Platform",
				Status:    rbac.CompanyStatusActive,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.Companies().Create(ctx, platform); err != nil {
				return fmt.Errorf("failed to create platform company: %w", err)
			}
		}

		adminRole, err := tx.Roles().GetByName(ctx, nil, rbac.PlatformAdminRoleName)
		if err != nil {
			if !errors.Is(err, rbac.ErrRoleNotFound) {
				return fmt.Errorf("failed to get platform role: %w", err)
			}
			adminRole = &rbac.Role{
				ID:          uuid.New(),
				Name:        rbac.PlatformAdminRoleName,
				Description: "Platform administrator",
				Lifecycle:   rbac.ActiveLifecycle(nil),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Roles().Create(ctx, adminRole); err != nil {
				return fmt.Errorf("failed to create platform role: %w", err)
			}
		}

		existing, err := tx.Assignments().ListActiveCompanyUsers(ctx, rbac.PlatformCompanyID, userID, now)
		if err != nil {
			return fmt.Errorf("failed to get platform assignments: %w", err)
		}
		for _, cu := range existing {
			if cu.RoleID == adminRole.ID {
				return nil // already a platform user
			}
		}

		assignment := &rbac.CompanyUser{
			CompanyID: rbac.PlatformCompanyID,
			UserID:    userID,
			RoleID:    adminRole.ID,
			Lifecycle: rbac.ActiveLifecycle(nil),
			GrantedBy: actorID,
			GrantedAt: now,
		}
		if err := tx.Assignments().AssignUserToCompany(ctx, assignment); err != nil {
			return fmt.Errorf("failed to assign platform role: %w", err)
		}
		if err := tx.Cache().Invalidate(ctx, rbac.PlatformCompanyID, userID); err != nil {
			return fmt.Errorf("failed to invalidate permission cache: %w", err)
		}
		metrics.CacheInvalidations.Inc()
		return nil
	})
	if err != nil {
		return err
	}

	return s.writeAudit(ctx, rbac.PlatformCompanyID, actorID, audit.ActionPlatformPromoted,
		"company_user", userID.String(), nil, nil)
}

// invalidateRoleHolders deletes the cache entry of every user holding
// an active assignment of the role, across companies, deduplicated per
// (company, user) pair.
func (s *RBACService) invalidateRoleHolders(ctx context.Context, st rbac.Store, roleID uuid.UUID, now time.Time) error {
	holders, err := st.Assignments().ListCompanyUsersByRole(ctx, roleID, now)
	if err != nil {
		return fmt.Errorf("failed to list role holders: %w", err)
	}

	type pair struct {
		companyID int64
		userID    uuid.UUID
	}
	seen := make(map[pair]bool, len(holders))
	for _, cu := range holders {
		p := pair{cu.CompanyID, cu.UserID}
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := st.Cache().Invalidate(ctx, cu.CompanyID, cu.UserID); err != nil {
			return fmt.Errorf("failed to invalidate permission cache: %w", err)
		}
		metrics.CacheInvalidations.Inc()
	}

	if len(seen) > 0 {
		s.logger.Debug("fan-out cache invalidation",
			zap.String("role_id", roleID.String()),
			zap.Int("users", len(seen)))
	}
	return nil
}

// writeAudit appends a permission-relevant administrative action. Audit
// failures propagate: integrity is never silently dropped.
func (s *RBACService) writeAudit(ctx context.Context, companyID int64, actorID uuid.UUID, action audit.Action, resourceType, resourceID string, oldValue, newValue interface{}) error {
	entry := &audit.Entry{
		CompanyID:    companyID,
		ActorID:      actorID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
	if oldValue != nil {
		data, err := json.Marshal(oldValue)
		if err != nil {
			return fmt.Errorf("failed to encode audit snapshot: %w", err)
		}
		entry.OldValue = data
	}
	if newValue != nil {
		data, err := json.Marshal(newValue)
		if err != nil {
			return fmt.Errorf("failed to encode audit snapshot: %w", err)
		}
		entry.NewValue = data
	}
	if err := s.auditSvc.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func roleCompanyID(role *rbac.Role) int64 {
	if role.CompanyID != nil {
		return *role.CompanyID
	}
	return rbac.PlatformCompanyID
}
