package rbac

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CompanyRepository defines persistence for tenants
type CompanyRepository interface {
	// Create creates a new company
	Create(ctx context.Context, company *Company) error

	// GetByID retrieves a company by ID
	GetByID(ctx context.Context, id int64) (*Company, error)

	// GetByDomain retrieves a company by its domain
	GetByDomain(ctx context.Context, domain string) (*Company, error)

	// Update updates an existing company
	Update(ctx context.Context, company *Company) error

	// List retrieves all companies ordered by name
	List(ctx context.Context) ([]*Company, error)
}

// PermissionRepository defines persistence for the permission catalog
type PermissionRepository interface {
	// Create creates a new catalog entry
	Create(ctx context.Context, permission *Permission) error

	// GetByID retrieves a permission by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Permission, error)

	// GetByResourceAction retrieves a permission by resource and action
	GetByResourceAction(ctx context.Context, resource, action string) (*Permission, error)

	// List retrieves all permissions ordered by (category, name)
	List(ctx context.Context) ([]*Permission, error)
}

// RoleTemplateRepository defines persistence for the template library
type RoleTemplateRepository interface {
	// Create creates a new role template
	Create(ctx context.Context, template *RoleTemplate) error

	// GetByID retrieves a template by ID
	GetByID(ctx context.Context, id uuid.UUID) (*RoleTemplate, error)

	// GetByIDs retrieves templates for a set of IDs
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*RoleTemplate, error)

	// Update updates a template
	Update(ctx context.Context, template *RoleTemplate) error

	// List retrieves templates, filtered by category when non-empty
	List(ctx context.Context, category string) ([]*RoleTemplate, error)
}

// RoleRepository defines persistence for roles and role-permission grants
type RoleRepository interface {
	// Create creates a new role
	Create(ctx context.Context, role *Role) error

	// GetByID retrieves a role by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Role, error)

	// GetByIDs retrieves roles for a set of IDs
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Role, error)

	// GetByName retrieves a role by company and name
	GetByName(ctx context.Context, companyID *int64, name string) (*Role, error)

	// Update updates a role, stamping UpdatedAt
	Update(ctx context.Context, role *Role) error

	// ListByCompany retrieves all roles for a company
	ListByCompany(ctx context.Context, companyID int64) ([]*Role, error)

	// GrantPermission inserts a role-permission row
	GrantPermission(ctx context.Context, grant *RolePermission) error

	// RevokePermission soft-deactivates a role-permission row
	RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error

	// GetRolePermissions retrieves all grant rows for a role, including
	// revoked and expired ones
	GetRolePermissions(ctx context.Context, roleID uuid.UUID) ([]*RolePermission, error)

	// ListActivePermissionIDs retrieves the permission IDs granted to
	// any of the given roles through active, non-expired rows at the
	// given instant
	ListActivePermissionIDs(ctx context.Context, roleIDs []uuid.UUID, now time.Time) ([]uuid.UUID, error)
}

// AssignmentRepository defines persistence for company and project
// membership
type AssignmentRepository interface {
	// AssignUserToCompany inserts a company-user row
	AssignUserToCompany(ctx context.Context, assignment *CompanyUser) error

	// RevokeUserFromCompany soft-revokes a company-user row
	RevokeUserFromCompany(ctx context.Context, companyID int64, userID, roleID uuid.UUID) error

	// ListActiveCompanyUsers retrieves the active, non-expired
	// assignments a user holds in a company
	ListActiveCompanyUsers(ctx context.Context, companyID int64, userID uuid.UUID, now time.Time) ([]*CompanyUser, error)

	// ListCompanyUsersByRole retrieves every active assignment
	// referencing the role, across users. Used for fan-out invalidation.
	ListCompanyUsersByRole(ctx context.Context, roleID uuid.UUID, now time.Time) ([]*CompanyUser, error)

	// ListCompanyMembers retrieves every active assignment in a company
	ListCompanyMembers(ctx context.Context, companyID int64, now time.Time) ([]*CompanyUser, error)

	// AssignUserToProject inserts a project assignment
	AssignUserToProject(ctx context.Context, assignment *ProjectAssignment) error

	// RevokeUserFromProject soft-revokes a project assignment
	RevokeUserFromProject(ctx context.Context, companyID int64, projectID, userID uuid.UUID) error

	// ListActiveProjectAssignments retrieves the active project
	// assignments a user holds across a company
	ListActiveProjectAssignments(ctx context.Context, companyID int64, userID uuid.UUID, now time.Time) ([]*ProjectAssignment, error)
}

// PermissionCache materializes engine output per (company, user).
// Implementations: Postgres table (transactional with mutations),
// Redis, in-process map.
type PermissionCache interface {
	// Get returns the cached entry, or (nil, nil) when absent or
	// expired at the given instant. Expired rows are never returned.
	Get(ctx context.Context, companyID int64, userID uuid.UUID, now time.Time) (*EffectivePermissions, error)

	// Put replaces any prior entry for the (company, user) pair with a
	// fresh one. Always invalidate-then-insert, never update in place.
	Put(ctx context.Context, entry *EffectivePermissions) error

	// Invalidate deletes the (company, user) entry. Idempotent; safe
	// when no entry exists.
	Invalidate(ctx context.Context, companyID int64, userID uuid.UUID) error
}

// Store aggregates the RBAC repositories behind a single transactional
// boundary. RunInTx executes fn against a store bound to one
// transaction; a mutation and its cache invalidation fan-out commit or
// roll back together when the cache is store-backed.
type Store interface {
	Companies() CompanyRepository
	Permissions() PermissionRepository
	Templates() RoleTemplateRepository
	Roles() RoleRepository
	Assignments() AssignmentRepository
	Cache() PermissionCache

	RunInTx(ctx context.Context, fn func(Store) error) error
}

// Service is the authorization decision engine and its administrative
// surface. Authentication is out of scope: user and company identity
// are trusted as given.
type Service interface {
	// Company management
	CreateCompany(ctx context.Context, company *Company) error
	GetCompany(ctx context.Context, id int64) (*Company, error)
	ListCompanies(ctx context.Context) ([]*Company, error)

	// Permission catalog
	CreatePermission(ctx context.Context, permission *Permission) error
	GetPermission(ctx context.Context, id uuid.UUID) (*Permission, error)
	GetPermissionByResourceAction(ctx context.Context, resource, action string) (*Permission, error)
	ListPermissions(ctx context.Context) ([]*Permission, error)
	SeedDefaultCatalog(ctx context.Context) error

	// Role template library
	CreateRoleTemplate(ctx context.Context, template *RoleTemplate) error
	GetRoleTemplate(ctx context.Context, id uuid.UUID) (*RoleTemplate, error)
	ListRoleTemplates(ctx context.Context, category string) ([]*RoleTemplate, error)
	InstantiateTemplate(ctx context.Context, companyID int64, templateID uuid.UUID, name string, actorID uuid.UUID) (*Role, error)

	// Role management
	CreateRole(ctx context.Context, role *Role, actorID uuid.UUID) error
	GetRole(ctx context.Context, id uuid.UUID) (*Role, error)
	UpdateRole(ctx context.Context, role *Role, actorID uuid.UUID) error
	DeleteRole(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error
	ListRoles(ctx context.Context, companyID int64) ([]*Role, error)

	// Role-permission grants
	AssignPermissionToRole(ctx context.Context, roleID, permissionID, actorID uuid.UUID, expiresAt *time.Time) error
	RevokePermissionFromRole(ctx context.Context, roleID, permissionID, actorID uuid.UUID) error

	// Membership
	AssignUserToCompany(ctx context.Context, companyID int64, userID, roleID, actorID uuid.UUID, expiresAt *time.Time) error
	RevokeUserFromCompany(ctx context.Context, companyID int64, userID, roleID, actorID uuid.UUID) error
	AssignUserToProject(ctx context.Context, companyID int64, projectID, userID uuid.UUID, extraPermissions []uuid.UUID, actorID uuid.UUID) error
	RevokeUserFromProject(ctx context.Context, companyID int64, projectID, userID, actorID uuid.UUID) error

	// Effective permission engine
	ComputeUserEffectivePermissions(ctx context.Context, userID uuid.UUID, companyID int64) (*EffectivePermissions, error)
	GetUserEffectivePermissions(ctx context.Context, userID uuid.UUID, companyID int64) (*EffectivePermissions, error)
	HasPermission(ctx context.Context, userID uuid.UUID, companyID int64, permissionID uuid.UUID) (bool, error)
	HasAnyPermissions(ctx context.Context, userID uuid.UUID, companyID int64, permissionIDs []uuid.UUID) (bool, error)
	HasAllPermissions(ctx context.Context, userID uuid.UUID, companyID int64, permissionIDs []uuid.UUID) (bool, error)
	InvalidateUserPermissions(ctx context.Context, userID uuid.UUID, companyID int64) error

	// User context and platform tenant
	GetUserContext(ctx context.Context, userID uuid.UUID, companyID int64) (*UserContext, error)
	IsPlatformUser(ctx context.Context, userID uuid.UUID) (bool, error)
	GetPlatformUsers(ctx context.Context) ([]*CompanyUser, error)
	PromoteToPlatform(ctx context.Context, userID, actorID uuid.UUID) error
}
