package rbac

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PlatformCompanyID is the reserved tenant id for platform superusers.
// It must never be reused for an ordinary company.
const PlatformCompanyID int64 = 0

// PlatformAdminRoleName is the role assigned by PromoteToPlatform.
const PlatformAdminRoleName = "platform_admin"

// DefaultCacheTTL bounds how long an effective-permission cache entry
// may be served before it is treated as a miss.
const DefaultCacheTTL = time.Hour

// CompanyStatus represents the lifecycle status of a company
type CompanyStatus string

const (
	CompanyStatusActive    CompanyStatus = "active"
	CompanyStatusSuspended CompanyStatus = "suspended"
	CompanyStatusArchived  CompanyStatus = "archived"
)

// Company represents a tenant
type Company struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Domain    string          `json:"domain"`
	Status    CompanyStatus   `json:"status"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Permission represents an immutable catalog entry
type Permission struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Resource    string    `json:"resource"` // e.g. "projects", "users"
	Action      string    `json:"action"`   // e.g. "create", "manage"
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleTemplate is a reusable, company-independent permission bundle
// that companies instantiate into concrete roles.
type RoleTemplate struct {
	ID            uuid.UUID   `json:"id"`
	Name          string      `json:"name"`
	Category      string      `json:"category"`
	PermissionIDs []uuid.UUID `json:"permission_ids"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Role is a named, company-scoped permission bundle. CompanyID is nil
// for platform-level roles. A role may inherit from a template and add
// custom permissions on top.
type Role struct {
	ID                uuid.UUID   `json:"id"`
	CompanyID         *int64      `json:"company_id,omitempty"`
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	TemplateID        *uuid.UUID  `json:"template_id,omitempty"`
	CustomPermissions []uuid.UUID `json:"custom_permissions,omitempty"`
	Lifecycle         Lifecycle   `json:"lifecycle"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// RolePermission joins a role to a catalog permission, optionally
// time-bounded for temporary grants.
type RolePermission struct {
	RoleID       uuid.UUID `json:"role_id"`
	PermissionID uuid.UUID `json:"permission_id"`
	Lifecycle    Lifecycle `json:"lifecycle"`
	GrantedBy    uuid.UUID `json:"granted_by"`
	GrantedAt    time.Time `json:"granted_at"`
}

// CompanyUser binds a user to a company with one role.
type CompanyUser struct {
	CompanyID int64     `json:"company_id"`
	UserID    uuid.UUID `json:"user_id"`
	RoleID    uuid.UUID `json:"role_id"`
	Lifecycle Lifecycle `json:"lifecycle"`
	GrantedBy uuid.UUID `json:"granted_by"`
	GrantedAt time.Time `json:"granted_at"`
}

// ProjectAssignment binds a user to a project with optional extra
// permissions layered on top of role-derived ones.
type ProjectAssignment struct {
	CompanyID        int64       `json:"company_id"`
	ProjectID        uuid.UUID   `json:"project_id"`
	UserID           uuid.UUID   `json:"user_id"`
	ExtraPermissions []uuid.UUID `json:"extra_permissions,omitempty"`
	Lifecycle        Lifecycle   `json:"lifecycle"`
	GrantedBy        uuid.UUID   `json:"granted_by"`
	GrantedAt        time.Time   `json:"granted_at"`
}

// RoleSummary is the slim role view carried inside computed results.
type RoleSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CompanyID *int64    `json:"company_id,omitempty"`
	Scope     string    `json:"scope"` // always "company" today
}

// EffectivePermissions is the resolved permission set for a
// (user, company) pair, as computed by the engine and materialized in
// the cache. One entry per pair; superseded entries are deleted before
// a new one is inserted.
type EffectivePermissions struct {
	UserID        uuid.UUID     `json:"user_id"`
	CompanyID     int64         `json:"company_id"`
	PermissionIDs []uuid.UUID   `json:"permission_ids"`
	Roles         []RoleSummary `json:"roles"`
	ComputedAt    time.Time     `json:"computed_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
}

// Has reports whether the resolved set contains the permission.
func (e *EffectivePermissions) Has(permissionID uuid.UUID) bool {
	for _, id := range e.PermissionIDs {
		if id == permissionID {
			return true
		}
	}
	return false
}

// HasAny reports whether the resolved set contains at least one of the
// given permissions. An empty argument list is vacuously false.
func (e *EffectivePermissions) HasAny(permissionIDs []uuid.UUID) bool {
	for _, id := range permissionIDs {
		if e.Has(id) {
			return true
		}
	}
	return false
}

// HasAll reports whether the resolved set contains every given
// permission. An empty argument list is vacuously true.
func (e *EffectivePermissions) HasAll(permissionIDs []uuid.UUID) bool {
	for _, id := range permissionIDs {
		if !e.Has(id) {
			return false
		}
	}
	return true
}

// Expired reports whether the entry must be treated as a cache miss.
func (e *EffectivePermissions) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// UserContext is the read-only view handed to route guards and UI
// permission gating.
type UserContext struct {
	UserID      uuid.UUID             `json:"user_id"`
	Email       string                `json:"email"`
	DisplayName string                `json:"display_name"`
	CompanyID   int64                 `json:"company_id"`
	Permissions *EffectivePermissions `json:"permissions"`
	LastLoginAt *time.Time            `json:"last_login_at,omitempty"`
	MFAEnabled  bool                  `json:"mfa_enabled"`
	IsPlatform  bool                  `json:"is_platform"`
}
