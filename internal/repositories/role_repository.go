package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sitewise/platform/internal/domain/rbac"
)

// RoleRepository implements rbac.RoleRepository with PostgreSQL,
// covering both roles and their permission grant rows.
type RoleRepository struct {
	db Querier
}

const roleColumns = `id, company_id, name, description, template_id, custom_permissions, state, expires_at, created_at, updated_at`

// Create creates a new role
func (r *RoleRepository) Create(ctx context.Context, role *rbac.Role) error {
	custom, err := encodeUUIDList(role.CustomPermissions)
	if err != nil {
		return fmt.Errorf("failed to encode custom permissions: %w", err)
	}

	query := `
		INSERT INTO roles (id, company_id, name, description, template_id, custom_permissions, state, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.Exec(ctx, query,
		role.ID, role.CompanyID, role.Name, role.Description, role.TemplateID,
		custom, role.Lifecycle.State, role.Lifecycle.ExpiresAt, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: %v", rbac.ErrInvalidConfiguration, err)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id uuid.UUID) (*rbac.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	return r.scanRole(r.db.QueryRow(ctx, query, id))
}

// GetByIDs retrieves roles for a set of IDs
func (r *RoleRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*rbac.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	defer rows.Close()

	return r.collectRoles(rows)
}

// GetByName retrieves a role by company and name. A nil companyID
// matches platform-level roles.
func (r *RoleRepository) GetByName(ctx context.Context, companyID *int64, name string) (*rbac.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE company_id IS NOT DISTINCT FROM $1 AND name = $2`
	return r.scanRole(r.db.QueryRow(ctx, query, companyID, name))
}

// Update updates a role
func (r *RoleRepository) Update(ctx context.Context, role *rbac.Role) error {
	custom, err := encodeUUIDList(role.CustomPermissions)
	if err != nil {
		return fmt.Errorf("failed to encode custom permissions: %w", err)
	}

	query := `
		UPDATE roles
		SET name = $2, description = $3, template_id = $4, custom_permissions = $5,
		    state = $6, expires_at = $7, updated_at = $8
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		role.ID, role.Name, role.Description, role.TemplateID, custom,
		role.Lifecycle.State, role.Lifecycle.ExpiresAt, role.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrRoleNotFound
	}
	return nil
}

// ListByCompany retrieves all roles for a company
func (r *RoleRepository) ListByCompany(ctx context.Context, companyID int64) ([]*rbac.Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles WHERE company_id = $1 ORDER BY name`

	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	return r.collectRoles(rows)
}

// GrantPermission inserts a role-permission row
func (r *RoleRepository) GrantPermission(ctx context.Context, grant *rbac.RolePermission) error {
	query := `
		INSERT INTO role_permissions (role_id, permission_id, state, expires_at, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		grant.RoleID, grant.PermissionID, grant.Lifecycle.State, grant.Lifecycle.ExpiresAt,
		grant.GrantedBy, grant.GrantedAt)
	if err != nil {
		if pgErrorCode(err) == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: %v", rbac.ErrInvalidConfiguration, err)
		}
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	return nil
}

// RevokePermission soft-deactivates the active grant rows for the
// (role, permission) pair. History rows stay.
func (r *RoleRepository) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	query := `
		UPDATE role_permissions
		SET state = $3
		WHERE role_id = $1 AND permission_id = $2 AND state = $4`

	tag, err := r.db.Exec(ctx, query, roleID, permissionID, rbac.StateRevoked, rbac.StateActive)
	if err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrPermissionNotFound
	}
	return nil
}

// GetRolePermissions retrieves all grant rows for a role, revoked and
// expired included
func (r *RoleRepository) GetRolePermissions(ctx context.Context, roleID uuid.UUID) ([]*rbac.RolePermission, error) {
	query := `
		SELECT role_id, permission_id, state, expires_at, granted_by, granted_at
		FROM role_permissions
		WHERE role_id = $1
		ORDER BY granted_at`

	rows, err := r.db.Query(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	var grants []*rbac.RolePermission
	for rows.Next() {
		var g rbac.RolePermission
		if err := rows.Scan(&g.RoleID, &g.PermissionID, &g.Lifecycle.State, &g.Lifecycle.ExpiresAt,
			&g.GrantedBy, &g.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		grants = append(grants, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	return grants, nil
}

// ListActivePermissionIDs retrieves the distinct permission IDs granted
// to any of the given roles through active, non-expired rows at the
// given instant
func (r *RoleRepository) ListActivePermissionIDs(ctx context.Context, roleIDs []uuid.UUID, now time.Time) ([]uuid.UUID, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT permission_id
		FROM role_permissions
		WHERE role_id = ANY($1)
		  AND state = $2
		  AND (expires_at IS NULL OR expires_at > $3)`

	rows, err := r.db.Query(ctx, query, uuidStrings(roleIDs), rbac.StateActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permission ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan permission id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list role permission ids: %w", err)
	}
	return ids, nil
}

func (r *RoleRepository) collectRoles(rows pgx.Rows) ([]*rbac.Role, error) {
	var roles []*rbac.Role
	for rows.Next() {
		role, err := r.scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}
	return roles, nil
}

func (r *RoleRepository) scanRole(row pgx.Row) (*rbac.Role, error) {
	var (
		role   rbac.Role
		custom []byte
	)
	err := row.Scan(&role.ID, &role.CompanyID, &role.Name, &role.Description, &role.TemplateID,
		&custom, &role.Lifecycle.State, &role.Lifecycle.ExpiresAt, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, rbac.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan role: %w", err)
	}

	role.CustomPermissions, err = decodeUUIDList(custom)
	if err != nil {
		return nil, fmt.Errorf("failed to decode custom permissions: %w", err)
	}
	return &role, nil
}
