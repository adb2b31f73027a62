package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sitewise/platform/internal/domain/rbac"
)

// PermissionRepository implements rbac.PermissionRepository with
// PostgreSQL. The catalog is read-mostly; entries are immutable at
// runtime except via administrative catalog management.
type PermissionRepository struct {
	db Querier
}

const permissionColumns = `id, name, category, resource, action, description, created_at`

// Create creates a new catalog entry
func (r *PermissionRepository) Create(ctx context.Context, p *rbac.Permission) error {
	query := `
		INSERT INTO permissions (id, name, category, resource, action, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		p.ID, p.Name, p.Category, p.Resource, p.Action, p.Description, p.CreatedAt)
	if err != nil {
		if pgErrorCode(err) == pgErrUniqueViolation {
			return fmt.Errorf("%w: permission %s:%s already exists", rbac.ErrInvalidConfiguration, p.Resource, p.Action)
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

// GetByID retrieves a permission by ID
func (r *PermissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*rbac.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE id = $1`
	return r.scanPermission(r.db.QueryRow(ctx, query, id))
}

// GetByResourceAction retrieves a permission by resource and action
func (r *PermissionRepository) GetByResourceAction(ctx context.Context, resource, action string) (*rbac.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions WHERE resource = $1 AND action = $2`
	return r.scanPermission(r.db.QueryRow(ctx, query, resource, action))
}

// List retrieves all permissions ordered by (category, name) for
// stable admin listing
func (r *PermissionRepository) List(ctx context.Context) ([]*rbac.Permission, error) {
	query := `SELECT ` + permissionColumns + ` FROM permissions ORDER BY category, name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var permissions []*rbac.Permission
	for rows.Next() {
		p, err := r.scanPermission(rows)
		if err != nil {
			return nil, err
		}
		permissions = append(permissions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return permissions, nil
}

func (r *PermissionRepository) scanPermission(row pgx.Row) (*rbac.Permission, error) {
	var p rbac.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Resource, &p.Action, &p.Description, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, rbac.ErrPermissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan permission: %w", err)
	}
	return &p, nil
}
