package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sitewise/platform/internal/domain/rbac"
)

// RoleTemplateRepository implements rbac.RoleTemplateRepository with
// PostgreSQL
type RoleTemplateRepository struct {
	db Querier
}

const templateColumns = `id, name, category, permission_ids, created_at, updated_at`

// Create creates a new role template
func (r *RoleTemplateRepository) Create(ctx context.Context, t *rbac.RoleTemplate) error {
	perms, err := encodeUUIDList(t.PermissionIDs)
	if err != nil {
		return fmt.Errorf("failed to encode template permissions: %w", err)
	}

	query := `
		INSERT INTO role_templates (id, name, category, permission_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.Exec(ctx, query,
		t.ID, t.Name, t.Category, perms, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgErrUniqueViolation {
			return fmt.Errorf("%w: template %q already exists", rbac.ErrInvalidConfiguration, t.Name)
		}
		return fmt.Errorf("failed to create role template: %w", err)
	}
	return nil
}

// GetByID retrieves a template by ID
func (r *RoleTemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*rbac.RoleTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM role_templates WHERE id = $1`
	return r.scanTemplate(r.db.QueryRow(ctx, query, id))
}

// GetByIDs retrieves templates for a set of IDs
func (r *RoleTemplateRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*rbac.RoleTemplate, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + templateColumns + ` FROM role_templates WHERE id = ANY($1)`

	rows, err := r.db.Query(ctx, query, uuidStrings(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get role templates: %w", err)
	}
	defer rows.Close()

	return r.collectTemplates(rows)
}

// Update updates a template
func (r *RoleTemplateRepository) Update(ctx context.Context, t *rbac.RoleTemplate) error {
	perms, err := encodeUUIDList(t.PermissionIDs)
	if err != nil {
		return fmt.Errorf("failed to encode template permissions: %w", err)
	}

	query := `
		UPDATE role_templates
		SET name = $2, category = $3, permission_ids = $4, updated_at = $5
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, t.ID, t.Name, t.Category, perms, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update role template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrTemplateNotFound
	}
	return nil
}

// List retrieves templates, filtered by category when non-empty
func (r *RoleTemplateRepository) List(ctx context.Context, category string) ([]*rbac.RoleTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM role_templates`
	args := []any{}
	if category != "" {
		query += ` WHERE category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY name`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list role templates: %w", err)
	}
	defer rows.Close()

	return r.collectTemplates(rows)
}

func (r *RoleTemplateRepository) collectTemplates(rows pgx.Rows) ([]*rbac.RoleTemplate, error) {
	var templates []*rbac.RoleTemplate
	for rows.Next() {
		t, err := r.scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read role templates: %w", err)
	}
	return templates, nil
}

func (r *RoleTemplateRepository) scanTemplate(row pgx.Row) (*rbac.RoleTemplate, error) {
	var (
		t     rbac.RoleTemplate
		perms []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.Category, &perms, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, rbac.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan role template: %w", err)
	}

	t.PermissionIDs, err = decodeUUIDList(perms)
	if err != nil {
		return nil, fmt.Errorf("failed to decode template permissions: %w", err)
	}
	return &t, nil
}

// uuidStrings converts ids for ANY($1) parameters; pgx maps a string
// slice onto a uuid[] array without a registered uuid codec.
func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
