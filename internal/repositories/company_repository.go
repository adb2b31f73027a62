package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sitewise/platform/internal/domain/rbac"
)

// CompanyRepository implements rbac.CompanyRepository with PostgreSQL
type CompanyRepository struct {
	db Querier
}

const companyColumns = `id, name, domain, status, settings, created_at, updated_at`

// Create creates a new company
func (r *CompanyRepository) Create(ctx context.Context, c *rbac.Company) error {
	query := `
		INSERT INTO companies (id, name, domain, status, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	settings := c.Settings
	if len(settings) == 0 {
		settings = []byte("{}")
	}

	_, err := r.db.Exec(ctx, query,
		c.ID, c.Name, c.Domain, c.Status, settings, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgErrUniqueViolation {
			return fmt.Errorf("%w: company %d already exists", rbac.ErrInvalidConfiguration, c.ID)
		}
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// GetByID retrieves a company by ID
func (r *CompanyRepository) GetByID(ctx context.Context, id int64) (*rbac.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	return r.scanCompany(r.db.QueryRow(ctx, query, id))
}

// GetByDomain retrieves a company by its domain
func (r *CompanyRepository) GetByDomain(ctx context.Context, domain string) (*rbac.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE domain = $1`
	return r.scanCompany(r.db.QueryRow(ctx, query, domain))
}

// Update updates an existing company
func (r *CompanyRepository) Update(ctx context.Context, c *rbac.Company) error {
	query := `
		UPDATE companies
		SET name = $2, domain = $3, status = $4, settings = $5, updated_at = $6
		WHERE id = $1`

	settings := c.Settings
	if len(settings) == 0 {
		settings = []byte("{}")
	}

	tag, err := r.db.Exec(ctx, query,
		c.ID, c.Name, c.Domain, c.Status, settings, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrCompanyNotFound
	}
	return nil
}

// List retrieves all companies ordered by name
func (r *CompanyRepository) List(ctx context.Context) ([]*rbac.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []*rbac.Company
	for rows.Next() {
		c, err := r.scanCompany(rows)
		if err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

func (r *CompanyRepository) scanCompany(row pgx.Row) (*rbac.Company, error) {
	var c rbac.Company
	err := row.Scan(&c.ID, &c.Name, &c.Domain, &c.Status, &c.Settings, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, rbac.ErrCompanyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}
	return &c, nil
}
