package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sitewise/platform/internal/domain/rbac"
)

// AssignmentRepository implements rbac.AssignmentRepository with
// PostgreSQL, covering company membership and project assignments.
type AssignmentRepository struct {
	db Querier
}

const companyUserColumns = `company_id, user_id, role_id, state, expires_at, granted_by, granted_at`

// AssignUserToCompany inserts a company-user row
func (r *AssignmentRepository) AssignUserToCompany(ctx context.Context, a *rbac.CompanyUser) error {
	query := `
		INSERT INTO company_users (company_id, user_id, role_id, state, expires_at, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		a.CompanyID, a.UserID, a.RoleID, a.Lifecycle.State, a.Lifecycle.ExpiresAt,
		a.GrantedBy, a.GrantedAt)
	if err != nil {
		if pgErrorCode(err) == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: %v", rbac.ErrInvalidConfiguration, err)
		}
		return fmt.Errorf("failed to assign user to company: %w", err)
	}
	return nil
}

// RevokeUserFromCompany soft-revokes the active company-user rows for
// the (company, user, role) triple
func (r *AssignmentRepository) RevokeUserFromCompany(ctx context.Context, companyID int64, userID, roleID uuid.UUID) error {
	query := `
		UPDATE company_users
		SET state = $4
		WHERE company_id = $1 AND user_id = $2 AND role_id = $3 AND state = $5`

	tag, err := r.db.Exec(ctx, query, companyID, userID, roleID, rbac.StateRevoked, rbac.StateActive)
	if err != nil {
		return fmt.Errorf("failed to revoke user from company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrCompanyAccessDenied
	}
	return nil
}

// ListActiveCompanyUsers retrieves the active, non-expired assignments
// a user holds in a company
func (r *AssignmentRepository) ListActiveCompanyUsers(ctx context.Context, companyID int64, userID uuid.UUID, now time.Time) ([]*rbac.CompanyUser, error) {
	query := `
		SELECT ` + companyUserColumns + `
		FROM company_users
		WHERE company_id = $1 AND user_id = $2 AND state = $3
		  AND (expires_at IS NULL OR expires_at > $4)`

	rows, err := r.db.Query(ctx, query, companyID, userID, rbac.StateActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list company assignments: %w", err)
	}
	defer rows.Close()

	return r.collectCompanyUsers(rows)
}

// ListCompanyUsersByRole retrieves every active assignment referencing
// the role, across users and companies. Drives fan-out invalidation.
func (r *AssignmentRepository) ListCompanyUsersByRole(ctx context.Context, roleID uuid.UUID, now time.Time) ([]*rbac.CompanyUser, error) {
	query := `
		SELECT ` + companyUserColumns + `
		FROM company_users
		WHERE role_id = $1 AND state = $2
		  AND (expires_at IS NULL OR expires_at > $3)`

	rows, err := r.db.Query(ctx, query, roleID, rbac.StateActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list role holders: %w", err)
	}
	defer rows.Close()

	return r.collectCompanyUsers(rows)
}

// ListCompanyMembers retrieves every active assignment in a company
func (r *AssignmentRepository) ListCompanyMembers(ctx context.Context, companyID int64, now time.Time) ([]*rbac.CompanyUser, error) {
	query := `
		SELECT ` + companyUserColumns + `
		FROM company_users
		WHERE company_id = $1 AND state = $2
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY granted_at`

	rows, err := r.db.Query(ctx, query, companyID, rbac.StateActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list company members: %w", err)
	}
	defer rows.Close()

	return r.collectCompanyUsers(rows)
}

// AssignUserToProject inserts a project assignment
func (r *AssignmentRepository) AssignUserToProject(ctx context.Context, a *rbac.ProjectAssignment) error {
	extra, err := encodeUUIDList(a.ExtraPermissions)
	if err != nil {
		return fmt.Errorf("failed to encode extra permissions: %w", err)
	}

	query := `
		INSERT INTO project_assignments (company_id, project_id, user_id, extra_permissions, state, expires_at, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.db.Exec(ctx, query,
		a.CompanyID, a.ProjectID, a.UserID, extra, a.Lifecycle.State, a.Lifecycle.ExpiresAt,
		a.GrantedBy, a.GrantedAt)
	if err != nil {
		if pgErrorCode(err) == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: %v", rbac.ErrInvalidConfiguration, err)
		}
		return fmt.Errorf("failed to assign user to project: %w", err)
	}
	return nil
}

// RevokeUserFromProject soft-revokes the active project assignments for
// the (company, project, user) triple
func (r *AssignmentRepository) RevokeUserFromProject(ctx context.Context, companyID int64, projectID, userID uuid.UUID) error {
	query := `
		UPDATE project_assignments
		SET state = $4
		WHERE company_id = $1 AND project_id = $2 AND user_id = $3 AND state = $5`

	tag, err := r.db.Exec(ctx, query, companyID, projectID, userID, rbac.StateRevoked, rbac.StateActive)
	if err != nil {
		return fmt.Errorf("failed to revoke user from project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return rbac.ErrCompanyAccessDenied
	}
	return nil
}

// ListActiveProjectAssignments retrieves the active, non-expired
// project assignments a user holds across a company
func (r *AssignmentRepository) ListActiveProjectAssignments(ctx context.Context, companyID int64, userID uuid.UUID, now time.Time) ([]*rbac.ProjectAssignment, error) {
	query := `
		SELECT company_id, project_id, user_id, extra_permissions, state, expires_at, granted_by, granted_at
		FROM project_assignments
		WHERE company_id = $1 AND user_id = $2 AND state = $3
		  AND (expires_at IS NULL OR expires_at > $4)`

	rows, err := r.db.Query(ctx, query, companyID, userID, rbac.StateActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list project assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*rbac.ProjectAssignment
	for rows.Next() {
		var (
			a     rbac.ProjectAssignment
			extra []byte
		)
		if err := rows.Scan(&a.CompanyID, &a.ProjectID, &a.UserID, &extra,
			&a.Lifecycle.State, &a.Lifecycle.ExpiresAt, &a.GrantedBy, &a.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project assignment: %w", err)
		}
		a.ExtraPermissions, err = decodeUUIDList(extra)
		if err != nil {
			return nil, fmt.Errorf("failed to decode extra permissions: %w", err)
		}
		assignments = append(assignments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list project assignments: %w", err)
	}
	return assignments, nil
}

func (r *AssignmentRepository) collectCompanyUsers(rows pgx.Rows) ([]*rbac.CompanyUser, error) {
	var assignments []*rbac.CompanyUser
	for rows.Next() {
		var a rbac.CompanyUser
		if err := rows.Scan(&a.CompanyID, &a.UserID, &a.RoleID, &a.Lifecycle.State,
			&a.Lifecycle.ExpiresAt, &a.GrantedBy, &a.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan company assignment: %w", err)
		}
		assignments = append(assignments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read company assignments: %w", err)
	}
	return assignments, nil
}
