package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitewise/platform/internal/domain/audit"
)

// AuditLogRepository implements audit.LogRepository with PostgreSQL.
// The table is append-only; no update or delete statements exist here.
type AuditLogRepository struct {
	db Querier
}

// NewAuditLogRepository creates a new PostgreSQL audit log repository
func NewAuditLogRepository(db *pgxpool.Pool) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Create appends an entry
func (r *AuditLogRepository) Create(ctx context.Context, e *audit.Entry) error {
	query := `
		INSERT INTO audit_logs (id, company_id, actor_id, action, resource_type, resource_id, old_value, new_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		e.ID, e.CompanyID, e.ActorID, e.Action, e.ResourceType, e.ResourceID,
		nullableJSON(e.OldValue), nullableJSON(e.NewValue), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}

// GetByID retrieves an entry by ID
func (r *AuditLogRepository) GetByID(ctx context.Context, id uuid.UUID) (*audit.Entry, error) {
	query := `
		SELECT id, company_id, actor_id, action, resource_type, resource_id, old_value, new_value, created_at
		FROM audit_logs
		WHERE id = $1`

	var e audit.Entry
	err := r.db.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.CompanyID, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID,
		&e.OldValue, &e.NewValue, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, audit.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return &e, nil
}

// List retrieves a company's entries matching the filter, newest first.
// The filter conditions compose as a parameter list, not as ad-hoc
// string concatenation of values.
func (r *AuditLogRepository) List(ctx context.Context, companyID int64, filter audit.Filter) ([]*audit.Entry, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, company_id, actor_id, action, resource_type, resource_id, old_value, new_value, created_at
		FROM audit_logs
		WHERE company_id = $1`)
	args := []any{companyID}

	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		sb.WriteString(` AND actor_id = $` + strconv.Itoa(len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		sb.WriteString(` AND action = $` + strconv.Itoa(len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		sb.WriteString(` AND created_at >= $` + strconv.Itoa(len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		sb.WriteString(` AND created_at <= $` + strconv.Itoa(len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	}
	args = append(args, limit)
	sb.WriteString(` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.ActorID, &e.Action, &e.ResourceType,
			&e.ResourceID, &e.OldValue, &e.NewValue, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return data
}
