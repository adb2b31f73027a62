package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sitewise/platform/internal/domain/rbac"
)

// PermissionCacheRepository implements rbac.PermissionCache on the
// effective_permission_cache table. One row per (company, user);
// replacement is delete-then-insert, never an in-place update, so
// every recompute carries a fresh computed-at/expires-at pair. Because
// it shares the store's Querier, invalidation joins the surrounding
// mutation's transaction.
type PermissionCacheRepository struct {
	db Querier
}

// Get returns the cached entry, or (nil, nil) when absent or expired.
// Expired rows are a miss; they are never returned as authoritative.
func (r *PermissionCacheRepository) Get(ctx context.Context, companyID int64, userID uuid.UUID, now time.Time) (*rbac.EffectivePermissions, error) {
	query := `
		SELECT company_id, user_id, permission_ids, roles, computed_at, expires_at
		FROM effective_permission_cache
		WHERE company_id = $1 AND user_id = $2 AND expires_at > $3`

	var (
		entry rbac.EffectivePermissions
		perms []byte
		roles []byte
	)
	err := r.db.QueryRow(ctx, query, companyID, userID, now).Scan(
		&entry.CompanyID, &entry.UserID, &perms, &roles, &entry.ComputedAt, &entry.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read permission cache: %w", err)
	}

	entry.PermissionIDs, err = decodeUUIDList(perms)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached permissions: %w", err)
	}
	if entry.PermissionIDs == nil {
		entry.PermissionIDs = []uuid.UUID{}
	}
	entry.Roles = []rbac.RoleSummary{}
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &entry.Roles); err != nil {
			return nil, fmt.Errorf("failed to decode cached roles: %w", err)
		}
	}
	return &entry, nil
}

// Put replaces any prior row for the (company, user) pair
func (r *PermissionCacheRepository) Put(ctx context.Context, entry *rbac.EffectivePermissions) error {
	if err := r.Invalidate(ctx, entry.CompanyID, entry.UserID); err != nil {
		return err
	}

	perms, err := encodeUUIDList(entry.PermissionIDs)
	if err != nil {
		return fmt.Errorf("failed to encode cached permissions: %w", err)
	}
	roles := entry.Roles
	if roles == nil {
		roles = []rbac.RoleSummary{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to encode cached roles: %w", err)
	}

	query := `
		INSERT INTO effective_permission_cache (company_id, user_id, permission_ids, roles, computed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = r.db.Exec(ctx, query,
		entry.CompanyID, entry.UserID, perms, rolesJSON, entry.ComputedAt, entry.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to write permission cache: %w", err)
	}
	return nil
}

// Invalidate deletes the (company, user) row. Idempotent.
func (r *PermissionCacheRepository) Invalidate(ctx context.Context, companyID int64, userID uuid.UUID) error {
	query := `DELETE FROM effective_permission_cache WHERE company_id = $1 AND user_id = $2`

	if _, err := r.db.Exec(ctx, query, companyID, userID); err != nil {
		return fmt.Errorf("failed to invalidate permission cache: %w", err)
	}
	return nil
}
