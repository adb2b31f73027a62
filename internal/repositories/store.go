package repositories

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitewise/platform/internal/domain/rbac"
)

// Postgres error codes mapped to domain errors
const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and
// pgx.Tx, so every repository works unchanged inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements rbac.Store on PostgreSQL. The permission cache
// defaults to the store-backed table (transactional with mutations)
// and can be swapped for an external implementation.
type Store struct {
	pool  *pgxpool.Pool
	db    Querier
	cache rbac.PermissionCache
}

// NewStore creates a new PostgreSQL store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// WithPermissionCache swaps the permission cache backend, e.g. for the
// Redis implementation. External caches are not transactional; their
// invalidation is best-effort per the engine's consistency model.
func (s *Store) WithPermissionCache(cache rbac.PermissionCache) *Store {
	s.cache = cache
	return s
}

func (s *Store) Companies() rbac.CompanyRepository {
	return &CompanyRepository{db: s.db}
}

func (s *Store) Permissions() rbac.PermissionRepository {
	return &PermissionRepository{db: s.db}
}

func (s *Store) Templates() rbac.RoleTemplateRepository {
	return &RoleTemplateRepository{db: s.db}
}

func (s *Store) Roles() rbac.RoleRepository {
	return &RoleRepository{db: s.db}
}

func (s *Store) Assignments() rbac.AssignmentRepository {
	return &AssignmentRepository{db: s.db}
}

func (s *Store) Cache() rbac.PermissionCache {
	if s.cache != nil {
		return s.cache
	}
	return &PermissionCacheRepository{db: s.db}
}

// RunInTx executes fn against a store bound to a single transaction.
// Nested calls reuse the surrounding transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(rbac.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{db: tx, cache: s.cache})
	})
}

// pgErrorCode extracts the Postgres error code, if any
func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// Permission id lists are stored as JSONB documents. Encoding an empty
// list (not NULL) keeps scans symmetric.
func encodeUUIDList(ids []uuid.UUID) ([]byte, error) {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return json.Marshal(ids)
}

func decodeUUIDList(data []byte) ([]uuid.UUID, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}
