package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sitewise/platform/internal/domain/audit"
)

// AuditService implements the audit.Service interface. The log is
// append-only: entries are never mutated or deleted here.
type AuditService struct {
	logRepo audit.LogRepository
	now     func() time.Time
}

// NewAuditService creates a new audit service
func NewAuditService(logRepo audit.LogRepository) *AuditService {
	return &AuditService{
		logRepo: logRepo,
		now:     time.Now,
	}
}

// Log appends an entry. A failed insert propagates; a permission
// mutation must never complete with its audit record silently dropped.
func (s *AuditService) Log(ctx context.Context, entry *audit.Entry) error {
	if entry.ActorID == uuid.Nil || entry.Action == "" {
		return audit.ErrMissingRequiredFields
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	if err := s.logRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}

// GetLogs retrieves a company's entries matching the filter, newest
// first. The limit defaults to audit.DefaultQueryLimit.
func (s *AuditService) GetLogs(ctx context.Context, companyID int64, filter audit.Filter) ([]*audit.Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = audit.DefaultQueryLimit
	}

	entries, err := s.logRepo.List(ctx, companyID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
