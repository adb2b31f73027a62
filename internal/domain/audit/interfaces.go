package audit

import (
	"context"

	"github.com/google/uuid"
)

// LogRepository defines the interface for audit log persistence
type LogRepository interface {
	// Create appends an entry. A failed insert propagates as an error;
	// audit integrity is never silently dropped.
	Create(ctx context.Context, entry *Entry) error

	// GetByID retrieves an entry by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// List retrieves entries for a company matching the filter,
	// newest first, capped at the filter limit
	List(ctx context.Context, companyID int64, filter Filter) ([]*Entry, error)
}

// Service defines the audit trail operations
type Service interface {
	// Log appends a permission-relevant administrative action
	Log(ctx context.Context, entry *Entry) error

	// GetLogs retrieves entries for a company, newest first
	GetLogs(ctx context.Context, companyID int64, filter Filter) ([]*Entry, error)
}
