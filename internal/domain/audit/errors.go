package audit

import "errors"

var (
	// ErrEntryNotFound is returned when an audit entry is not found
	ErrEntryNotFound = errors.New("audit entry not found")

	// ErrMissingRequiredFields is returned when an entry lacks the
	// company, actor or action
	ErrMissingRequiredFields = errors.New("missing required audit fields")
)
