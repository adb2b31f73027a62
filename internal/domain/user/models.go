package user

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity record referenced by company and project
// assignments. Users are not owned by a single company; membership is
// established through assignments, and a user may belong to several
// companies at once.
type User struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"` // globally unique
	DisplayName string     `json:"display_name"`
	Active      bool       `json:"active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	MFAEnabled  bool       `json:"mfa_enabled"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
