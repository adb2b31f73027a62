package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action identifies the kind of permission-relevant administrative
// action recorded in the log.
type Action string

const (
	ActionCompanyCreated    Action = "COMPANY_CREATED"
	ActionRoleCreated       Action = "ROLE_CREATED"
	ActionRoleUpdated       Action = "ROLE_UPDATED"
	ActionRoleDeleted       Action = "ROLE_DELETED"
	ActionPermissionGranted Action = "PERMISSION_GRANTED"
	ActionPermissionRevoked Action = "PERMISSION_REVOKED"
	ActionRoleAssigned      Action = "ROLE_ASSIGNED"
	ActionRoleRevoked       Action = "ROLE_REVOKED"
	ActionProjectAssigned   Action = "PROJECT_ASSIGNED"
	ActionProjectRevoked    Action = "PROJECT_REVOKED"
	ActionPlatformPromoted  Action = "PLATFORM_PROMOTED"
)

// Entry is one append-only audit record. Entries are never mutated or
// deleted by the engine.
type Entry struct {
	ID           uuid.UUID       `json:"id"`
	CompanyID    int64           `json:"company_id"`
	ActorID      uuid.UUID       `json:"actor_id"`
	Action       Action          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	OldValue     json.RawMessage `json:"old_value,omitempty"`
	NewValue     json.RawMessage `json:"new_value,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// DefaultQueryLimit caps GetLogs results when the caller supplies none.
const DefaultQueryLimit = 100

// Filter narrows audit log queries. Zero values mean "no constraint".
type Filter struct {
	ActorID *uuid.UUID
	Action  Action
	From    *time.Time
	To      *time.Time
	Limit   int
}
