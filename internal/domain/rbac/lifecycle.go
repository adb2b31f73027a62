package rbac

import "time"

// LifecycleState is the uniform active/revoked state used by every
// assignment-like record instead of scattered boolean flags.
type LifecycleState string

const (
	StateActive  LifecycleState = "active"
	StateRevoked LifecycleState = "revoked"
)

// Lifecycle combines the state with an optional expiry. Records are
// soft-revoked, never deleted, so audit history survives.
type Lifecycle struct {
	State     LifecycleState `json:"state"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// ActiveLifecycle returns an active lifecycle with an optional expiry.
func ActiveLifecycle(expiresAt *time.Time) Lifecycle {
	return Lifecycle{State: StateActive, ExpiresAt: expiresAt}
}

// ActiveAt reports whether the record contributes at the given instant:
// it must be in the active state and, if an expiry is set, the instant
// must be strictly before it. Expired rows never contribute regardless
// of how recently they were deactivated.
func (l Lifecycle) ActiveAt(now time.Time) bool {
	if l.State != StateActive {
		return false
	}
	if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return false
	}
	return true
}

// Revoke transitions the lifecycle to the revoked state.
func (l *Lifecycle) Revoke() {
	l.State = StateRevoked
}
