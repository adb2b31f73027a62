package rbac

import "errors"

var (
	// ErrCompanyNotFound is returned when a company is not found
	ErrCompanyNotFound = errors.New("company not found")

	// ErrRoleNotFound is returned when a role is not found
	ErrRoleNotFound = errors.New("role not found")

	// ErrPermissionNotFound is returned when a permission is not found
	ErrPermissionNotFound = errors.New("permission not found")

	// ErrTemplateNotFound is returned when a role template is not found
	ErrTemplateNotFound = errors.New("role template not found")

	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrRoleAlreadyAssigned is returned when the identical active
	// (company, user, role) assignment already exists
	ErrRoleAlreadyAssigned = errors.New("role already assigned to user in company")

	// ErrPermissionAlreadyGranted is returned when a role already holds
	// an active grant of the permission
	ErrPermissionAlreadyGranted = errors.New("permission already granted to role")

	// ErrPermissionDenied is returned when a caller lacks the required
	// permissions. Deliberately generic: callers see "forbidden", not why.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrCompanyAccessDenied is returned for operations scoped to a
	// company the user holds no active assignment in
	ErrCompanyAccessDenied = errors.New("no active assignment in company")

	// ErrCompanySuspended is returned when the target company is not active
	ErrCompanySuspended = errors.New("company is suspended")

	// ErrInvalidConfiguration is returned on invalid inputs to
	// administrative operations (e.g. assigning a nonexistent role)
	ErrInvalidConfiguration = errors.New("invalid rbac configuration")

	// ErrDomainTaken is returned when another company already owns the
	// requested domain
	ErrDomainTaken = errors.New("company domain already taken")

	// ErrReservedCompanyID is returned when an ordinary tenant would be
	// created with the reserved platform id
	ErrReservedCompanyID = errors.New("company id 0 is reserved for the platform tenant")
)
