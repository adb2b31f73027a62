package user

import "errors"

var (
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailAlreadyExists is returned when email already exists
	ErrEmailAlreadyExists = errors.New("email already exists")

	// ErrUserNil is returned when user is nil
	ErrUserNil = errors.New("user cannot be nil")
)
