package errors

import "errors"

// Common application errors shared across services and repositories.
var (
	// ErrNotFound is returned when a record or resource does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized is returned for authentication failures (bad credentials, invalid token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrValidation is returned for malformed or missing input.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned for state conflicts (e.g. duplicate email on registration).
	ErrConflict = errors.New("resource state conflict")
)
