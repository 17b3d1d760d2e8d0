package store

import "errors"

var (
	// ErrNotFound wraps GORM's not found error for consistency across drivers.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned by CreateUser when the email (stored
	// case-folded) already exists.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrCodeAlreadyUsed is returned by ConsumeAuthorizationCode when the
	// code was consumed by a concurrent request (0 rows updated by the
	// conditional UPDATE).
	ErrCodeAlreadyUsed = errors.New("authorization code already used")
)
