package domain

import "errors"

// Sentinel errors shared across the store, delivery, and API layers.
// The API layer maps them to HTTP status codes with errors.Is.
var (
	// ErrUnauthenticated means the presented credential is missing or invalid.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden means the authenticated identity may not act on the target.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the referenced chat, message, user, or request is absent.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken means a registration attempted to reuse an existing email.
	ErrEmailTaken = errors.New("email already in use")
)
