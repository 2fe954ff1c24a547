// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	// The datastore facade never returns it to callers; absence surfaces as an empty result.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition indicates a required input was missing; no database work was done.
	ErrPrecondition = errors.New("precondition failed")

	// ErrBackend indicates the database driver reported a connectivity or SQL error.
	ErrBackend = errors.New("backend error")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")
)
