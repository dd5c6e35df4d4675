package domain

import "errors"

// Workflows return these wrapped with a human-readable reason, e.g.
// fmt.Errorf("%w: insufficient stock", ErrConflict). ErrInternal never wraps
// the underlying cause.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInternal = errors.New("internal error")
)
