package ledger

import "errors"

var (
	// ErrNotFound is returned when no purchase matches the given key.
	ErrNotFound = errors.New("purchase not found")
	// ErrConflict is returned when a gateway reference is already bound to
	// a different value. The existing binding is never overwritten.
	ErrConflict = errors.New("gateway reference conflict")
)
