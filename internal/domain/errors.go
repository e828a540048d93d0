package domain

import "errors"

var (
	// ErrValidation marks caller input errors.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks lookups that matched no record.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks writes rejected because of concurrent state.
	ErrConflict = errors.New("conflict")

	// ErrStaleTransition is returned by a conditional state transition whose
	// expected source state no longer matches. Callers treat it as a benign
	// no-op: duplicate callbacks and stale workers both land here.
	ErrStaleTransition = errors.New("stale state transition")

	// ErrLeaseLost is returned by lease-checked writes when the caller no
	// longer holds the claim on the delivery record.
	ErrLeaseLost = errors.New("delivery lease lost")
)
