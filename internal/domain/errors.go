package domain

import "errors"

// Error taxonomy surfaced by the repository, state machine, and service.
// Callers match these with errors.Is; no layer downgrades them to a no-op.
var (
	// ErrNotFound means no position exists for the requested id.
	ErrNotFound = errors.New("position not found")
	// ErrAlreadyExists means a create collided with an existing id.
	ErrAlreadyExists = errors.New("position already exists")
	// ErrVersionConflict means a concurrent mutation won the race. The
	// caller must re-read and retry; the engine never retries on its own.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidTransition means a lifecycle guard was violated, e.g.
	// mutating a closed position.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrInvalidQuantity covers out-of-range sizes, prices, and
	// take-profit allocations.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrExposureLimitExceeded means the pre-create exposure check found
	// open notional above the configured limit.
	ErrExposureLimitExceeded = errors.New("exposure limit exceeded")
	// ErrStoreUnavailable means the key-value store is unreachable. Fatal
	// to the current operation, never swallowed.
	ErrStoreUnavailable = errors.New("store unavailable")
)
