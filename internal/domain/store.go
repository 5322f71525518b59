package domain

import "context"

// Mutator applies an in-place change to a position inside the repository's
// compare-and-swap update. Returning an error aborts the update without
// writing anything.
type Mutator func(*Position) error

// PositionStore persists positions in the key-value store. It is the sole
// owner of persisted records and the sole mutation path; callers always
// receive copies.
type PositionStore interface {
	// Create inserts a new record and its index entries atomically.
	// Returns ErrAlreadyExists on id collision.
	Create(ctx context.Context, pos Position) error

	// Get returns the record for id or ErrNotFound.
	Get(ctx context.Context, id string) (Position, error)

	// Update re-reads the record, verifies the stored version still equals
	// expectedVersion, applies mutate, bumps Version and UpdatedAt, and
	// writes the result back with an atomic check-and-set against the
	// store. A lost race returns ErrVersionConflict; the caller re-reads
	// and retries if its intent is still valid.
	Update(ctx context.Context, id string, expectedVersion int64, mutate Mutator) (Position, error)

	// Delete hard-removes the record and its index entries. Administrative
	// purge only; lifecycle stop/close are status mutations, not deletes.
	Delete(ctx context.Context, id string) error

	// ListByUser returns every position indexed under (platform, user).
	ListByUser(ctx context.Context, platform Platform, userID string) ([]Position, error)

	// ListBySymbol returns every position indexed under
	// (platform, user, symbol).
	ListBySymbol(ctx context.Context, platform Platform, userID, symbol string) ([]Position, error)
}
