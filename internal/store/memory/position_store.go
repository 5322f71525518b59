// Package memory implements domain.PositionStore on an in-process map with
// the same optimistic-concurrency semantics as the Redis store. It backs
// unit tests and local development without a running Redis.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chartsayer/positionbot/internal/domain"
)

// PositionStore is a mutex-guarded map of positions plus the two secondary
// indexes the Redis store keeps as sets.
type PositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	byUser    map[string]map[string]struct{}
	bySymbol  map[string]map[string]struct{}
}

// NewPositionStore creates an empty store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[string]domain.Position),
		byUser:    make(map[string]map[string]struct{}),
		bySymbol:  make(map[string]map[string]struct{}),
	}
}

func userKey(platform domain.Platform, userID string) string {
	return fmt.Sprintf("%s:%s", platform, userID)
}

func symbolKey(platform domain.Platform, userID, symbol string) string {
	return fmt.Sprintf("%s:%s:%s", platform, userID, symbol)
}

func addTo(index map[string]map[string]struct{}, key, id string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

// Create inserts the record and its index entries.
func (s *PositionStore) Create(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[pos.ID]; ok {
		return fmt.Errorf("memory: create position %s: %w", pos.ID, domain.ErrAlreadyExists)
	}
	s.positions[pos.ID] = clone(pos)
	addTo(s.byUser, userKey(pos.Platform, pos.UserID), pos.ID)
	addTo(s.bySymbol, symbolKey(pos.Platform, pos.UserID, pos.Symbol), pos.ID)
	return nil
}

// Get returns a copy of the record for id or domain.ErrNotFound.
func (s *PositionStore) Get(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: get position %s: %w", id, domain.ErrNotFound)
	}
	return clone(pos), nil
}

// Update applies mutate under the same compare-and-swap contract as the
// Redis store: at most one of two updates pinned to the same version wins.
func (s *PositionStore) Update(_ context.Context, id string, expectedVersion int64, mutate domain.Mutator) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: update position %s: %w", id, domain.ErrNotFound)
	}
	if pos.Version != expectedVersion {
		return domain.Position{}, fmt.Errorf("memory: update position %s: stored version %d, expected %d: %w",
			id, pos.Version, expectedVersion, domain.ErrVersionConflict)
	}

	next := clone(pos)
	if err := mutate(&next); err != nil {
		return domain.Position{}, err
	}
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	s.positions[id] = clone(next)
	return next, nil
}

// Delete hard-removes the record and its index entries.
func (s *PositionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[id]
	if !ok {
		return fmt.Errorf("memory: delete position %s: %w", id, domain.ErrNotFound)
	}
	delete(s.positions, id)
	delete(s.byUser[userKey(pos.Platform, pos.UserID)], id)
	delete(s.bySymbol[symbolKey(pos.Platform, pos.UserID, pos.Symbol)], id)
	return nil
}

// ListByUser returns every position indexed under (platform, user).
func (s *PositionStore) ListByUser(_ context.Context, platform domain.Platform, userID string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(s.byUser[userKey(platform, userID)]), nil
}

// ListBySymbol returns every position indexed under (platform, user, symbol).
func (s *PositionStore) ListBySymbol(_ context.Context, platform domain.Platform, userID, symbol string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(s.bySymbol[symbolKey(platform, userID, symbol)]), nil
}

func (s *PositionStore) collect(ids map[string]struct{}) []domain.Position {
	if len(ids) == 0 {
		return nil
	}
	out := make([]domain.Position, 0, len(ids))
	for id := range ids {
		if pos, ok := s.positions[id]; ok {
			out = append(out, clone(pos))
		}
	}
	return out
}

// clone deep-copies the fields that would otherwise share memory, so callers
// can never mutate stored state behind the store's back.
func clone(p domain.Position) domain.Position {
	out := p
	if p.StopLoss != nil {
		sl := *p.StopLoss
		out.StopLoss = &sl
	}
	if p.Leverage != nil {
		lv := *p.Leverage
		out.Leverage = &lv
	}
	if p.ClosedAt != nil {
		ts := *p.ClosedAt
		out.ClosedAt = &ts
	}
	if p.TakeProfitTargets != nil {
		out.TakeProfitTargets = append([]domain.TakeProfitTarget(nil), p.TakeProfitTargets...)
	}
	if p.Metadata != nil {
		out.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

var _ domain.PositionStore = (*PositionStore)(nil)
