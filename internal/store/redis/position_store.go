package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chartsayer/positionbot/internal/domain"
)

// Key layout:
//
//	position:{id}                                    JSON record
//	position:user:{platform}:{user_id}               set of ids
//	position:symbol:{platform}:{user_id}:{symbol}    set of ids
//
// The indexed fields are immutable after creation, so Update never has to
// touch the index sets; only Create and Delete do, and both run as a single
// Lua script so no index entry can reference a missing record.

// createLua inserts a record and both index entries, or does nothing when
// the id already exists.
const createLua = `
if redis.call('EXISTS', KEYS[1]) == 1 then
    return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
redis.call('SADD', KEYS[3], ARGV[2])
return 1
`

// casUpdateLua replaces a record only when its stored version still matches
// the caller's expectation. Returns -1 for a missing record, -2 for a lost
// race, 1 on success.
const casUpdateLua = `
local cur = redis.call('GET', KEYS[1])
if not cur then
    return -1
end
local rec = cjson.decode(cur)
if tonumber(rec['version']) ~= tonumber(ARGV[1]) then
    return -2
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`

// deleteLua removes a record together with both index entries.
const deleteLua = `
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
redis.call('DEL', KEYS[1])
redis.call('SREM', KEYS[2], ARGV[1])
redis.call('SREM', KEYS[3], ARGV[1])
return 1
`

// casMaxRetries bounds the re-runs of the CAS script on transient driver
// errors. Version races are never retried here; those surface to the caller.
const casMaxRetries = 2

// PositionStore implements domain.PositionStore on Redis.
type PositionStore struct {
	kv       *Client
	rdb      *redis.Client
	createSc *redis.Script
	casSc    *redis.Script
	deleteSc *redis.Script
}

// NewPositionStore creates a PositionStore backed by the given Client.
func NewPositionStore(c *Client) *PositionStore {
	return &PositionStore{
		kv:       c,
		rdb:      c.Underlying(),
		createSc: redis.NewScript(createLua),
		casSc:    redis.NewScript(casUpdateLua),
		deleteSc: redis.NewScript(deleteLua),
	}
}

func positionKey(id string) string {
	return "position:" + id
}

func userIndexKey(platform domain.Platform, userID string) string {
	return fmt.Sprintf("position:user:%s:%s", platform, userID)
}

func symbolIndexKey(platform domain.Platform, userID, symbol string) string {
	return fmt.Sprintf("position:symbol:%s:%s:%s", platform, userID, symbol)
}

func (s *PositionStore) indexKeys(pos domain.Position) []string {
	return []string{
		positionKey(pos.ID),
		userIndexKey(pos.Platform, pos.UserID),
		symbolIndexKey(pos.Platform, pos.UserID, pos.Symbol),
	}
}

// Create inserts the record and its index entries atomically. It returns
// domain.ErrAlreadyExists when the id is taken.
func (s *PositionStore) Create(ctx context.Context, pos domain.Position) error {
	payload, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("redis: marshal position %s: %w", pos.ID, err)
	}

	res, err := s.createSc.Run(ctx, s.rdb, s.indexKeys(pos), payload, pos.ID).Int()
	if err != nil {
		return storeErr("create position "+pos.ID, err)
	}
	if res == 0 {
		return fmt.Errorf("redis: create position %s: %w", pos.ID, domain.ErrAlreadyExists)
	}
	return nil
}

// Get returns the record for id or domain.ErrNotFound.
func (s *PositionStore) Get(ctx context.Context, id string) (domain.Position, error) {
	var pos domain.Position
	if err := s.kv.GetJSON(ctx, positionKey(id), &pos); err != nil {
		return domain.Position{}, err
	}
	return pos, nil
}

// Update applies mutate under an optimistic concurrency check. The record is
// re-read, compared against expectedVersion, mutated, version-bumped, and
// written back through a Lua compare-and-swap keyed on the stored version.
// Exactly one of two concurrent updates from the same version commits; the
// loser gets domain.ErrVersionConflict and must re-read before retrying.
func (s *PositionStore) Update(ctx context.Context, id string, expectedVersion int64, mutate domain.Mutator) (domain.Position, error) {
	pos, err := s.Get(ctx, id)
	if err != nil {
		return domain.Position{}, err
	}
	if pos.Version != expectedVersion {
		return domain.Position{}, fmt.Errorf("redis: update position %s: stored version %d, expected %d: %w",
			id, pos.Version, expectedVersion, domain.ErrVersionConflict)
	}

	if err := mutate(&pos); err != nil {
		return domain.Position{}, err
	}
	pos.Version++
	pos.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(pos)
	if err != nil {
		return domain.Position{}, fmt.Errorf("redis: marshal position %s: %w", id, err)
	}

	var res int
	for attempt := 0; ; attempt++ {
		res, err = s.casSc.Run(ctx, s.rdb, []string{positionKey(id)}, expectedVersion, payload).Int()
		if err == nil {
			break
		}
		if attempt >= casMaxRetries || ctx.Err() != nil {
			return domain.Position{}, storeErr("cas position "+id, err)
		}
		time.Sleep(time.Duration(attempt+1) * 25 * time.Millisecond)
	}

	switch res {
	case 1:
		return pos, nil
	case -1:
		return domain.Position{}, fmt.Errorf("redis: update position %s: %w", id, domain.ErrNotFound)
	default:
		return domain.Position{}, fmt.Errorf("redis: update position %s: %w", id, domain.ErrVersionConflict)
	}
}

// Delete hard-removes the record and its index entries atomically.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	pos, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	res, err := s.deleteSc.Run(ctx, s.rdb, s.indexKeys(pos), pos.ID).Int()
	if err != nil {
		return storeErr("delete position "+id, err)
	}
	if res == 0 {
		return fmt.Errorf("redis: delete position %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListByUser returns every position indexed under (platform, user).
func (s *PositionStore) ListByUser(ctx context.Context, platform domain.Platform, userID string) ([]domain.Position, error) {
	return s.fetchIndexed(ctx, userIndexKey(platform, userID))
}

// ListBySymbol returns every position indexed under (platform, user, symbol).
func (s *PositionStore) ListBySymbol(ctx context.Context, platform domain.Platform, userID, symbol string) ([]domain.Position, error) {
	return s.fetchIndexed(ctx, symbolIndexKey(platform, userID, symbol))
}

// fetchIndexed resolves an index set to ids, then batch-fetches the records.
func (s *PositionStore) fetchIndexed(ctx context.Context, indexKey string) ([]domain.Position, error) {
	ids, err := s.kv.SetMembers(ctx, indexKey)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = positionKey(id)
	}
	return MGetJSON[domain.Position](ctx, s.kv, keys)
}

var _ domain.PositionStore = (*PositionStore)(nil)
