package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartsayer/positionbot/internal/domain"
)

func newPosition(id, symbol string) domain.Position {
	now := time.Now().UTC()
	return domain.Position{
		ID:            id,
		Platform:      domain.PlatformDiscord,
		UserID:        "user-1",
		Symbol:        symbol,
		Side:          domain.SideLong,
		EntryPrice:    decimal.NewFromInt(100),
		Size:          decimal.NewFromInt(10),
		RemainingSize: decimal.NewFromInt(10),
		Status:        domain.StatusActive,
		RealizedPnL:   decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()
	pos := newPosition("pos-1", "BTCUSDT")

	require.NoError(t, store.Create(ctx, pos))

	got, err := store.Get(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, pos.ID, got.ID)
	assert.Equal(t, pos.Symbol, got.Symbol)
	assert.True(t, got.EntryPrice.Equal(pos.EntryPrice))
	assert.Equal(t, int64(1), got.Version)
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()
	pos := newPosition("pos-1", "BTCUSDT")

	require.NoError(t, store.Create(ctx, pos))
	assert.ErrorIs(t, store.Create(ctx, pos), domain.ErrAlreadyExists)
}

func TestGetMissing(t *testing.T) {
	store := NewPositionStore()
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateIncrementsVersion(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()
	require.NoError(t, store.Create(ctx, newPosition("pos-1", "BTCUSDT")))

	updated, err := store.Update(ctx, "pos-1", 1, func(p *domain.Position) error {
		p.Notes = "first"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "first", updated.Notes)

	got, err := store.Get(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestUpdateStaleVersionLosesRace(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()
	require.NoError(t, store.Create(ctx, newPosition("pos-1", "BTCUSDT")))

	// Two writers both read version 1. The first commits.
	_, err := store.Update(ctx, "pos-1", 1, func(p *domain.Position) error {
		p.Notes = "winner"
		return nil
	})
	require.NoError(t, err)

	// The second is still pinned to version 1 and must lose.
	_, err = store.Update(ctx, "pos-1", 1, func(p *domain.Position) error {
		p.Notes = "loser"
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	got, err := store.Get(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, "winner", got.Notes)
	assert.Equal(t, int64(2), got.Version)

	// A re-read followed by a re-submit lands at version 3.
	_, err = store.Update(ctx, "pos-1", got.Version, func(p *domain.Position) error {
		p.Notes = "retried"
		return nil
	})
	require.NoError(t, err)

	got, err = store.Get(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, "retried", got.Notes)
}

func TestUpdateMutatorErrorLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()
	require.NoError(t, store.Create(ctx, newPosition("pos-1", "BTCUSDT")))

	_, err := store.Update(ctx, "pos-1", 1, func(p *domain.Position) error {
		p.Notes = "half-applied"
		return domain.ErrInvalidTransition
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := store.Get(ctx, "pos-1")
	require.NoError(t, err)
	assert.Empty(t, got.Notes)
	assert.Equal(t, int64(1), got.Version, "a failed mutation must not bump the version")
}

func TestDeleteRemovesIndexEntries(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()
	require.NoError(t, store.Create(ctx, newPosition("pos-1", "BTCUSDT")))
	require.NoError(t, store.Create(ctx, newPosition("pos-2", "ETHUSDT")))

	require.NoError(t, store.Delete(ctx, "pos-1"))

	_, err := store.Get(ctx, "pos-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "pos-1"), domain.ErrNotFound)

	byUser, err := store.ListByUser(ctx, domain.PlatformDiscord, "user-1")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, "pos-2", byUser[0].ID)

	bySymbol, err := store.ListBySymbol(ctx, domain.PlatformDiscord, "user-1", "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, bySymbol)
}

func TestListScoping(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()
	require.NoError(t, store.Create(ctx, newPosition("pos-1", "BTCUSDT")))
	require.NoError(t, store.Create(ctx, newPosition("pos-2", "ETHUSDT")))

	other := newPosition("pos-3", "BTCUSDT")
	other.Platform = domain.PlatformTelegram
	require.NoError(t, store.Create(ctx, other))

	byUser, err := store.ListByUser(ctx, domain.PlatformDiscord, "user-1")
	require.NoError(t, err)
	assert.Len(t, byUser, 2, "the telegram position lives under a different index")

	bySymbol, err := store.ListBySymbol(ctx, domain.PlatformDiscord, "user-1", "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, bySymbol, 1)
	assert.Equal(t, "pos-1", bySymbol[0].ID)

	empty, err := store.ListByUser(ctx, domain.PlatformDiscord, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStoredStateIsIsolatedFromCallers(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore()
	pos := newPosition("pos-1", "BTCUSDT")
	pos.Metadata = map[string]string{"chart": "msg-1"}
	require.NoError(t, store.Create(ctx, pos))

	// Mutating what Get returned must not leak into the store.
	got, err := store.Get(ctx, "pos-1")
	require.NoError(t, err)
	got.Metadata["chart"] = "tampered"

	fresh, err := store.Get(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", fresh.Metadata["chart"])
}
