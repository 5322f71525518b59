package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func activePosition() Position {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return Position{
		ID:            "pos-1",
		Platform:      PlatformDiscord,
		UserID:        "user-1",
		Symbol:        "BTCUSDT",
		Side:          SideLong,
		EntryPrice:    dec("100"),
		StopLoss:      decPtr("95"),
		Size:          dec("10"),
		RemainingSize: dec("10"),
		Status:        StatusActive,
		RealizedPnL:   decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
		Version:       1,
	}
}

func TestStop_RealizesLossToStopLevel(t *testing.T) {
	p := activePosition()
	now := time.Now().UTC()

	require.NoError(t, p.Stop(now))

	assert.Equal(t, StatusStopped, p.Status)
	assert.True(t, p.RemainingSize.IsZero(), "remaining size = %s", p.RemainingSize)
	// (95 - 100) * 10 for a long.
	assert.True(t, p.RealizedPnL.Equal(dec("-50")), "realized = %s", p.RealizedPnL)
	require.NotNil(t, p.ClosedAt)
	assert.Equal(t, now, *p.ClosedAt)
}

func TestStop_ShortRealizesGainToStopLevel(t *testing.T) {
	p := activePosition()
	p.Side = SideShort
	p.StopLoss = decPtr("110")

	require.NoError(t, p.Stop(time.Now().UTC()))

	// A short stopped above entry loses: (110 - 100) * 10 * -1.
	assert.True(t, p.RealizedPnL.Equal(dec("-100")), "realized = %s", p.RealizedPnL)
	assert.Equal(t, StatusStopped, p.Status)
}

func TestStop_WithoutStopLossRealizesNothing(t *testing.T) {
	p := activePosition()
	p.StopLoss = nil

	require.NoError(t, p.Stop(time.Now().UTC()))

	assert.Equal(t, StatusStopped, p.Status)
	assert.True(t, p.RealizedPnL.IsZero())
	assert.True(t, p.RemainingSize.IsZero())
}

func TestStop_NonActive(t *testing.T) {
	for _, status := range []PositionStatus{StatusStopped, StatusClosed} {
		p := activePosition()
		p.Status = status
		err := p.Stop(time.Now().UTC())
		assert.ErrorIs(t, err, ErrInvalidTransition, "status %s", status)
	}
}

func TestClosePortion_PartialAccumulates(t *testing.T) {
	p := activePosition()
	now := time.Now().UTC()

	require.NoError(t, p.ClosePortion(dec("110"), dec("4"), now))

	assert.Equal(t, StatusActive, p.Status, "partial close keeps the position active")
	assert.True(t, p.RemainingSize.Equal(dec("6")), "remaining = %s", p.RemainingSize)
	assert.True(t, p.RealizedPnL.Equal(dec("40")), "realized = %s", p.RealizedPnL)
	assert.Nil(t, p.ClosedAt)

	require.NoError(t, p.ClosePortion(dec("90"), dec("6"), now))

	assert.Equal(t, StatusClosed, p.Status)
	assert.True(t, p.RemainingSize.IsZero())
	// 40 from the first exit, -60 from the second.
	assert.True(t, p.RealizedPnL.Equal(dec("-20")), "realized = %s", p.RealizedPnL)
	require.NotNil(t, p.ClosedAt)
}

func TestClosePortion_ShortSide(t *testing.T) {
	p := activePosition()
	p.Side = SideShort

	require.NoError(t, p.ClosePortion(dec("90"), dec("10"), time.Now().UTC()))

	// A short covered below entry gains: (90 - 100) * 10 * -1.
	assert.True(t, p.RealizedPnL.Equal(dec("100")), "realized = %s", p.RealizedPnL)
	assert.Equal(t, StatusClosed, p.Status)
}

func TestClosePortion_InvalidQuantityLeavesStateUnchanged(t *testing.T) {
	cases := []struct {
		name      string
		exitPrice string
		exitSize  string
	}{
		{"zero size", "110", "0"},
		{"negative size", "110", "-1"},
		{"size above remaining", "110", "10.000001"},
		{"zero price", "0", "5"},
		{"negative price", "-5", "5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := activePosition()
			before := p

			err := p.ClosePortion(dec(tc.exitPrice), dec(tc.exitSize), time.Now().UTC())

			assert.ErrorIs(t, err, ErrInvalidQuantity)
			assert.Equal(t, before, p, "failed close must not mutate the position")
		})
	}
}

func TestClose_OnStoppedFlipsStatusOnly(t *testing.T) {
	p := activePosition()
	require.NoError(t, p.Stop(time.Now().UTC()))
	realizedAfterStop := p.RealizedPnL

	require.NoError(t, p.Close(dec("120"), time.Now().UTC()))

	assert.Equal(t, StatusClosed, p.Status)
	// No size was left at risk, so the exit price is irrelevant.
	assert.True(t, p.RealizedPnL.Equal(realizedAfterStop))
}

func TestClose_OnClosed(t *testing.T) {
	p := activePosition()
	require.NoError(t, p.Close(dec("120"), time.Now().UTC()))
	require.Equal(t, StatusClosed, p.Status)

	err := p.Close(dec("130"), time.Now().UTC())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRemainingSizeNeverIncreases(t *testing.T) {
	p := activePosition()
	prev := p.RemainingSize

	for _, exit := range []string{"1", "2.5", "0.5", "6"} {
		require.NoError(t, p.ClosePortion(dec("105"), dec(exit), time.Now().UTC()))
		assert.True(t, p.RemainingSize.LessThanOrEqual(prev),
			"remaining went from %s to %s", prev, p.RemainingSize)
		prev = p.RemainingSize
	}
	assert.Equal(t, StatusClosed, p.Status)
}

func TestSetStopLoss(t *testing.T) {
	p := activePosition()

	require.NoError(t, p.SetStopLoss(decPtr("97.5")))
	require.NotNil(t, p.StopLoss)
	assert.True(t, p.StopLoss.Equal(dec("97.5")))

	require.NoError(t, p.SetStopLoss(nil))
	assert.Nil(t, p.StopLoss)

	assert.ErrorIs(t, p.SetStopLoss(decPtr("-1")), ErrInvalidQuantity)

	p.Status = StatusClosed
	assert.ErrorIs(t, p.SetStopLoss(decPtr("97.5")), ErrInvalidTransition)
}

func TestSetTakeProfitTargets(t *testing.T) {
	p := activePosition()

	targets := []TakeProfitTarget{
		{Price: dec("110"), AllocationPct: dec("50")},
		{Price: dec("120"), AllocationPct: dec("50")},
	}
	require.NoError(t, p.SetTakeProfitTargets(targets))
	assert.Len(t, p.TakeProfitTargets, 2)

	p.Status = StatusStopped
	assert.ErrorIs(t, p.SetTakeProfitTargets(targets), ErrInvalidTransition)
}

func TestValidateTargets(t *testing.T) {
	cases := []struct {
		name    string
		targets []TakeProfitTarget
		wantErr bool
	}{
		{"empty", nil, false},
		{"single full allocation", []TakeProfitTarget{
			{Price: dec("110"), AllocationPct: dec("100")},
		}, false},
		{"sum below 100", []TakeProfitTarget{
			{Price: dec("110"), AllocationPct: dec("30")},
			{Price: dec("120"), AllocationPct: dec("30")},
		}, false},
		{"sum above 100", []TakeProfitTarget{
			{Price: dec("110"), AllocationPct: dec("60")},
			{Price: dec("120"), AllocationPct: dec("60")},
		}, true},
		{"zero allocation", []TakeProfitTarget{
			{Price: dec("110"), AllocationPct: decimal.Zero},
		}, true},
		{"allocation above 100", []TakeProfitTarget{
			{Price: dec("110"), AllocationPct: dec("101")},
		}, true},
		{"non-positive price", []TakeProfitTarget{
			{Price: decimal.Zero, AllocationPct: dec("50")},
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTargets(tc.targets)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidQuantity)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParsePlatform(t *testing.T) {
	got, err := ParsePlatform("Discord")
	require.NoError(t, err)
	assert.Equal(t, PlatformDiscord, got)

	got, err = ParsePlatform("telegram")
	require.NoError(t, err)
	assert.Equal(t, PlatformTelegram, got)

	_, err = ParsePlatform("slack")
	assert.Error(t, err)
}

func TestTerminal(t *testing.T) {
	p := activePosition()
	assert.False(t, p.Terminal())

	p.Status = StatusStopped
	assert.True(t, p.Terminal())

	p.Status = StatusClosed
	assert.True(t, p.Terminal())
}
