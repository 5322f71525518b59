package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/chartsayer/positionbot/internal/domain"
	"github.com/chartsayer/positionbot/internal/metrics"
)

// Query engine. Listings resolve through the store's secondary indexes
// (never a keyspace scan), apply the filter in memory, and return a
// materialized slice ordered by creation time, newest first.

// ListPositions returns the user's positions matching the filter.
func (s *PositionService) ListPositions(ctx context.Context, platform domain.Platform, userID string, filter domain.QueryFilter) ([]domain.Position, error) {
	positions, err := s.fetch(ctx, platform, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("position_service: list: %w", err)
	}

	out := positions[:0]
	for _, p := range positions {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetSummary folds the metrics calculator over the filtered position set.
func (s *PositionService) GetSummary(ctx context.Context, platform domain.Platform, userID string, filter domain.QueryFilter) (domain.Summary, error) {
	positions, err := s.ListPositions(ctx, platform, userID, filter)
	if err != nil {
		return domain.Summary{}, err
	}
	return summarize(positions), nil
}

// fetch picks the narrowest index the filter allows.
func (s *PositionService) fetch(ctx context.Context, platform domain.Platform, userID string, filter domain.QueryFilter) ([]domain.Position, error) {
	if filter.Symbol != "" {
		return s.store.ListBySymbol(ctx, platform, userID, filter.Symbol)
	}
	return s.store.ListByUser(ctx, platform, userID)
}

func summarize(positions []domain.Position) domain.Summary {
	winRate, hasData := metrics.WinRate(positions)
	avgGain, _ := metrics.AverageGain(positions)
	avgLoss, _ := metrics.AverageLoss(positions)

	return domain.Summary{
		Count:            len(positions),
		WinRate:          winRate,
		AverageGain:      avgGain,
		AverageLoss:      avgLoss,
		TotalRealizedPnL: metrics.TotalRealizedPnL(positions),
		HasData:          hasData,
	}
}

// ExposureFor reports the user's current open notional, optionally scoped to
// one symbol, read live from the store.
func (s *PositionService) ExposureFor(ctx context.Context, platform domain.Platform, userID, symbol string) (decimal.Decimal, error) {
	positions, err := s.store.ListByUser(ctx, platform, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("position_service: exposure: %w", err)
	}
	return metrics.Exposure(positions, symbol), nil
}
