// Package metrics computes derived risk and performance figures over
// positions. Every function is pure: no storage access, no side effects.
package metrics

import (
	"github.com/shopspring/decimal"

	"github.com/chartsayer/positionbot/internal/domain"
)

// RiskRewardRatio returns |nearest take-profit - entry| / |entry - stop| and
// true, or zero and false when the ratio is not computable: no stop-loss, a
// stop-loss equal to the entry, or no take-profit targets.
func RiskRewardRatio(p domain.Position) (decimal.Decimal, bool) {
	if p.StopLoss == nil || len(p.TakeProfitTargets) == 0 {
		return decimal.Zero, false
	}
	risk := p.EntryPrice.Sub(*p.StopLoss).Abs()
	if risk.IsZero() {
		return decimal.Zero, false
	}

	// Nearest target by absolute distance from entry.
	reward := p.TakeProfitTargets[0].Price.Sub(p.EntryPrice).Abs()
	for _, t := range p.TakeProfitTargets[1:] {
		if d := t.Price.Sub(p.EntryPrice).Abs(); d.LessThan(reward) {
			reward = d
		}
	}

	return reward.Div(risk), true
}

// UnrealizedPnL returns the open P&L of the position at currentPrice,
// sign-adjusted for side. A position with nothing left at risk has zero
// unrealized P&L.
func UnrealizedPnL(p domain.Position, currentPrice decimal.Decimal) decimal.Decimal {
	if p.RemainingSize.IsZero() {
		return decimal.Zero
	}
	pnl := currentPrice.Sub(p.EntryPrice).Mul(p.RemainingSize)
	if p.Side == domain.SideShort {
		pnl = pnl.Neg()
	}
	return pnl
}

// realized reports whether the position participates in performance stats:
// it is terminal, or it has booked P&L from partial closes.
func realized(p domain.Position) bool {
	return p.Terminal() || !p.RealizedPnL.IsZero()
}

// WinRate returns the fraction of realized positions with positive realized
// P&L. The second return is false when the set contains no realized
// positions, so callers can tell "no data" apart from a zero rate.
func WinRate(positions []domain.Position) (decimal.Decimal, bool) {
	var total, wins int64
	for _, p := range positions {
		if !realized(p) {
			continue
		}
		total++
		if p.RealizedPnL.IsPositive() {
			wins++
		}
	}
	if total == 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromInt(wins).Div(decimal.NewFromInt(total)), true
}

// AverageGain returns the mean realized P&L across winning positions, or
// false when no position has a positive realized P&L.
func AverageGain(positions []domain.Position) (decimal.Decimal, bool) {
	return meanWhere(positions, func(pnl decimal.Decimal) bool { return pnl.IsPositive() })
}

// AverageLoss returns the mean realized P&L across losing positions, or
// false when no position has a negative realized P&L.
func AverageLoss(positions []domain.Position) (decimal.Decimal, bool) {
	return meanWhere(positions, func(pnl decimal.Decimal) bool { return pnl.IsNegative() })
}

func meanWhere(positions []domain.Position, keep func(decimal.Decimal) bool) (decimal.Decimal, bool) {
	sum := decimal.Zero
	var n int64
	for _, p := range positions {
		if keep(p.RealizedPnL) {
			sum = sum.Add(p.RealizedPnL)
			n++
		}
	}
	if n == 0 {
		return decimal.Zero, false
	}
	return sum.Div(decimal.NewFromInt(n)), true
}

// TotalRealizedPnL sums realized P&L over the set.
func TotalRealizedPnL(positions []domain.Position) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range positions {
		sum = sum.Add(p.RealizedPnL)
	}
	return sum
}

// Exposure sums entry_price * remaining_size over active positions,
// optionally restricted to one symbol (empty symbol means all).
func Exposure(positions []domain.Position, symbol string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		if p.Status != domain.StatusActive {
			continue
		}
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		total = total.Add(p.EntryPrice.Mul(p.RemainingSize))
	}
	return total
}
