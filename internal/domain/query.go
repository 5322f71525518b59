package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QueryFilter narrows a position listing. Zero values mean "no constraint";
// the recognized options are exactly these four.
type QueryFilter struct {
	Symbol string         `json:"symbol,omitempty"`
	Status PositionStatus `json:"status,omitempty"`
	Since  *time.Time     `json:"since,omitempty"`
	Until  *time.Time     `json:"until,omitempty"`
}

// Matches reports whether the position passes every set constraint. The time
// bounds apply to CreatedAt: Since is inclusive, Until is exclusive.
func (f QueryFilter) Matches(p Position) bool {
	if f.Symbol != "" && p.Symbol != f.Symbol {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Since != nil && p.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && !p.CreatedAt.Before(*f.Until) {
		return false
	}
	return true
}

// Summary is the aggregate produced by folding the metrics calculator over a
// filtered position set. HasData distinguishes a genuinely empty set from a
// zero win rate.
type Summary struct {
	Count            int             `json:"count"`
	WinRate          decimal.Decimal `json:"win_rate"`
	AverageGain      decimal.Decimal `json:"average_gain"`
	AverageLoss      decimal.Decimal `json:"average_loss"`
	TotalRealizedPnL decimal.Decimal `json:"total_realized_pnl"`
	HasData          bool            `json:"has_data"`
}
