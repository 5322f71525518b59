// Package domain defines the core entities, interfaces, and error taxonomy
// for the position tracker. It has no dependencies on storage or transport.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Platform identifies the chat platform a position belongs to.
type Platform string

const (
	PlatformDiscord  Platform = "discord"
	PlatformTelegram Platform = "telegram"
)

// ParsePlatform validates and normalizes a platform string.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(s)) {
	case PlatformDiscord:
		return PlatformDiscord, nil
	case PlatformTelegram:
		return PlatformTelegram, nil
	default:
		return "", fmt.Errorf("unknown platform %q: %w", s, ErrInvalidQuantity)
	}
}

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// PositionStatus tracks where a position is in its lifecycle.
type PositionStatus string

const (
	// StatusActive is the initial state; size remains at risk.
	StatusActive PositionStatus = "active"
	// StatusStopped means the stop-loss fired or the user stopped out; no
	// size remains at risk.
	StatusStopped PositionStatus = "stopped"
	// StatusClosed is terminal; the entity is immutable afterwards.
	StatusClosed PositionStatus = "closed"
)

// TakeProfitTarget is one take-profit level with the percentage of the
// position allocated to it. Allocations across all targets of a position
// must not sum above 100.
type TakeProfitTarget struct {
	Price         decimal.Decimal `json:"price"`
	AllocationPct decimal.Decimal `json:"allocation_pct"`
}

// Position is a tracked trade with entry, risk, and target parameters.
//
// Platform, UserID, Symbol, Side, EntryPrice, and Size are immutable after
// creation. Version increments on every successful mutation and drives the
// repository's optimistic concurrency check.
type Position struct {
	ID                string             `json:"id"`
	Platform          Platform           `json:"platform"`
	UserID            string             `json:"user_id"`
	Symbol            string             `json:"symbol"`
	Side              Side               `json:"side"`
	EntryPrice        decimal.Decimal    `json:"entry_price"`
	StopLoss          *decimal.Decimal   `json:"stop_loss,omitempty"`
	TakeProfitTargets []TakeProfitTarget `json:"take_profit_targets,omitempty"`
	Size              decimal.Decimal    `json:"size"`
	RemainingSize     decimal.Decimal    `json:"remaining_size"`
	Status            PositionStatus     `json:"status"`
	RealizedPnL       decimal.Decimal    `json:"realized_pnl"`
	Leverage          *decimal.Decimal   `json:"leverage,omitempty"`
	Notes             string             `json:"notes,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
	ClosedAt          *time.Time         `json:"closed_at,omitempty"`
	Version           int64              `json:"version"`
}

// Terminal reports whether the position can take no further price risk.
func (p Position) Terminal() bool {
	return p.Status == StatusStopped || p.Status == StatusClosed
}

// direction returns +1 for long and -1 for short, so P&L formulas can be
// written once as (exit - entry) * size * direction.
func (p Position) direction() decimal.Decimal {
	if p.Side == SideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// ValidateTargets checks a take-profit target list: every price must be
// positive, every allocation in (0, 100], and the allocations must not sum
// above 100. It returns ErrInvalidQuantity on violation.
func ValidateTargets(targets []TakeProfitTarget) error {
	hundred := decimal.NewFromInt(100)
	total := decimal.Zero
	for _, t := range targets {
		if !t.Price.IsPositive() {
			return fmt.Errorf("take-profit price %s must be positive: %w", t.Price, ErrInvalidQuantity)
		}
		if !t.AllocationPct.IsPositive() || t.AllocationPct.GreaterThan(hundred) {
			return fmt.Errorf("take-profit allocation %s out of (0, 100]: %w", t.AllocationPct, ErrInvalidQuantity)
		}
		total = total.Add(t.AllocationPct)
	}
	if total.GreaterThan(hundred) {
		return fmt.Errorf("take-profit allocations sum to %s, above 100: %w", total, ErrInvalidQuantity)
	}
	return nil
}
