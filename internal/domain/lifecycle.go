package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Lifecycle state machine. Every transition below mutates the receiver in
// place and is applied inside the repository's compare-and-swap update, so
// at most one concurrent transition per position commits. Transitions do not
// touch Version or UpdatedAt; the repository owns that bookkeeping.
//
//	active ──► stopped ──► closed
//	   │                     ▲
//	   └─────────────────────┘
//
// A partial close is the active → active self-transition.

// Stop moves an active position to stopped: the stop-loss fired against the
// side, or the user stopped out explicitly. Remaining size drops to zero and
// the loss to the stop level is realized on whatever size was still open.
// A position stopped without a stop-loss set realizes nothing further.
func (p *Position) Stop(now time.Time) error {
	if p.Status != StatusActive {
		return fmt.Errorf("stop %s position %s: %w", p.Status, p.ID, ErrInvalidTransition)
	}
	if p.StopLoss != nil {
		pnl := p.StopLoss.Sub(p.EntryPrice).Mul(p.RemainingSize).Mul(p.direction())
		p.RealizedPnL = p.RealizedPnL.Add(pnl)
	}
	p.RemainingSize = decimal.Zero
	p.Status = StatusStopped
	p.ClosedAt = &now
	return nil
}

// ClosePortion realizes P&L for exitSize units at exitPrice. Closing exactly
// the remaining size is a full close and moves the position to closed;
// anything less keeps it active (a partial close).
func (p *Position) ClosePortion(exitPrice, exitSize decimal.Decimal, now time.Time) error {
	if p.Status != StatusActive {
		return fmt.Errorf("close %s position %s: %w", p.Status, p.ID, ErrInvalidTransition)
	}
	if !exitPrice.IsPositive() {
		return fmt.Errorf("exit price %s must be positive: %w", exitPrice, ErrInvalidQuantity)
	}
	if !exitSize.IsPositive() || exitSize.GreaterThan(p.RemainingSize) {
		return fmt.Errorf("exit size %s out of (0, %s]: %w", exitSize, p.RemainingSize, ErrInvalidQuantity)
	}

	pnl := exitPrice.Sub(p.EntryPrice).Mul(exitSize).Mul(p.direction())
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.RemainingSize = p.RemainingSize.Sub(exitSize)

	if p.RemainingSize.IsZero() {
		p.Status = StatusClosed
		p.ClosedAt = &now
	}
	return nil
}

// Close fully closes the position at exitPrice. On an active position it is
// equivalent to ClosePortion of the entire remaining size. On a stopped
// position no size is left at risk, so it only flips the status to closed.
func (p *Position) Close(exitPrice decimal.Decimal, now time.Time) error {
	switch p.Status {
	case StatusActive:
		return p.ClosePortion(exitPrice, p.RemainingSize, now)
	case StatusStopped:
		p.Status = StatusClosed
		return nil
	default:
		return fmt.Errorf("close %s position %s: %w", p.Status, p.ID, ErrInvalidTransition)
	}
}

// SetStopLoss replaces the stop-loss level. Passing nil clears it. Only an
// active position may change its risk parameters.
func (p *Position) SetStopLoss(stopLoss *decimal.Decimal) error {
	if p.Status != StatusActive {
		return fmt.Errorf("set stop-loss on %s position %s: %w", p.Status, p.ID, ErrInvalidTransition)
	}
	if stopLoss != nil && !stopLoss.IsPositive() {
		return fmt.Errorf("stop-loss %s must be positive: %w", stopLoss, ErrInvalidQuantity)
	}
	p.StopLoss = stopLoss
	return nil
}

// SetTakeProfitTargets replaces the take-profit ladder. Only an active
// position may change its risk parameters.
func (p *Position) SetTakeProfitTargets(targets []TakeProfitTarget) error {
	if p.Status != StatusActive {
		return fmt.Errorf("set take-profit targets on %s position %s: %w", p.Status, p.ID, ErrInvalidTransition)
	}
	if err := ValidateTargets(targets); err != nil {
		return err
	}
	p.TakeProfitTargets = targets
	return nil
}
