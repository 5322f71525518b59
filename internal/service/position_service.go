// Package service orchestrates the position lifecycle behind a small
// operation set. It is the only entry point other components call; the
// repository and raw store handle are never exposed.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chartsayer/positionbot/internal/domain"
	"github.com/chartsayer/positionbot/internal/metrics"
	"github.com/chartsayer/positionbot/internal/notify"
)

// Exposure policies selectable via configuration.
const (
	ExposurePolicyReject = "reject"
	ExposurePolicyWarn   = "warn"
)

// RiskConfig holds the exposure pre-check parameters. A zero ExposureLimit
// disables the check entirely.
type RiskConfig struct {
	ExposureLimit  decimal.Decimal
	ExposurePolicy string
}

// CreateInput carries the extracted trading parameters for a new position.
type CreateInput struct {
	Platform          domain.Platform
	UserID            string
	Symbol            string
	Side              domain.Side
	EntryPrice        decimal.Decimal
	StopLoss          *decimal.Decimal
	TakeProfitTargets []domain.TakeProfitTarget
	Size              decimal.Decimal
	Leverage          *decimal.Decimal
	Notes             string
	Metadata          map[string]string
}

// UpdateInput mutates the risk parameters of an active position. Nil fields
// are left unchanged; ClearStopLoss removes the stop-loss outright.
type UpdateInput struct {
	StopLoss          *decimal.Decimal
	ClearStopLoss     bool
	TakeProfitTargets []domain.TakeProfitTarget
	Notes             *string
}

// PositionService manages the position lifecycle: creation with an exposure
// pre-check, risk-parameter updates, stops, full and partial closes, and
// filtered queries with summaries.
type PositionService struct {
	store    domain.PositionStore
	notifier *notify.Notifier
	risk     RiskConfig
	logger   *slog.Logger
}

// NewPositionService creates a PositionService with all required dependencies.
func NewPositionService(store domain.PositionStore, notifier *notify.Notifier, risk RiskConfig, logger *slog.Logger) *PositionService {
	return &PositionService{
		store:    store,
		notifier: notifier,
		risk:     risk,
		logger:   logger.With(slog.String("component", "position_service")),
	}
}

// CreatePosition validates the input, runs the exposure pre-check against
// live store state, and persists a new active position.
//
// The exposure read and the create are two sequential store operations, so
// two simultaneous creates can both pass the check. Accepted as a known
// narrow race; the check is a policy gate, not an accounting invariant.
func (s *PositionService) CreatePosition(ctx context.Context, in CreateInput) (domain.Position, error) {
	if err := validateCreate(in); err != nil {
		return domain.Position{}, err
	}

	if err := s.checkExposure(ctx, in); err != nil {
		return domain.Position{}, err
	}

	now := time.Now().UTC()
	pos := domain.Position{
		ID:                uuid.New().String(),
		Platform:          in.Platform,
		UserID:            in.UserID,
		Symbol:            in.Symbol,
		Side:              in.Side,
		EntryPrice:        in.EntryPrice,
		StopLoss:          in.StopLoss,
		TakeProfitTargets: in.TakeProfitTargets,
		Size:              in.Size,
		RemainingSize:     in.Size,
		Status:            domain.StatusActive,
		RealizedPnL:       decimal.Zero,
		Leverage:          in.Leverage,
		Notes:             in.Notes,
		Metadata:          in.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}

	if err := s.store.Create(ctx, pos); err != nil {
		return domain.Position{}, fmt.Errorf("position_service: create: %w", err)
	}

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("platform", string(pos.Platform)),
		slog.String("user_id", pos.UserID),
		slog.String("symbol", pos.Symbol),
		slog.String("side", string(pos.Side)),
		slog.String("entry_price", pos.EntryPrice.String()),
		slog.String("size", pos.Size.String()),
	)
	s.notifyEvent(ctx, "position_opened", "Position opened",
		fmt.Sprintf("%s %s %s @ %s, size %s", pos.Platform, pos.Side, pos.Symbol, pos.EntryPrice, pos.Size))

	return pos, nil
}

// GetPosition returns a position by id.
func (s *PositionService) GetPosition(ctx context.Context, id string) (domain.Position, error) {
	pos, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: get %q: %w", id, err)
	}
	return pos, nil
}

// UpdatePosition mutates the stop-loss, take-profit targets, or notes of an
// active position under the repository's concurrency check. A lost race
// surfaces as ErrVersionConflict; the caller re-reads and re-submits if its
// intent still applies.
func (s *PositionService) UpdatePosition(ctx context.Context, id string, in UpdateInput) (domain.Position, error) {
	return s.mutate(ctx, id, "update", func(p *domain.Position) error {
		if in.ClearStopLoss {
			if err := p.SetStopLoss(nil); err != nil {
				return err
			}
		} else if in.StopLoss != nil {
			if err := p.SetStopLoss(in.StopLoss); err != nil {
				return err
			}
		}
		if in.TakeProfitTargets != nil {
			if err := p.SetTakeProfitTargets(in.TakeProfitTargets); err != nil {
				return err
			}
		}
		if in.Notes != nil {
			if p.Status != domain.StatusActive {
				return fmt.Errorf("set notes on %s position %s: %w", p.Status, p.ID, domain.ErrInvalidTransition)
			}
			p.Notes = *in.Notes
		}
		return nil
	})
}

// StopPosition stops out an active position, realizing the loss to the
// stop-loss level on the remaining size.
func (s *PositionService) StopPosition(ctx context.Context, id string) (domain.Position, error) {
	pos, err := s.mutate(ctx, id, "stop", func(p *domain.Position) error {
		return p.Stop(time.Now().UTC())
	})
	if err != nil {
		return domain.Position{}, err
	}

	s.logger.InfoContext(ctx, "position stopped",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("realized_pnl", pos.RealizedPnL.String()),
	)
	s.notifyEvent(ctx, "position_stopped", "Position stopped",
		fmt.Sprintf("%s %s stopped out, realized P&L %s", pos.Side, pos.Symbol, pos.RealizedPnL))

	return pos, nil
}

// ClosePosition fully closes a position at exitPrice.
func (s *PositionService) ClosePosition(ctx context.Context, id string, exitPrice decimal.Decimal) (domain.Position, error) {
	pos, err := s.mutate(ctx, id, "close", func(p *domain.Position) error {
		return p.Close(exitPrice, time.Now().UTC())
	})
	if err != nil {
		return domain.Position{}, err
	}

	s.logger.InfoContext(ctx, "position closed",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("exit_price", exitPrice.String()),
		slog.String("realized_pnl", pos.RealizedPnL.String()),
	)
	s.notifyEvent(ctx, "position_closed", "Position closed",
		fmt.Sprintf("%s %s closed @ %s, realized P&L %s", pos.Side, pos.Symbol, exitPrice, pos.RealizedPnL))

	return pos, nil
}

// PartialClosePosition closes exitSize units at exitPrice, leaving the
// position active unless the entire remaining size was taken.
func (s *PositionService) PartialClosePosition(ctx context.Context, id string, exitPrice, exitSize decimal.Decimal) (domain.Position, error) {
	pos, err := s.mutate(ctx, id, "partial close", func(p *domain.Position) error {
		return p.ClosePortion(exitPrice, exitSize, time.Now().UTC())
	})
	if err != nil {
		return domain.Position{}, err
	}

	s.logger.InfoContext(ctx, "position partially closed",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("exit_price", exitPrice.String()),
		slog.String("exit_size", exitSize.String()),
		slog.String("remaining_size", pos.RemainingSize.String()),
	)
	if pos.Status == domain.StatusClosed {
		s.notifyEvent(ctx, "position_closed", "Position closed",
			fmt.Sprintf("%s %s closed @ %s, realized P&L %s", pos.Side, pos.Symbol, exitPrice, pos.RealizedPnL))
	}

	return pos, nil
}

// DeletePosition hard-removes a position and its index entries. This is the
// administrative purge path, not part of the trading lifecycle.
func (s *PositionService) DeletePosition(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("position_service: delete %q: %w", id, err)
	}
	s.logger.InfoContext(ctx, "position purged", slog.String("position_id", id))
	return nil
}

// mutate reads the current record and applies fn through the repository's
// compare-and-swap update, pinned to the version just read.
func (s *PositionService) mutate(ctx context.Context, id, op string, fn domain.Mutator) (domain.Position, error) {
	pos, err := s.store.Get(ctx, id)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: %s %q: %w", op, id, err)
	}

	updated, err := s.store.Update(ctx, id, pos.Version, fn)
	if err != nil {
		return domain.Position{}, fmt.Errorf("position_service: %s %q: %w", op, id, err)
	}
	return updated, nil
}

// checkExposure re-reads the user's open notional from the store and applies
// the configured policy when the new position would push it past the limit.
func (s *PositionService) checkExposure(ctx context.Context, in CreateInput) error {
	if !s.risk.ExposureLimit.IsPositive() {
		return nil
	}

	existing, err := s.store.ListByUser(ctx, in.Platform, in.UserID)
	if err != nil {
		return fmt.Errorf("position_service: exposure pre-check: %w", err)
	}

	current := metrics.Exposure(existing, "")
	proposed := current.Add(in.EntryPrice.Mul(in.Size))
	if proposed.LessThanOrEqual(s.risk.ExposureLimit) {
		return nil
	}

	if s.risk.ExposurePolicy == ExposurePolicyReject {
		return fmt.Errorf("position_service: exposure %s above limit %s: %w",
			proposed, s.risk.ExposureLimit, domain.ErrExposureLimitExceeded)
	}

	s.logger.WarnContext(ctx, "exposure above limit, allowing by policy",
		slog.String("platform", string(in.Platform)),
		slog.String("user_id", in.UserID),
		slog.String("exposure", proposed.String()),
		slog.String("limit", s.risk.ExposureLimit.String()),
	)
	s.notifyEvent(ctx, "exposure_warning", "Exposure warning",
		fmt.Sprintf("open exposure %s above limit %s", proposed, s.risk.ExposureLimit))
	return nil
}

// notifyEvent dispatches a notification; delivery failures are logged and
// never fail the mutation that triggered them.
func (s *PositionService) notifyEvent(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func validateCreate(in CreateInput) error {
	if _, err := domain.ParsePlatform(string(in.Platform)); err != nil {
		return err
	}
	if in.UserID == "" {
		return fmt.Errorf("user_id required: %w", domain.ErrInvalidQuantity)
	}
	if in.Symbol == "" {
		return fmt.Errorf("symbol required: %w", domain.ErrInvalidQuantity)
	}
	if in.Side != domain.SideLong && in.Side != domain.SideShort {
		return fmt.Errorf("unknown side %q: %w", in.Side, domain.ErrInvalidQuantity)
	}
	if !in.EntryPrice.IsPositive() {
		return fmt.Errorf("entry price %s must be positive: %w", in.EntryPrice, domain.ErrInvalidQuantity)
	}
	if !in.Size.IsPositive() {
		return fmt.Errorf("size %s must be positive: %w", in.Size, domain.ErrInvalidQuantity)
	}
	if in.StopLoss != nil && !in.StopLoss.IsPositive() {
		return fmt.Errorf("stop-loss %s must be positive: %w", in.StopLoss, domain.ErrInvalidQuantity)
	}
	if in.Leverage != nil && !in.Leverage.IsPositive() {
		return fmt.Errorf("leverage %s must be positive: %w", in.Leverage, domain.ErrInvalidQuantity)
	}
	return domain.ValidateTargets(in.TakeProfitTargets)
}
