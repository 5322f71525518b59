package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/chartsayer/positionbot/internal/domain"
	"github.com/chartsayer/positionbot/internal/service"
)

// PositionService defines the operations the position handler requires.
type PositionService interface {
	CreatePosition(ctx context.Context, in service.CreateInput) (domain.Position, error)
	GetPosition(ctx context.Context, id string) (domain.Position, error)
	UpdatePosition(ctx context.Context, id string, in service.UpdateInput) (domain.Position, error)
	StopPosition(ctx context.Context, id string) (domain.Position, error)
	ClosePosition(ctx context.Context, id string, exitPrice decimal.Decimal) (domain.Position, error)
	PartialClosePosition(ctx context.Context, id string, exitPrice, exitSize decimal.Decimal) (domain.Position, error)
	DeletePosition(ctx context.Context, id string) error
	ListPositions(ctx context.Context, platform domain.Platform, userID string, filter domain.QueryFilter) ([]domain.Position, error)
	GetSummary(ctx context.Context, platform domain.Platform, userID string, filter domain.QueryFilter) (domain.Summary, error)
}

// PositionHandler serves the position lifecycle endpoints consumed by the
// bot glue and the dashboard.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

type createPositionRequest struct {
	Platform          string                    `json:"platform"`
	UserID            string                    `json:"user_id"`
	Symbol            string                    `json:"symbol"`
	Side              string                    `json:"side"`
	EntryPrice        decimal.Decimal           `json:"entry_price"`
	StopLoss          *decimal.Decimal          `json:"stop_loss,omitempty"`
	TakeProfitTargets []domain.TakeProfitTarget `json:"take_profit_targets,omitempty"`
	Size              decimal.Decimal           `json:"size"`
	Leverage          *decimal.Decimal          `json:"leverage,omitempty"`
	Notes             string                    `json:"notes,omitempty"`
	Metadata          map[string]string         `json:"metadata,omitempty"`
}

// CreatePosition opens a new position from extracted chart parameters.
// POST /api/positions
func (h *PositionHandler) CreatePosition(w http.ResponseWriter, r *http.Request) {
	var req createPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pos, err := h.positions.CreatePosition(r.Context(), service.CreateInput{
		Platform:          domain.Platform(req.Platform),
		UserID:            req.UserID,
		Symbol:            req.Symbol,
		Side:              domain.Side(req.Side),
		EntryPrice:        req.EntryPrice,
		StopLoss:          req.StopLoss,
		TakeProfitTargets: req.TakeProfitTargets,
		Size:              req.Size,
		Leverage:          req.Leverage,
		Notes:             req.Notes,
		Metadata:          req.Metadata,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: create position failed",
			slog.String("user_id", req.UserID),
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, pos)
}

// GetPosition returns one position by id.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.positions.GetPosition(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

type updatePositionRequest struct {
	StopLoss          *decimal.Decimal          `json:"stop_loss,omitempty"`
	ClearStopLoss     bool                      `json:"clear_stop_loss,omitempty"`
	TakeProfitTargets []domain.TakeProfitTarget `json:"take_profit_targets,omitempty"`
	Notes             *string                   `json:"notes,omitempty"`
}

// UpdatePosition adjusts the risk parameters of an active position.
// PATCH /api/positions/{id}
func (h *PositionHandler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req updatePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pos, err := h.positions.UpdatePosition(r.Context(), r.PathValue("id"), service.UpdateInput{
		StopLoss:          req.StopLoss,
		ClearStopLoss:     req.ClearStopLoss,
		TakeProfitTargets: req.TakeProfitTargets,
		Notes:             req.Notes,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// StopPosition stops out an active position.
// POST /api/positions/{id}/stop
func (h *PositionHandler) StopPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := h.positions.StopPosition(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

type closePositionRequest struct {
	ExitPrice decimal.Decimal `json:"exit_price"`
	ExitSize  decimal.Decimal `json:"exit_size,omitempty"`
}

// ClosePosition fully closes a position at the given exit price.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	var req closePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pos, err := h.positions.ClosePosition(r.Context(), r.PathValue("id"), req.ExitPrice)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// PartialClosePosition realizes part of a position at the given exit price.
// POST /api/positions/{id}/partial_close
func (h *PositionHandler) PartialClosePosition(w http.ResponseWriter, r *http.Request) {
	var req closePositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	pos, err := h.positions.PartialClosePosition(r.Context(), r.PathValue("id"), req.ExitPrice, req.ExitSize)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// DeletePosition hard-removes a position. Administrative purge only.
// DELETE /api/positions/{id}
func (h *PositionHandler) DeletePosition(w http.ResponseWriter, r *http.Request) {
	if err := h.positions.DeletePosition(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns the user's positions matching the query filters.
// GET /api/positions?platform=discord&user_id=...&symbol=&status=&since=&until=
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	platform, userID, err := userScope(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseQueryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	positions, err := h.positions.ListPositions(r.Context(), platform, userID, filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetSummary returns aggregate performance over the filtered position set.
// GET /api/summary?platform=discord&user_id=...&symbol=&status=&since=&until=
func (h *PositionHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	platform, userID, err := userScope(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseQueryFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.positions.GetSummary(r.Context(), platform, userID, filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: summary failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
