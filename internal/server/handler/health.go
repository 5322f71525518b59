package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	store  Pinger
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler with the provided store and logger.
func NewHealthHandler(store Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger}
}

// HealthCheck responds with the server status and store reachability.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	storeStatus := "ok"
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "handler: store ping failed",
			slog.String("error", err.Error()),
		)
		status = http.StatusServiceUnavailable
		storeStatus = "unreachable"
	}

	writeJSON(w, status, map[string]any{
		"status":    storeStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
