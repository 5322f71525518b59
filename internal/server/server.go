// Package server exposes the position service over HTTP for the bot glue
// and dashboard. Routing uses the Go 1.22 method-aware ServeMux.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chartsayer/positionbot/internal/server/handler"
	"github.com/chartsayer/positionbot/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Positions *handler.PositionHandler
}

// Server is the HTTP API server for the position tracker.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// rateLimitPerMinute bounds requests per client IP; generous for a chat bot
// relaying user commands.
const rateLimitPerMinute = 120

// NewServer creates a Server with all routes registered and the middleware
// chain (rate limit, auth, logging, CORS) applied. limiter may be nil to
// disable rate limiting.
func NewServer(cfg Config, handlers Handlers, limiter middleware.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Position lifecycle.
	mux.HandleFunc("POST /api/positions", handlers.Positions.CreatePosition)
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.GetPosition)
	mux.HandleFunc("PATCH /api/positions/{id}", handlers.Positions.UpdatePosition)
	mux.HandleFunc("DELETE /api/positions/{id}", handlers.Positions.DeletePosition)
	mux.HandleFunc("POST /api/positions/{id}/stop", handlers.Positions.StopPosition)
	mux.HandleFunc("POST /api/positions/{id}/close", handlers.Positions.ClosePosition)
	mux.HandleFunc("POST /api/positions/{id}/partial_close", handlers.Positions.PartialClosePosition)

	// Aggregates.
	mux.HandleFunc("GET /api/summary", handlers.Positions.GetSummary)

	var h http.Handler = mux

	if limiter != nil {
		h = middleware.RateLimit(limiter, rateLimitPerMinute, time.Minute)(h)
	}
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
