// Package core provides the HTTP chassis for the gaswatch API. It creates a
// chi router and enforces cross-cutting concerns (logging, request IDs,
// metrics, panic recovery and error rendering) before requests reach the
// sensor handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gaswatch/internal/config"
)

// MetricsCollector records API request telemetry. Route is the chi route
// pattern, not the raw path, to keep label cardinality bounded.
type MetricsCollector interface {
	RecordHTTP(method, route string, status int, d time.Duration)
}

// RouteRegistrar mounts handlers under /v1.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the HTTP API.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics MetricsCollector

	// MetricsHandler is served at /metrics when non-nil.
	MetricsHandler http.Handler

	HealthProbes      []Probe
	V1RouteRegistrars []RouteRegistrar

	// OnShutdown hooks run in order during Shutdown.
	OnShutdown []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer prepares a server for route mounting. The caller registers
// health checks and route registrars, then calls MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe serves on the configured port until ctx is cancelled, then
// drains in-flight requests for up to 10 seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.Config.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.Logger.Info("HTTP server listening", "addr", addr)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error("HTTP server shutdown error", "error", err)
	}
	return s.Shutdown(shutdownCtx)
}

// Shutdown releases server resources by running the OnShutdown hooks. All
// hooks run even if one fails; the first error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var first error
	for _, hook := range s.OnShutdown {
		if err := hook(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		return fmt.Errorf("server shutdown: %w", first)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
