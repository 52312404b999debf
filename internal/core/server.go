// Package core provides the HTTP chassis for the TillPoint billing services.
// It builds the chi router and enforces cross-cutting concerns, panic
// recovery, request correlation, logging, before requests reach the webhook
// handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tillpoint/internal/config"
)

// RouteRegistrar mounts a group of domain routes onto the router. Handler
// packages register themselves through this indirection so core never imports
// them.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the router and its cross-cutting dependencies,
// allowing distinct configuration per environment and easy injection during
// testing.
type Server struct {
	Config          *config.Config
	Logger          *slog.Logger
	HealthProbes    []HealthProbe
	RouteRegistrars []RouteRegistrar

	router  *chi.Mux
	closers []func() error
}

// NewServer initializes the chassis and prepares the server for route
// mounting. The caller mounts routes via MountRoutes after construction;
// this separation lets tests customize route registration.
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

// OnShutdown registers a cleanup function to run during Shutdown, typically
// a database pool close.
func (s *Server) OnShutdown(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs registered cleanup functions. It returns the first error
// encountered but still runs every cleanup.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for _, closer := range s.closers {
		if err := closer(); err != nil {
			s.Logger.Error("shutdown cleanup failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	s.Logger.Info("server shutdown complete")
	return firstErr
}
