// Package server exposes the agent's status over HTTP: health probes,
// version, metrics, and read-only views of the throttle and activity ledger.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/moltpilot/moltpilot/internal/core/throttle"
	apperrors "github.com/moltpilot/moltpilot/internal/errors"
	"github.com/moltpilot/moltpilot/internal/observability"
	"github.com/moltpilot/moltpilot/internal/server/handlers"
	servermw "github.com/moltpilot/moltpilot/internal/server/middleware"
)

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	host   string
	port   int

	health     *handlers.HealthManager
	throttle   *throttle.Throttle
	ledger     handlers.ActivityLister
	adminToken string
}

// Option configures optional server components.
type Option func(*Server)

// WithThrottle exposes the throttle at /v1/throttle.
func WithThrottle(t *throttle.Throttle) Option {
	return func(s *Server) { s.throttle = t }
}

// WithActivity exposes the ledger at /v1/activity.
func WithActivity(ledger handlers.ActivityLister) Option {
	return func(s *Server) { s.ledger = ledger }
}

// WithHealth replaces the default health manager.
func WithHealth(hm *handlers.HealthManager) Option {
	return func(s *Server) { s.health = hm }
}

// WithAdminToken enables the bearer-protected /admin/signal endpoint.
func WithAdminToken(token string) Option {
	return func(s *Server) { s.adminToken = token }
}

// New creates a new HTTP server instance
func New(host string, port int, opts ...Option) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)

	// Order: request ID, metrics, panic recovery.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		host:   host,
		port:   port,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = handlers.NewHealthManager(handlers.AppVersion)
	}

	handlers.SetHTTPErrorResponder(HandleError)
	s.registerRoutes()

	return s
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	observability.CoreLogger().Info("Starting status server",
		zap.String("addr", addr),
		zap.Bool("throttle", s.throttle != nil),
		zap.Bool("activity", s.ledger != nil))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	observability.CoreLogger().Info("Shutting down status server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Health returns the health manager so callers can register checks.
func (s *Server) Health() *handlers.HealthManager {
	return s.health
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}
