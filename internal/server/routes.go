package server

import (
	"strings"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/moltpilot/moltpilot/internal/observability"
	"github.com/moltpilot/moltpilot/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health.HealthHandler)
	s.router.Get("/health/live", s.health.LivenessHandler)
	s.router.Get("/health/ready", s.health.ReadinessHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/v1", func(r chi.Router) {
		if s.throttle != nil {
			r.Method("GET", "/throttle", handlers.ThrottleHandler{Throttle: s.throttle})
		}
		if s.ledger != nil {
			r.Method("GET", "/activity", handlers.ActivityHandler{Ledger: s.ledger})
		}
	})

	s.registerAdminEndpoint()
}

// registerAdminEndpoint mounts the gofulmen signal handler when an admin
// token is configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.CoreLogger()
	if strings.TrimSpace(s.adminToken) == "" {
		logger.Debug("Admin signal endpoint disabled (no admin token configured)")
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.adminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	logger.Info("Admin signal endpoint enabled",
		zap.String("path", "/admin/signal"),
		zap.String("rate_limit", "10/min, burst 5"))
}
