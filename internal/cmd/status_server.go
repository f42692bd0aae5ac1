package cmd

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/moltpilot/moltpilot/internal/config"
	"github.com/moltpilot/moltpilot/internal/core/store"
	"github.com/moltpilot/moltpilot/internal/core/throttle"
	errwrap "github.com/moltpilot/moltpilot/internal/errors"
	"github.com/moltpilot/moltpilot/internal/metrics"
	"github.com/moltpilot/moltpilot/internal/observability"
	"github.com/moltpilot/moltpilot/internal/server"
	"github.com/moltpilot/moltpilot/internal/server/handlers"
)

// initServiceLogging switches to the structured logger for long-running
// commands when the config asks for it, or when force is set.
func initServiceLogging(cfg *config.Config, force bool) {
	if force || strings.EqualFold(strings.TrimSpace(cfg.Logging.Profile), "structured") {
		observability.InitServerLogger(config.AppName, cfg.Logging.Level, config.AppName)
	}
}

// initServiceMetrics starts the Prometheus exporter when metrics are enabled.
func initServiceMetrics(ctx context.Context, cfg *config.Config) error {
	if !cfg.Metrics.Enabled {
		return nil
	}
	if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port, config.AppName); err != nil {
		return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
	}
	metrics.SetServerStartTime(time.Now().Unix())
	observability.CoreLogger().Info("Metrics exporter started",
		zap.Int("metrics_port", observability.GetMetricsPort()))
	return nil
}

// newStatusServer builds the status server with health checks for the
// components it exposes. ledger may be nil.
func newStatusServer(cfg *config.Config, t *throttle.Throttle, ledger *store.Store) *server.Server {
	hm := handlers.NewHealthManager(versionInfo.Version)
	hm.RegisterLiveChecker("process", handlers.CheckerFunc(func(ctx context.Context) error {
		return nil
	}))
	hm.RegisterChecker("throttle", handlers.CheckerFunc(func(ctx context.Context) error {
		if t == nil {
			return errwrap.NewUnavailableError("throttle not initialized")
		}
		return nil
	}))
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", handlers.CheckerFunc(func(ctx context.Context) error {
			if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
				return errwrap.NewInternalError("telemetry system not initialized")
			}
			return nil
		}))
	}

	opts := []server.Option{
		server.WithHealth(hm),
		server.WithThrottle(t),
		server.WithAdminToken(cfg.Server.AdminToken),
	}
	if ledger != nil {
		hm.RegisterChecker("activity_ledger", handlers.CheckerFunc(func(ctx context.Context) error {
			return ledger.DB.PingContext(ctx)
		}))
		opts = append(opts, server.WithActivity(ledger))
	}

	return server.New(cfg.Server.Host, cfg.Server.Port, opts...)
}

// startInBackground runs srv until it is shut down. Listen failures are
// delivered on the returned channel.
func startInBackground(srv *server.Server) <-chan error {
	errs := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	return errs
}

func shutdownServer(ctx context.Context, srv *server.Server, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errwrap.WrapInternal(ctx, err, "server shutdown failed")
	}
	return nil
}
