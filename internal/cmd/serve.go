package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/moltpilot/moltpilot/internal/config"
	errwrap "github.com/moltpilot/moltpilot/internal/errors"
	"github.com/moltpilot/moltpilot/internal/observability"
)

var (
	serverPort int
	serverHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the status server",
	Long: `Start the HTTP status server: health probes, version, Prometheus metrics,
current throttle state at /v1/throttle, and the activity ledger at
/v1/activity when the ledger is enabled.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (throttle limits apply on restart)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		initServiceLogging(cfg, true)
		logger := observability.ServerLogger

		if err := initServiceMetrics(cmd.Context(), cfg); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return err
		}

		t, err := newThrottle(cfg)
		if err != nil {
			return errwrap.WrapConfigInvalid(cmd.Context(), err, "invalid throttle limits")
		}
		ledger, err := openLedger(cmd.Context(), cfg)
		if err != nil {
			return errwrap.WrapDatabaseError(cmd.Context(), err, "activity ledger unavailable")
		}
		if ledger != nil {
			defer ledger.Close() // nolint:errcheck // best-effort cleanup
			if err := restoreThrottle(cmd.Context(), t, ledger); err != nil {
				logger.Warn("Failed to restore throttle from ledger", zap.Error(err))
			}
		}

		logger.Info("Initializing status server",
			zap.String("service", config.AppName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("metrics", cfg.Metrics.Enabled),
			zap.Bool("ledger", ledger != nil))

		srv := newStatusServer(cfg, t, ledger)
		done := make(chan struct{})

		// Shutdown handlers run in LIFO order: the server stops first, the
		// logger is flushed last.
		signals.OnShutdown(func(ctx context.Context) error {
			defer close(done)
			if err := logger.Sync(); err != nil {
				logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
			}
			return nil
		})
		signals.OnShutdown(func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server...")
			if err := shutdownServer(ctx, srv, shutdownTimeout(cfg)); err != nil {
				return err
			}
			logger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			return reloadConfig(ctx, cfg)
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
		}

		serverErrs := startInBackground(srv)
		listenErrs := make(chan error, 1)
		go func() {
			if err := signals.Listen(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				listenErrs <- err
			}
		}()

		select {
		case err := <-serverErrs:
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		case err := <-listenErrs:
			logger.Error("Signal handler error", zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "signal handler error")
		case <-done:
			return nil
		}
	},
}

// reloadConfig re-reads the config file on SIGHUP. The running throttle keeps
// its limits; a change is reported so the operator knows to restart.
func reloadConfig(ctx context.Context, current *config.Config) error {
	logger := observability.CoreLogger()
	logger.Info("Received SIGHUP: attempting config reload")

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logger.Info("No config file found - using defaults and environment variables")
			return nil
		}
		logger.Error("Failed to reload config file",
			zap.String("file", viper.ConfigFileUsed()),
			zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}

	next, err := config.Load(nil)
	if err != nil {
		logger.Error("Reloaded config is invalid", zap.Error(err))
		return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
	}

	logger.Info("Configuration reloaded successfully", zap.String("file", viper.ConfigFileUsed()))
	if next.Throttle != current.Throttle {
		logger.Warn("Throttle limits changed; restart to apply them",
			zap.Any("running", current.Throttle),
			zap.Any("configured", next.Throttle))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
