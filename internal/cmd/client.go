package cmd

import (
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/moltpilot/moltpilot/internal/config"
	"github.com/moltpilot/moltpilot/internal/core/moltapi"
	"github.com/moltpilot/moltpilot/internal/core/throttle"
	errwrap "github.com/moltpilot/moltpilot/internal/errors"
	"github.com/moltpilot/moltpilot/internal/observability"
)

func newClient(cfg *config.Config) *moltapi.Client {
	client := &moltapi.Client{
		BaseURL:    cfg.API.BaseURL,
		Token:      strings.TrimSpace(cfg.API.Token),
		UserAgent:  userAgent(cfg),
		HTTPClient: &http.Client{Timeout: cfg.API.Timeout},
		Logger:     observability.CoreLogger(),
	}
	if cfg.API.RequestsPerSecond > 0 {
		burst := cfg.API.Burst
		if burst < 1 {
			burst = 1
		}
		client.Limiter = rate.NewLimiter(rate.Limit(cfg.API.RequestsPerSecond), burst)
	}
	return client
}

// requireToken rejects write commands before any request is made.
func requireToken(cfg *config.Config) error {
	if strings.TrimSpace(cfg.API.Token) == "" {
		return errwrap.NewConfigInvalidError("api token is not set (use MOLTPILOT_API_TOKEN or api.token in config)")
	}
	return nil
}

func newThrottle(cfg *config.Config) (*throttle.Throttle, error) {
	return throttle.New(cfg.Throttle, throttle.WithLogger(observability.CoreLogger()))
}

func userAgent(cfg *config.Config) string {
	if ua := strings.TrimSpace(cfg.API.UserAgent); ua != "" && ua != moltapi.DefaultUserAgent {
		return ua
	}
	if versionInfo.Version != "" {
		return config.AppName + "/" + versionInfo.Version
	}
	return moltapi.DefaultUserAgent
}

// wrapAPIError converts client failures into error envelopes so the exit
// code reflects the failure kind.
func wrapAPIError(cmd *cobra.Command, err error) error {
	if apiErr, ok := moltapi.AsAPIError(err); ok {
		return errwrap.FromAPIError(cmd.Context(), apiErr)
	}
	return err
}
