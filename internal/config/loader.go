// Package config provides centralized configuration management for moltpilot.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/moltpilot/moltpilot/internal/core/throttle"
)

const (
	// AppName names the binary, config directory, and data directory.
	AppName = "moltpilot"
	// EnvPrefix prefixes every environment override, e.g. MOLTPILOT_API_TOKEN.
	EnvPrefix = "MOLTPILOT"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// Bind wires environment variables into v. Nested keys map to
// underscore-separated names: api.base_url -> MOLTPILOT_API_BASE_URL.
func Bind(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.base_url", "https://www.moltbook.com")
	v.SetDefault("api.token", "")
	v.SetDefault("api.user_agent", AppName+"/dev")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.requests_per_second", 0)
	v.SetDefault("api.burst", 1)

	// Throttle defaults
	defaults := throttle.DefaultConfig()
	v.SetDefault("throttle.post_interval_min", defaults.PostIntervalMin)
	v.SetDefault("throttle.post_interval_max", defaults.PostIntervalMax)
	v.SetDefault("throttle.comment_interval_min", defaults.CommentIntervalMin)
	v.SetDefault("throttle.comment_interval_max", defaults.CommentIntervalMax)
	v.SetDefault("throttle.max_posts_per_hour", defaults.MaxPostsPerHour)
	v.SetDefault("throttle.max_comments_per_hour", defaults.MaxCommentsPerHour)

	// Agent defaults
	v.SetDefault("agent.plan_file", "")
	v.SetDefault("agent.max_wait", "5m")
	v.SetDefault("agent.dry_run", false)
	v.SetDefault("agent.ledger", false)

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Status server defaults
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", 9090)
}

// Load decodes the settings held by v into a typed Config and validates it.
// A nil v uses the global viper instance.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	// Unmarshal into typed config struct
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store the loaded config
	setConfig(cfg)

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if base := strings.TrimSpace(c.API.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("api.base_url must be an absolute URL (got %q)", base))
		}
	}
	if c.API.Timeout < 0 {
		errs = append(errs, errors.New("api.timeout must not be negative"))
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("api.requests_per_second must not be negative"))
	}
	if c.Agent.MaxWait < 0 {
		errs = append(errs, errors.New("agent.max_wait must not be negative"))
	}
	if err := c.Throttle.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("throttle: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the activity database.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir(AppName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}
