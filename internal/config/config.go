package config

import (
	"time"

	"github.com/moltpilot/moltpilot/internal/core/throttle"
)

// Config represents the complete application configuration. Values are
// layered by viper: built-in defaults, then the config file, then
// MOLTPILOT_* environment variables, then command-line flags.
type Config struct {
	API      APIConfig       `mapstructure:"api"`
	Throttle throttle.Config `mapstructure:"throttle"`
	Agent    AgentConfig     `mapstructure:"agent"`
	Store    StoreConfig     `mapstructure:"store"`
	Server   ServerConfig    `mapstructure:"server"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

// APIConfig contains the remote platform connection settings.
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`

	// RequestsPerSecond paces outbound attempts; 0 disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// AgentConfig controls the action loop.
type AgentConfig struct {
	PlanFile string `mapstructure:"plan_file"`
	// MaxWait is the longest the loop sleeps for a throttled action before
	// skipping it.
	MaxWait time.Duration `mapstructure:"max_wait"`
	DryRun  bool          `mapstructure:"dry_run"`
	// Ledger enables recording action outcomes in the store.
	Ledger bool `mapstructure:"ledger"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// ServerConfig contains status server configuration
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AdminToken enables POST /admin/signal when set.
	AdminToken      string        `mapstructure:"admin_token"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}
