package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moltpilot/moltpilot/internal/appid"
	"github.com/moltpilot/moltpilot/internal/config"
	"github.com/moltpilot/moltpilot/internal/core/moltapi"
	"github.com/moltpilot/moltpilot/internal/core/store"
	"github.com/moltpilot/moltpilot/internal/core/throttle"
	"github.com/moltpilot/moltpilot/internal/observability"
)

// doctorProbeTimeout bounds the API reachability check.
const doctorProbeTimeout = 15 * time.Second

var (
	doctorOffline   bool
	doctorInitForce bool
	doctorInitToken string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the configuration, the activity ledger, and API access.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := observability.CLILogger
		log.Info("=== " + config.AppName + " doctor ===")
		log.Info("")

		allChecks := true
		totalChecks := 7
		step := func(n int, label string) string {
			return fmt.Sprintf("[%d/%d] Checking %s...", n, totalChecks, label)
		}

		// Check 1: runtime and SSOT versions
		version := crucible.GetVersion()
		log.Info(fmt.Sprintf("%s ✅ %s %s/%s, gofulmen %s", step(1, "runtime"), runtime.Version(), runtime.GOOS, runtime.GOARCH, version.Gofulmen),
			zap.String("go_version", runtime.Version()),
			zap.String("gofulmen_version", version.Gofulmen),
			zap.String("crucible_version", version.Crucible))
		if identity := appid.Describe(ctx); identity.Err != nil {
			log.Debug("App identity not loaded, using built-in defaults", zap.Error(identity.Err))
		} else {
			log.Debug("App identity loaded",
				zap.String("binary_name", identity.BinaryName),
				zap.String("env_prefix", identity.EnvPrefix),
				zap.String("vendor", identity.Vendor))
		}

		// Check 2: config directory
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			log.Warn(step(2, "config directory") + " ⚠️  cannot resolve config directory")
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("%s ✅ %s (%s)", step(2, "config file"), configPath, existenceStatus(fileExists(configPath))),
				zap.String("config_path", configPath))
		}

		// Check 3: config validity
		cfg, cfgErr := loadConfig()
		if cfgErr != nil {
			log.Error(step(3, "configuration")+" ❌ invalid", zap.Error(cfgErr))
			log.Warn("⚠️  Remaining checks need a valid configuration.")
			return cfgErr
		}
		log.Info(step(3, "configuration")+" ✅ valid", zap.String("base_url", cfg.API.BaseURL))

		// Check 4: API token
		if strings.TrimSpace(cfg.API.Token) == "" {
			log.Warn(step(4, "API token") + " ⚠️  not set (set MOLTPILOT_API_TOKEN or run 'moltpilot doctor init --token prompt')")
			allChecks = false
		} else {
			log.Info(step(4, "API token") + " ✅ set")
		}

		// Check 5: throttle limits
		if _, err := throttle.New(cfg.Throttle); err != nil {
			log.Error(step(5, "throttle limits")+" ❌ invalid", zap.Error(err))
			allChecks = false
		} else {
			c := cfg.Throttle
			log.Info(fmt.Sprintf("%s ✅ %d posts/h (%d-%dm apart), %d comments/h (%d-%dm apart)", step(5, "throttle limits"),
				c.MaxPostsPerHour, c.PostIntervalMin, c.PostIntervalMax,
				c.MaxCommentsPerHour, c.CommentIntervalMin, c.CommentIntervalMax))
		}

		// Check 6: activity ledger
		if ok := checkLedger(ctx, cfg, step(6, "activity ledger")); !ok {
			allChecks = false
		}

		// Check 7: API reachability
		if doctorOffline {
			log.Info(step(7, "API reachability") + " ⏭  skipped (--offline)")
		} else if err := probeAPI(ctx, newClient(cfg)); err != nil {
			log.Warn(step(7, "API reachability")+" ⚠️  "+err.Error(), zap.String("base_url", cfg.API.BaseURL))
			allChecks = false
		} else {
			log.Info(step(7, "API reachability")+" ✅ feed readable", zap.String("base_url", cfg.API.BaseURL))
		}

		log.Info("")
		if allChecks {
			log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", config.AppName))
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		log.Info("")
		log.Info("=== End Diagnostics ===")
		return nil
	},
}

func checkLedger(ctx context.Context, cfg *config.Config, label string) bool {
	log := observability.CLILogger
	if !cfg.Agent.Ledger {
		log.Info(label + " ⏭  disabled (agent.ledger=false)")
		return true
	}

	location := cfg.Store.URL
	if location == "" {
		location, _ = filepath.Abs(cfg.Store.Path)
	}

	db, err := store.OpenLedger(ctx, cfg.Store)
	if err != nil {
		log.Error(label+" ❌ cannot open "+location, zap.Error(err))
		return false
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	count, err := db.CountActivity(ctx, store.ActivityQuery{})
	if err != nil {
		log.Error(label+" ❌ cannot read "+location, zap.Error(err))
		return false
	}

	size := "remote"
	if cfg.Store.URL == "" {
		if info, statErr := os.Stat(location); statErr == nil {
			size = formatFileSize(info.Size())
		}
	}
	log.Info(fmt.Sprintf("%s ✅ %s (%s, %d rows)", label, location, size, count),
		zap.String("location", location),
		zap.Int("rows", count))
	return true
}

// probeAPI reads a single feed entry. Reads need no token.
func probeAPI(ctx context.Context, client *moltapi.Client) error {
	ctx, cancel := context.WithTimeout(ctx, doctorProbeTimeout)
	defer cancel()

	_, err := client.GetFeed(ctx, moltapi.FeedOptions{Limit: 1})
	return err
}

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		token := strings.TrimSpace(doctorInitToken)
		if strings.EqualFold(token, "prompt") {
			value, err := promptForValue(cmd, "Enter API token (leave blank to skip): ")
			if err != nil {
				return err
			}
			token = value
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		mode := os.FileMode(0644)
		if token != "" {
			mode = 0600
		}

		if err := os.WriteFile(configPath, []byte(buildInitConfig(token)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		configPath := config.DefaultConfigPath()

		log.Info("Configuration:")
		log.Info(fmt.Sprintf("  Config file:    %s (%s)", configPath, existenceStatus(fileExists(configPath))))

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if cfg.Store.URL != "" {
			log.Info(fmt.Sprintf("  Ledger store:   %s (remote)", cfg.Store.URL))
		} else {
			absPath, _ := filepath.Abs(cfg.Store.Path)
			log.Info(fmt.Sprintf("  Ledger store:   %s (%s)", absPath, existenceStatus(fileExists(absPath))))
		}

		log.Info("")
		log.Info("Environment:")
		log.Info("  MOLTPILOT_API_TOKEN: " + envStatus("MOLTPILOT_API_TOKEN"))

		log.Info("")
		log.Info("Effective Settings:")
		log.Info("  api.base_url:        " + cfg.API.BaseURL)
		log.Info(fmt.Sprintf("  api.timeout:         %s", cfg.API.Timeout))
		log.Info(fmt.Sprintf("  agent.max_wait:      %s", cfg.Agent.MaxWait))
		log.Info(fmt.Sprintf("  agent.ledger:        %t", cfg.Agent.Ledger))
		log.Info(fmt.Sprintf("  server.enabled:      %t", cfg.Server.Enabled))
		log.Info(fmt.Sprintf("  metrics.enabled:     %t", cfg.Metrics.Enabled))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorConfigCmd)

	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip the API reachability check")
	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitToken, "token", "", "set the API token or use 'prompt' to enter it")
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func buildInitConfig(token string) string {
	defaults := throttle.DefaultConfig()
	lines := []string{
		"# moltpilot config - created by 'moltpilot doctor init'",
		"api:",
		"  base_url: " + moltapi.DefaultBaseURL,
	}
	if token != "" {
		lines = append(lines, fmt.Sprintf("  token: %q", token))
	} else {
		lines = append(lines, "  # token: \"\"  # Set via MOLTPILOT_API_TOKEN or uncomment")
	}

	lines = append(lines,
		"throttle:",
		fmt.Sprintf("  max_posts_per_hour: %d", defaults.MaxPostsPerHour),
		fmt.Sprintf("  post_interval_min: %d", defaults.PostIntervalMin),
		fmt.Sprintf("  post_interval_max: %d", defaults.PostIntervalMax),
		fmt.Sprintf("  max_comments_per_hour: %d", defaults.MaxCommentsPerHour),
		fmt.Sprintf("  comment_interval_min: %d", defaults.CommentIntervalMin),
		fmt.Sprintf("  comment_interval_max: %d", defaults.CommentIntervalMax),
		"agent:",
		"  max_wait: 5m",
		"  ledger: true",
	)
	return strings.Join(lines, "\n") + "\n"
}

func promptForValue(cmd *cobra.Command, prompt string) (string, error) {
	if _, err := fmt.Fprint(cmd.OutOrStdout(), prompt); err != nil {
		return "", err
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	value, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}
