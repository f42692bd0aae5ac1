package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moltpilot/moltpilot/internal/core/plan"
	"github.com/moltpilot/moltpilot/internal/observability"
	"github.com/moltpilot/moltpilot/internal/output"
	"github.com/moltpilot/moltpilot/internal/server"
)

var runServe bool

var runCmd = &cobra.Command{
	Use:   "run [plan-file]",
	Short: "Work through a plan of posts, comments, and votes",
	Long: `Run the agent loop over a YAML plan file. Actions run in order. Posts and
comments wait out throttle spacing up to --max-wait and are skipped when the
hourly cap is reached; votes go straight to the API. A 401 from the platform
aborts the run; any other failure is recorded and the run moves on.

Plan format:
  actions:
    - kind: post
      submolt: general
      title: Hello
      body: First post
    - kind: comment
      post_id: p123
      body: Nice write-up
    - kind: vote
      post_id: p123
      direction: up

Examples:
  moltpilot run plan.yaml
  moltpilot run plan.yaml --dry-run
  moltpilot run plan.yaml --serve --ledger`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := resolveOutputFormat(cmd); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyAgentFlags(cmd, cfg); err != nil {
			return err
		}
		if cmd.Flags().Changed("serve") {
			cfg.Server.Enabled = runServe
		}

		planFile := strings.TrimSpace(cfg.Agent.PlanFile)
		if len(args) == 1 {
			planFile = args[0]
		}
		if planFile == "" {
			return fmt.Errorf("a plan file is required (argument or agent.plan_file)")
		}
		p, err := plan.Load(planFile)
		if err != nil {
			return err
		}

		initServiceLogging(cfg, false)
		if err := initServiceMetrics(cmd.Context(), cfg); err != nil {
			return err
		}

		rt, err := newAgentRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		var srv *server.Server
		if cfg.Server.Enabled {
			srv = newStatusServer(cfg, rt.throttle, rt.ledger)
			serverErrs := startInBackground(srv)
			go func() {
				if err := <-serverErrs; err != nil {
					observability.CoreLogger().Error("Status server failed", zap.Error(err))
				}
			}()
			defer func() {
				if err := shutdownServer(ctx, srv, shutdownTimeout(cfg)); err != nil {
					observability.CoreLogger().Warn("Status server shutdown failed", zap.Error(err))
				}
			}()
		}

		signals.OnShutdown(func(context.Context) error {
			observability.CoreLogger().Info("Stopping run after the current action")
			cancel()
			return nil
		})
		go func() {
			if err := signals.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				observability.CoreLogger().Warn("Signal handler error", zap.Error(err))
			}
		}()

		observability.CoreLogger().Info("Starting plan",
			zap.String("plan", planFile),
			zap.Int("actions", len(p.Actions)),
			zap.Bool("dry_run", cfg.Agent.DryRun),
			zap.Bool("ledger", rt.ledger != nil),
			zap.Bool("status_server", srv != nil))

		report, runErr := rt.agent.Run(ctx, p)
		if report != nil {
			if err := writeOutput(cmd, func(f output.Formatter) (string, error) {
				return f.FormatReport(report)
			}); err != nil {
				return err
			}
		}
		if runErr != nil {
			return wrapAPIError(cmd, runErr)
		}
		if report != nil && report.Failed > 0 {
			return fmt.Errorf("%d of %d actions failed", report.Failed, len(report.Outcomes))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runServe, "serve", false, "Expose the status server while the plan runs")
	addAgentFlags(runCmd)
	addOutputFlags(runCmd)
}
