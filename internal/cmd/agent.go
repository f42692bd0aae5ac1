package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/moltpilot/moltpilot/internal/config"
	"github.com/moltpilot/moltpilot/internal/core/agent"
	"github.com/moltpilot/moltpilot/internal/core/plan"
	"github.com/moltpilot/moltpilot/internal/core/store"
	"github.com/moltpilot/moltpilot/internal/core/throttle"
	"github.com/moltpilot/moltpilot/internal/observability"
	"github.com/moltpilot/moltpilot/internal/output"
)

// agentRuntime bundles an agent with the resources it holds open.
type agentRuntime struct {
	agent    *agent.Agent
	throttle *throttle.Throttle
	ledger   *store.Store
}

func (r *agentRuntime) Close() {
	if r.ledger != nil {
		_ = r.ledger.Close()
	}
}

// addAgentFlags registers the flags shared by commands that send actions.
func addAgentFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("dry-run", false, "Check the throttle but send nothing")
	cmd.Flags().Duration("max-wait", 0, "Longest throttle wait per action before skipping it (default from config)")
	cmd.Flags().Bool("ledger", false, "Record outcomes to the activity ledger (default from config)")
}

// applyAgentFlags overrides config values with flags the user set.
func applyAgentFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("dry-run") {
		value, err := flags.GetBool("dry-run")
		if err != nil {
			return err
		}
		cfg.Agent.DryRun = value
	}
	if flags.Changed("max-wait") {
		value, err := flags.GetDuration("max-wait")
		if err != nil {
			return err
		}
		if value < 0 {
			return fmt.Errorf("--max-wait must not be negative")
		}
		cfg.Agent.MaxWait = value
	}
	if flags.Changed("ledger") {
		value, err := flags.GetBool("ledger")
		if err != nil {
			return err
		}
		cfg.Agent.Ledger = value
	}
	return nil
}

func newAgentRuntime(ctx context.Context, cfg *config.Config) (*agentRuntime, error) {
	if !cfg.Agent.DryRun {
		if err := requireToken(cfg); err != nil {
			return nil, err
		}
	}

	t, err := newThrottle(cfg)
	if err != nil {
		return nil, err
	}

	ledger, err := openLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := restoreThrottle(ctx, t, ledger); err != nil {
		if ledger != nil {
			_ = ledger.Close()
		}
		return nil, err
	}

	a := &agent.Agent{
		Client:   newClient(cfg),
		Throttle: t,
		Logger:   observability.CoreLogger(),
		MaxWait:  cfg.Agent.MaxWait,
		DryRun:   cfg.Agent.DryRun,
	}
	if ledger != nil {
		a.Ledger = ledger
	}

	return &agentRuntime{agent: a, throttle: t, ledger: ledger}, nil
}

// runSingleAction sends one action through the same throttle, retry, and
// ledger path as a plan run.
func runSingleAction(cmd *cobra.Command, action plan.Action) error {
	p := &plan.Plan{Actions: []plan.Action{action}}
	if err := p.Validate(); err != nil {
		return err
	}
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

	rt, err := newAgentRuntime(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, runErr := rt.agent.Run(cmd.Context(), p)
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
	return singleActionError(cmd, report)
}

func singleActionError(cmd *cobra.Command, report *agent.Report) error {
	if report == nil || len(report.Outcomes) == 0 {
		return nil
	}
	outcome := report.Outcomes[0]
	switch {
	case outcome.Err != nil:
		return wrapAPIError(cmd, outcome.Err)
	case report.Denied > 0:
		return fmt.Errorf("%s denied: %s", outcome.Kind, outcome.Message)
	}
	return nil
}

// shutdownTimeout returns the configured grace period for background servers.
func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
