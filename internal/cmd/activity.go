package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/store"
	"github.com/moltpilot/moltpilot/internal/observability"
	"github.com/moltpilot/moltpilot/internal/output"
)

var (
	activityKind      string
	activityStatus    string
	activitySince     time.Duration
	activityLimit     int
	activityOlderThan time.Duration
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Inspect the activity ledger",
	Long: `Inspect the activity ledger, the local record of every post, comment, and
vote attempted with the ledger enabled (agent.ledger or --ledger).`,
}

var activityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded actions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		query, err := activityQueryFromFlags()
		if err != nil {
			return err
		}
		if _, err := resolveOutputFormat(cmd); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := store.OpenLedger(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListActivity(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writeOutput(cmd, func(f output.Formatter) (string, error) {
			return f.FormatActivity(entries)
		})
	},
}

var activityPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ledger rows older than a cutoff",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if activityOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := store.OpenLedger(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		cutoff := time.Now().UTC().Add(-activityOlderThan)
		removed, err := db.PruneActivity(cmd.Context(), cutoff)
		if err != nil {
			return err
		}

		observability.CLILogger.Info(fmt.Sprintf("Pruned %d activity rows", removed),
			zap.Int64("removed", removed),
			zap.Time("before", cutoff))
		return nil
	},
}

func activityQueryFromFlags() (store.ActivityQuery, error) {
	query := store.ActivityQuery{Limit: activityLimit}

	if kind := strings.TrimSpace(activityKind); kind != "" {
		parsed, err := core.ParseActionKind(kind)
		if err != nil {
			return query, err
		}
		query.Kind = parsed
	}

	if status := strings.ToLower(strings.TrimSpace(activityStatus)); status != "" {
		switch core.ActionStatus(status) {
		case core.ActionStatusSucceeded, core.ActionStatusFailed, core.ActionStatusDenied, core.ActionStatusDryRun:
			query.Status = core.ActionStatus(status)
		default:
			return query, fmt.Errorf("unsupported status %q", activityStatus)
		}
	}

	if activitySince < 0 {
		return query, fmt.Errorf("--since must not be negative")
	}
	if activitySince > 0 {
		query.Since = time.Now().UTC().Add(-activitySince)
	}
	if activityLimit < 0 {
		return query, fmt.Errorf("--limit must not be negative")
	}
	return query, nil
}

func init() {
	activityListCmd.Flags().StringVar(&activityKind, "kind", "", "Filter by kind: post|comment|vote")
	activityListCmd.Flags().StringVar(&activityStatus, "status", "", "Filter by status: succeeded|failed|denied|dry_run")
	activityListCmd.Flags().DurationVar(&activitySince, "since", 0, "Only rows newer than this duration (e.g. 24h)")
	activityListCmd.Flags().IntVar(&activityLimit, "limit", store.DefaultActivityLimit, "Maximum rows")
	addOutputFlags(activityListCmd)

	activityPruneCmd.Flags().DurationVar(&activityOlderThan, "older-than", 30*24*time.Hour, "Delete rows older than this duration")

	activityCmd.AddCommand(activityListCmd)
	activityCmd.AddCommand(activityPruneCmd)
	rootCmd.AddCommand(activityCmd)
}
