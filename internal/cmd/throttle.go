package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/throttle"
	"github.com/moltpilot/moltpilot/internal/output"
)

var throttleJSON bool

var throttleCmd = &cobra.Command{
	Use:   "throttle",
	Short: "Inspect the local post and comment throttle",
	Long: `Inspect the local throttle. The throttle starts empty in every process; when
the activity ledger is enabled it is seeded with the posts and comments the
ledger recorded as succeeded within the last hour.`,
}

var throttleCheckCmd = &cobra.Command{
	Use:   "check [post|comment]",
	Short: "Report whether a post or comment may be made now",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := []core.ActionKind{core.ActionPost, core.ActionComment}
		if len(args) == 1 {
			kind, err := core.ParseActionKind(args[0])
			if err != nil {
				return err
			}
			kinds = []core.ActionKind{kind}
		}

		t, err := loadThrottle(cmd)
		if err != nil {
			return err
		}

		decisions := make(map[core.ActionKind]throttle.Decision, len(kinds))
		for _, kind := range kinds {
			decisions[kind] = t.Check(kind)
		}

		if throttleJSON {
			return printJSON(cmd, map[string]any{
				"config":    t.Config(),
				"stats":     t.Stats(),
				"decisions": decisions,
			})
		}

		_, err = fmt.Fprint(cmd.OutOrStdout(), renderThrottleBox(t, kinds, decisions))
		return err
	},
}

var throttleConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective throttle limits",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if throttleJSON {
			return printJSON(cmd, cfg.Throttle)
		}

		c := cfg.Throttle
		lines := []string{
			"Throttle Limits",
			"",
			fmt.Sprintf("posts:    %d per hour, %d-%d minutes apart", c.MaxPostsPerHour, c.PostIntervalMin, c.PostIntervalMax),
			fmt.Sprintf("comments: %d per hour, %d-%d minutes apart", c.MaxCommentsPerHour, c.CommentIntervalMin, c.CommentIntervalMax),
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return err
	},
}

func loadThrottle(cmd *cobra.Command) (*throttle.Throttle, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	t, err := newThrottle(cfg)
	if err != nil {
		return nil, err
	}

	ledger, err := openLedger(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if ledger != nil {
		defer ledger.Close() // nolint:errcheck // best-effort cleanup
		if err := restoreThrottle(cmd.Context(), t, ledger); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func renderThrottleBox(t *throttle.Throttle, kinds []core.ActionKind, decisions map[core.ActionKind]throttle.Decision) string {
	cfg := t.Config()
	stats := t.Stats()

	lines := []string{
		"Throttle",
		"",
		fmt.Sprintf("posts last hour:    %d/%d", stats.PostsLastHour, cfg.MaxPostsPerHour),
		fmt.Sprintf("comments last hour: %d/%d", stats.CommentsLastHour, cfg.MaxCommentsPerHour),
		"",
	}
	for _, kind := range kinds {
		decision := decisions[kind]
		switch {
		case decision.Allowed:
			lines = append(lines, fmt.Sprintf("%-8s allowed", string(kind)+":"))
		case decision.HasWait:
			lines = append(lines, fmt.Sprintf("%-8s denied, retry in %s", string(kind)+":", decision.Wait.Round(time.Second)))
		default:
			lines = append(lines, fmt.Sprintf("%-8s denied, %s", string(kind)+":", decision.Reason))
		}
	}
	return ascii.DrawBox(strings.Join(lines, "\n"), 0)
}

func printJSON(cmd *cobra.Command, value any) error {
	text, err := (&output.JSONFormatter{Indent: true}).Marshal(value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

func init() {
	throttleCmd.PersistentFlags().BoolVar(&throttleJSON, "json", false, "Print JSON instead of a box")
	throttleCmd.AddCommand(throttleCheckCmd)
	throttleCmd.AddCommand(throttleConfigCmd)
	rootCmd.AddCommand(throttleCmd)
}
