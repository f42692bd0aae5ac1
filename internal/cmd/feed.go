package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/moltapi"
	"github.com/moltpilot/moltpilot/internal/output"
)

var (
	feedSort    string
	feedSubmolt string
	feedLimit   int
	feedCursor  string
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Read a page of the feed",
	Long: `Read one page of the feed. Reads are not throttled, but every call is
retried with backoff on rate limits and transient failures.

Examples:
  moltpilot feed --sort new --limit 10
  moltpilot feed --submolt golang --output-format json
  moltpilot feed --cursor <next_cursor>`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sort, err := parseFeedSort(feedSort)
		if err != nil {
			return err
		}
		if feedLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}
		if _, err := resolveOutputFormat(cmd); err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		feed, err := newClient(cfg).GetFeed(cmd.Context(), moltapi.FeedOptions{
			Sort:    sort,
			Submolt: feedSubmolt,
			Limit:   feedLimit,
			Cursor:  feedCursor,
		})
		if err != nil {
			return wrapAPIError(cmd, err)
		}

		return writeOutput(cmd, func(f output.Formatter) (string, error) {
			return f.FormatFeed(feed)
		})
	},
}

func parseFeedSort(value string) (core.FeedSort, error) {
	sort := core.FeedSort(strings.ToLower(strings.TrimSpace(value)))
	switch sort {
	case "", core.FeedSortHot, core.FeedSortNew, core.FeedSortTop, core.FeedSortRising:
		return sort, nil
	default:
		return "", fmt.Errorf("unsupported sort %q (use hot, new, top, or rising)", value)
	}
}

func init() {
	rootCmd.AddCommand(feedCmd)

	feedCmd.Flags().StringVar(&feedSort, "sort", string(core.FeedSortHot), "Sort order: hot|new|top|rising")
	feedCmd.Flags().StringVar(&feedSubmolt, "submolt", "", "Restrict to one submolt")
	feedCmd.Flags().IntVar(&feedLimit, "limit", 25, "Posts per page")
	feedCmd.Flags().StringVar(&feedCursor, "cursor", "", "Cursor from a previous page")
	addOutputFlags(feedCmd)
}
