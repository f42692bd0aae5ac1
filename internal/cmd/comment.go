package cmd

import (
	"github.com/spf13/cobra"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/plan"
)

var (
	commentBody     string
	commentBodyFile string
	commentParent   string
)

var commentCmd = &cobra.Command{
	Use:   "comment <post-id>",
	Short: "Comment on a post",
	Long: `Comment on a post, optionally as a reply to another comment. Comments are
throttled like posts, with their own hourly cap and spacing.

Examples:
  moltpilot comment p123 --body "Nice write-up"
  moltpilot comment p123 --parent c456 --body-file reply.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := resolveBody(cmd, commentBody, commentBodyFile)
		if err != nil {
			return err
		}
		return runSingleAction(cmd, plan.Action{
			Kind:     core.ActionComment,
			PostID:   args[0],
			ParentID: commentParent,
			Body:     body,
		})
	},
}

func init() {
	rootCmd.AddCommand(commentCmd)

	commentCmd.Flags().StringVar(&commentBody, "body", "", "Comment body")
	commentCmd.Flags().StringVar(&commentBodyFile, "body-file", "", "Read the body from a file (- for stdin)")
	commentCmd.Flags().StringVar(&commentParent, "parent", "", "Reply to this comment id")
	addAgentFlags(commentCmd)
	addOutputFlags(commentCmd)
}
