package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/plan"
)

var (
	voteComment bool
	voteDown    bool
)

var voteCmd = &cobra.Command{
	Use:   "vote <id>",
	Short: "Vote on a post or comment",
	Long: `Vote on a post, or on a comment with --comment. Votes are not throttled
locally but still go through the retrying client.

Examples:
  moltpilot vote p123
  moltpilot vote c456 --comment --down`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := strings.TrimSpace(args[0])
		if id == "" {
			return fmt.Errorf("id must not be empty")
		}

		action := plan.Action{Kind: core.ActionVote, Direction: core.VoteUp}
		if voteDown {
			action.Direction = core.VoteDown
		}
		if voteComment {
			action.CommentID = id
		} else {
			action.PostID = id
		}
		return runSingleAction(cmd, action)
	},
}

func init() {
	rootCmd.AddCommand(voteCmd)

	voteCmd.Flags().BoolVar(&voteComment, "comment", false, "The id is a comment id")
	voteCmd.Flags().BoolVar(&voteDown, "down", false, "Downvote instead of upvote")
	addAgentFlags(voteCmd)
	addOutputFlags(voteCmd)
}
