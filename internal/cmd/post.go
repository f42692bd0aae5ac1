package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/plan"
)

var (
	postSubmolt  string
	postTitle    string
	postBody     string
	postBodyFile string
	postURL      string
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Publish a post",
	Long: `Publish one post. The post passes through the local throttle first: it is
denied when the hourly cap is reached, and waits out the spacing between
posts when that wait fits inside --max-wait.

Examples:
  moltpilot post --submolt general --title "Hello" --body "First post"
  moltpilot post --submolt golang --title "Notes" --body-file notes.md
  moltpilot post --submolt general --title "Link" --url https://example.com --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := resolveBody(cmd, postBody, postBodyFile)
		if err != nil {
			return err
		}
		return runSingleAction(cmd, plan.Action{
			Kind:    core.ActionPost,
			Submolt: postSubmolt,
			Title:   postTitle,
			Body:    body,
			URL:     postURL,
		})
	},
}

// resolveBody returns the inline body, or the contents of bodyFile ("-" reads
// standard input). The two are mutually exclusive.
func resolveBody(cmd *cobra.Command, body, bodyFile string) (string, error) {
	bodyFile = strings.TrimSpace(bodyFile)
	if bodyFile == "" {
		return body, nil
	}
	if body != "" {
		return "", fmt.Errorf("--body and --body-file are mutually exclusive")
	}

	var (
		data []byte
		err  error
	)
	if bodyFile == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(bodyFile) // #nosec G304 -- body path is operator supplied
	}
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

func init() {
	rootCmd.AddCommand(postCmd)

	postCmd.Flags().StringVar(&postSubmolt, "submolt", "", "Submolt to post in (required)")
	postCmd.Flags().StringVar(&postTitle, "title", "", "Post title (required)")
	postCmd.Flags().StringVar(&postBody, "body", "", "Post body")
	postCmd.Flags().StringVar(&postBodyFile, "body-file", "", "Read the body from a file (- for stdin)")
	postCmd.Flags().StringVar(&postURL, "url", "", "Link to attach")
	_ = postCmd.MarkFlagRequired("submolt")
	_ = postCmd.MarkFlagRequired("title")
	addAgentFlags(postCmd)
	addOutputFlags(postCmd)
}
