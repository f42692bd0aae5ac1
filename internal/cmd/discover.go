package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/moltpilot/moltpilot/internal/config"
	"github.com/moltpilot/moltpilot/internal/core/discovery"
)

// defaultDocumentPath is where the platform publishes its API document.
const defaultDocumentPath = "/skill.md"

var (
	discoverJSON  bool
	discoverApply bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover [file|url]",
	Short: "Extract API hints from the platform's API document",
	Long: `Read the platform's markdown API document and print what could be
extracted from it: base URL, auth header, advertised rate limits, and the
endpoints it mentions. Anything not found falls back to a default.

With no argument the document is fetched from the configured base URL. With
--apply the advertised limits are merged into the configured throttle limits
(limits are only ever tightened) and the result is printed.

Examples:
  moltpilot discover
  moltpilot discover ./skill.md --apply
  moltpilot discover https://www.moltbook.com/skill.md --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		source := strings.TrimRight(cfg.API.BaseURL, "/") + defaultDocumentPath
		if len(args) == 1 {
			source = strings.TrimSpace(args[0])
		}

		text, err := readDocument(cmd, cfg, source)
		if err != nil {
			return err
		}
		doc := discovery.Parse(text)

		applied := cfg.Throttle
		if discoverApply {
			applied = doc.ApplyTo(cfg.Throttle)
			if err := applied.Validate(); err != nil {
				return fmt.Errorf("applied limits are invalid: %w", err)
			}
		}

		if discoverJSON {
			payload := map[string]any{"source": source, "document": doc}
			if discoverApply {
				payload["throttle"] = applied
			}
			return printJSON(cmd, payload)
		}

		lines := []string{"API Document", "", "source: " + source}
		lines = append(lines, describeDocument(doc)...)
		if discoverApply {
			lines = append(lines, "",
				"effective throttle:",
				fmt.Sprintf("  posts:    %d per hour, %d-%d minutes apart", applied.MaxPostsPerHour, applied.PostIntervalMin, applied.PostIntervalMax),
				fmt.Sprintf("  comments: %d per hour, %d-%d minutes apart", applied.MaxCommentsPerHour, applied.CommentIntervalMin, applied.CommentIntervalMax),
			)
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return err
	},
}

// readDocument loads source from disk, or over HTTP when it is a URL. The
// fetch never carries the API token.
func readDocument(cmd *cobra.Command, cfg *config.Config, source string) (string, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		data, err := os.ReadFile(source) // #nosec G304 -- document path is operator supplied
		if err != nil {
			return "", fmt.Errorf("read document: %w", err)
		}
		return string(data), nil
	}

	client := newClient(cfg)
	client.Token = ""
	data, err := client.ExecuteRaw(cmd.Context(), http.MethodGet, source, nil)
	if err != nil {
		return "", wrapAPIError(cmd, err)
	}
	return string(data), nil
}

func describeDocument(doc discovery.Document) []string {
	auth := doc.AuthHeader
	if doc.AuthScheme != "" {
		auth += ": " + doc.AuthScheme + " <token>"
	}

	lines := []string{
		"base url: " + doc.BaseURL,
		"auth:     " + auth,
	}
	if doc.RequestsPerMinute > 0 {
		lines = append(lines, fmt.Sprintf("requests: %d per minute", doc.RequestsPerMinute))
	}
	if doc.PostsPerHour > 0 {
		lines = append(lines, fmt.Sprintf("posts:    %d per hour", doc.PostsPerHour))
	}
	if doc.PostIntervalMinutes > 0 {
		lines = append(lines, fmt.Sprintf("spacing:  1 post per %d minutes", doc.PostIntervalMinutes))
	}
	if doc.CommentsPerHour > 0 {
		lines = append(lines, fmt.Sprintf("comments: %d per hour", doc.CommentsPerHour))
	}
	if len(doc.Defaulted) > 0 {
		lines = append(lines, "defaulted: "+strings.Join(doc.Defaulted, ", "))
	}
	if len(doc.Endpoints) > 0 {
		lines = append(lines, "", "endpoints:")
		for _, ep := range doc.Endpoints {
			lines = append(lines, fmt.Sprintf("  %-6s %s", ep.Method, ep.Path))
		}
	}
	return lines
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "Print JSON instead of a box")
	discoverCmd.Flags().BoolVar(&discoverApply, "apply", false, "Show the throttle limits after merging advertised limits")
}
