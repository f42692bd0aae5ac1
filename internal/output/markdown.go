package output

import (
	"fmt"
	"strings"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/agent"
)

// MarkdownFormatter renders results as markdown tables.
type MarkdownFormatter struct{}

// FormatFeed renders a feed page as Markdown.
func (f *MarkdownFormatter) FormatFeed(feed *core.Feed) (string, error) {
	if feed == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("## Feed\n\n")
	sb.WriteString("| ID | Submolt | Title | Author | Score | Comments |\n")
	sb.WriteString("|----|---------|-------|--------|-------|----------|\n")
	for _, post := range feed.Posts {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d | %d |\n",
			escapeMarkdownCell(post.ID),
			escapeMarkdownCell(orDash(post.Submolt)),
			escapeMarkdownCell(truncate(post.Title, maxCellRunes)),
			escapeMarkdownCell(authorName(post)),
			score(post),
			post.CommentCount,
		))
	}
	if feed.HasMore && feed.NextCursor != "" {
		sb.WriteString(fmt.Sprintf("\n**Next cursor**: `%s`\n", feed.NextCursor))
	}
	return sb.String(), nil
}

// FormatActivity renders ledger entries as Markdown.
func (f *MarkdownFormatter) FormatActivity(entries []core.ActivityEntry) (string, error) {
	var sb strings.Builder
	sb.WriteString("## Activity\n\n")
	if len(entries) == 0 {
		sb.WriteString("_No recorded activity._\n")
		return sb.String(), nil
	}
	sb.WriteString("| When | Kind | Target | Status | Remote ID | Message |\n")
	sb.WriteString("|------|------|--------|--------|-----------|---------|\n")
	for _, entry := range entries {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s |\n",
			formatTime(entry.CreatedAt),
			escapeMarkdownCell(string(entry.Kind)),
			escapeMarkdownCell(orDash(entry.Target)),
			escapeMarkdownCell(string(entry.Status)),
			escapeMarkdownCell(orDash(entry.RemoteID)),
			escapeMarkdownCell(truncate(entry.Message, maxCellRunes)),
		))
	}
	return sb.String(), nil
}

// FormatReport renders a run report as Markdown.
func (f *MarkdownFormatter) FormatReport(report *agent.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString("## Run report\n\n")
	sb.WriteString("| # | Kind | Target | Status | Attempts | Message |\n")
	sb.WriteString("|---|------|--------|--------|----------|---------|\n")
	for _, o := range report.Outcomes {
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %d | %s |\n",
			o.Index,
			escapeMarkdownCell(string(o.Kind)),
			escapeMarkdownCell(orDash(o.Target)),
			escapeMarkdownCell(string(o.Status)),
			o.Attempts,
			escapeMarkdownCell(truncate(o.Message, maxCellRunes)),
		))
	}
	sb.WriteString(fmt.Sprintf("\n**Summary**: %s\n", summary(report)))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
