package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/agent"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	return t
}

// FormatFeed renders a feed page as a table.
func (f *TableFormatter) FormatFeed(feed *core.Feed) (string, error) {
	if feed == nil {
		return "", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"ID", "Submolt", "Title", "Author", "Score", "Comments"})
	for _, post := range feed.Posts {
		t.AppendRow(table.Row{
			post.ID,
			orDash(post.Submolt),
			truncate(post.Title, maxCellRunes),
			authorName(post),
			score(post),
			post.CommentCount,
		})
	}

	footer := fmt.Sprintf("%d posts", len(feed.Posts))
	if feed.HasMore && feed.NextCursor != "" {
		footer += fmt.Sprintf(", next cursor %s", feed.NextCursor)
	}
	t.AppendFooter(table.Row{"", "", footer, "", "", ""})
	return t.Render(), nil
}

// FormatActivity renders ledger entries as a table.
func (f *TableFormatter) FormatActivity(entries []core.ActivityEntry) (string, error) {
	t := newTable()
	t.AppendHeader(table.Row{"When", "Kind", "Target", "Status", "Remote ID", "Attempts", "Message"})
	for _, entry := range entries {
		t.AppendRow(table.Row{
			formatTime(entry.CreatedAt),
			string(entry.Kind),
			orDash(entry.Target),
			string(entry.Status),
			orDash(entry.RemoteID),
			entry.Attempts,
			truncate(entry.Message, maxCellRunes),
		})
	}
	if len(entries) == 0 {
		t.AppendRow(table.Row{"(no recorded activity)", "", "", "", "", "", ""})
	}
	return t.Render(), nil
}

// FormatReport renders a run report as a table.
func (f *TableFormatter) FormatReport(report *agent.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"#", "Kind", "Target", "Status", "Attempts", "Waited", "Message"})
	for _, o := range report.Outcomes {
		t.AppendRow(table.Row{
			o.Index,
			string(o.Kind),
			orDash(o.Target),
			string(o.Status),
			o.Attempts,
			o.Waited.String(),
			truncate(o.Message, maxCellRunes),
		})
	}
	t.AppendFooter(table.Row{"", "", "", summary(report), "", "", ""})
	return t.Render(), nil
}

func summary(report *agent.Report) string {
	return fmt.Sprintf("%d ok, %d failed, %d denied, %d dry-run",
		report.Succeeded, report.Failed, report.Denied, report.DryRun)
}
