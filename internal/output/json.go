package output

import (
	"encoding/json"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/agent"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatFeed renders a feed page as JSON.
func (f *JSONFormatter) FormatFeed(feed *core.Feed) (string, error) {
	if feed == nil {
		return "", nil
	}
	return f.marshal(feed)
}

// FormatActivity renders ledger entries as a JSON array.
func (f *JSONFormatter) FormatActivity(entries []core.ActivityEntry) (string, error) {
	if entries == nil {
		entries = []core.ActivityEntry{}
	}
	return f.marshal(entries)
}

// FormatReport renders a run report as JSON.
func (f *JSONFormatter) FormatReport(report *agent.Report) (string, error) {
	if report == nil {
		return "", nil
	}
	return f.marshal(report)
}

// Marshal renders any value using the formatter's indentation.
func (f *JSONFormatter) Marshal(value any) (string, error) {
	return f.marshal(value)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
