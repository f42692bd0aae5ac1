package main

import (
	"github.com/moltpilot/moltpilot/internal/cmd"
	"github.com/moltpilot/moltpilot/internal/server/handlers"
)

// Version information set via ldflags during build
// Example: go build -ldflags="-X main.version=1.0.0 -X main.commit=abc123 -X main.buildDate=2026-10-18"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		// Exit code follows the error kind: config, upstream service, or generic failure.
		cmd.HandleError(err)
	}
}
