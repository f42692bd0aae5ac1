package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
)

// Build metadata, injected from main via SetVersionInfo.
var (
	AppName      = "moltpilot"
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
)

var processStart = time.Now()

// SetVersionInfo records build metadata reported by /version.
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// VersionResponse is the /version payload.
type VersionResponse struct {
	App      AppInfo           `json:"app"`
	Stack    map[string]string `json:"stack"`
	Platform string            `json:"platform"`
	Uptime   string            `json:"uptime"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	ssot := crucible.GetVersion()

	writeJSON(w, http.StatusOK, VersionResponse{
		App: AppInfo{
			Name:      AppName,
			Version:   AppVersion,
			Commit:    AppCommit,
			BuildDate: AppBuildDate,
		},
		Stack: map[string]string{
			"go":       runtime.Version(),
			"gofulmen": ssot.Gofulmen,
			"crucible": ssot.Crucible,
		},
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Uptime:   time.Since(processStart).Truncate(time.Second).String(),
	})
}
