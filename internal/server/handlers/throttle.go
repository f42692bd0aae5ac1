package handlers

import (
	"net/http"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/throttle"
)

// ThrottleResponse describes the live throttle state.
type ThrottleResponse struct {
	Config  throttle.Config   `json:"config"`
	Stats   core.ActionStats  `json:"stats"`
	Post    throttle.Decision `json:"post"`
	Comment throttle.Decision `json:"comment"`
}

// ThrottleHandler serves the throttle's counters and current decisions.
// Polling neither records actions nor counts as a throttle decision.
type ThrottleHandler struct {
	Throttle *throttle.Throttle
}

func (h ThrottleHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Throttle == nil {
		respondWithError(w, r, unavailable("throttle not configured"))
		return
	}

	writeJSON(w, http.StatusOK, ThrottleResponse{
		Config:  h.Throttle.Config(),
		Stats:   h.Throttle.Stats(),
		Post:    h.Throttle.Peek(core.ActionPost),
		Comment: h.Throttle.Peek(core.ActionComment),
	})
}
