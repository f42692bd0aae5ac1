package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/store"
)

// maxActivityLimit caps the limit query parameter.
const maxActivityLimit = 500

// ActivityLister reads the activity ledger. *store.Store satisfies it.
type ActivityLister interface {
	ListActivity(ctx context.Context, q store.ActivityQuery) ([]core.ActivityEntry, error)
}

// ActivityHandler lists ledger entries. Query parameters: kind, status,
// since (RFC 3339), and limit.
type ActivityHandler struct {
	Ledger ActivityLister
}

func (h ActivityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Ledger == nil {
		respondWithError(w, r, unavailable("activity ledger not configured"))
		return
	}

	query, err := parseActivityQuery(r)
	if err != nil {
		respondWithError(w, r, errors.NewErrorEnvelope("VALIDATION_FAILED", err.Error()))
		return
	}

	entries, err := h.Ledger.ListActivity(r.Context(), query)
	if err != nil {
		envelope := errors.NewErrorEnvelope("DATABASE_ERROR", "failed to list activity")
		envelope, _ = envelope.WithContext(map[string]interface{}{"wrapped_error": err.Error()})
		respondWithError(w, r, envelope)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func parseActivityQuery(r *http.Request) (store.ActivityQuery, error) {
	values := r.URL.Query()
	query := store.ActivityQuery{Status: core.ActionStatus(strings.TrimSpace(values.Get("status")))}

	if raw := strings.TrimSpace(values.Get("kind")); raw != "" {
		kind, err := core.ParseActionKind(raw)
		if err != nil {
			return query, err
		}
		query.Kind = kind
	}

	if raw := strings.TrimSpace(values.Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, fmt.Errorf("since must be an RFC 3339 timestamp")
		}
		query.Since = since
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return query, fmt.Errorf("limit must be a positive integer")
		}
		query.Limit = min(limit, maxActivityLimit)
	}

	return query, nil
}

func unavailable(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message)
}
