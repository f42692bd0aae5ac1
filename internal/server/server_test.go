package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/store"
	"github.com/moltpilot/moltpilot/internal/core/throttle"
	apperrors "github.com/moltpilot/moltpilot/internal/errors"
	"github.com/moltpilot/moltpilot/internal/server/handlers"
)

type emptyLedger struct{}

func (emptyLedger) ListActivity(context.Context, store.ActivityQuery) ([]core.ActivityEntry, error) {
	return []core.ActivityEntry{}, nil
}

func serve(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New("127.0.0.1", 0)

	rec := serve(t, srv, http.MethodGet, "/does-not-exist")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(t, srv, http.MethodPost, "/version")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerOptionalRoutes(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		srv := New("127.0.0.1", 0)
		assert.Equal(t, http.StatusNotFound, serve(t, srv, http.MethodGet, "/v1/throttle").Code)
		assert.Equal(t, http.StatusNotFound, serve(t, srv, http.MethodGet, "/v1/activity").Code)
	})

	t.Run("Enabled", func(t *testing.T) {
		thr, err := throttle.New(throttle.DefaultConfig())
		require.NoError(t, err)

		srv := New("127.0.0.1", 0, WithThrottle(thr), WithActivity(emptyLedger{}))
		assert.Equal(t, http.StatusOK, serve(t, srv, http.MethodGet, "/v1/throttle").Code)

		rec := serve(t, srv, http.MethodGet, "/v1/activity")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":0`)
	})
}

func TestServerHealthUsesRegisteredChecks(t *testing.T) {
	srv := New("127.0.0.1", 0)
	srv.Health().RegisterChecker("store", handlers.CheckerFunc(func(context.Context) error {
		return errors.New("database is locked")
	}))

	assert.Equal(t, http.StatusOK, serve(t, srv, http.MethodGet, "/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, srv, http.MethodGet, "/health/ready").Code)
	assert.Equal(t, http.StatusOK, serve(t, srv, http.MethodGet, "/version").Code)
}
