package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/store"
	"github.com/moltpilot/moltpilot/internal/core/throttle"
	"github.com/moltpilot/moltpilot/internal/metrics"
	"github.com/moltpilot/moltpilot/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{
		Enabled: true,
		Emitter: collector,
	})
	require.NoError(t, err)

	original := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})

	return collector
}

func TestThrottleHandlerReportsStatsWithoutRecording(t *testing.T) {
	thr, err := throttle.New(throttle.DefaultConfig())
	require.NoError(t, err)
	thr.RecordPost()

	handler := ThrottleHandler{Throttle: thr}
	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/throttle", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ThrottleResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, 1, resp.Stats.PostsLastHour)
		assert.False(t, resp.Post.Allowed)
		assert.True(t, resp.Comment.Allowed)
		assert.Equal(t, 2, resp.Config.MaxPostsPerHour)
	}
}

func TestThrottleHandlerEmitsNoDecisionMetrics(t *testing.T) {
	collector := setupTelemetry(t)
	thr, err := throttle.New(throttle.DefaultConfig())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ThrottleHandler{Throttle: thr}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/throttle", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, collector.CountMetricsByName(metrics.ThrottleDecisionsTotal))

	thr.CanPost()
	assert.Equal(t, 1, collector.CountMetricsByName(metrics.ThrottleDecisionsTotal))
}

func TestThrottleHandlerWithoutThrottle(t *testing.T) {
	rec := httptest.NewRecorder()
	ThrottleHandler{}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/throttle", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type stubLedger struct {
	query   store.ActivityQuery
	entries []core.ActivityEntry
	err     error
}

func (s *stubLedger) ListActivity(_ context.Context, q store.ActivityQuery) ([]core.ActivityEntry, error) {
	s.query = q
	return s.entries, s.err
}

func TestActivityHandler(t *testing.T) {
	t.Run("FiltersAndLimit", func(t *testing.T) {
		ledger := &stubLedger{entries: []core.ActivityEntry{{ID: "a1", Kind: core.ActionPost, Status: core.ActionStatusSucceeded}}}
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/v1/activity?kind=POST&status=succeeded&limit=9999&since=2026-01-01T00:00:00Z", nil)
		ActivityHandler{Ledger: ledger}.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, core.ActionPost, ledger.query.Kind)
		assert.Equal(t, core.ActionStatusSucceeded, ledger.query.Status)
		assert.Equal(t, maxActivityLimit, ledger.query.Limit)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ledger.query.Since)
		assert.Contains(t, rec.Body.String(), `"count":1`)
	})

	t.Run("RejectsBadKind", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ActivityHandler{Ledger: &stubLedger{}}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/activity?kind=boost", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("RejectsBadLimit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ActivityHandler{Ledger: &stubLedger{}}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/activity?limit=-1", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("LedgerFailure", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ActivityHandler{Ledger: &stubLedger{err: errors.New("locked")}}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/activity", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "DATABASE_ERROR")
	})
}
