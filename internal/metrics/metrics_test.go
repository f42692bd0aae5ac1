package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestRecordersEmitNamedSeries(t *testing.T) {
	collector := setupTelemetry(t)

	RecordRequestAttempt("GET", "/api/feed", "success", 200)
	RecordRateLimitHit("/api/posts")
	RecordBackoff("/api/posts", 2*time.Second)
	RecordThrottleDecision("post", false)
	RecordAction("comment", "succeeded")
	RecordError("RATE_LIMITED", 429)
	RecordErrorByEndpoint("/v1/*", "NOT_FOUND")
	RecordPanic()
	SetServerStartTime(time.Now().Unix())

	for _, name := range []string{
		RequestAttemptsTotal,
		RateLimitHitsTotal,
		BackoffDuration,
		ThrottleDecisionsTotal,
		ActionsTotal,
		ErrorsTotalName,
		ErrorsByEndpointName,
		PanicsTotalName,
		ServerStartTime,
	} {
		assert.Greater(t, collector.CountMetricsByName(name), 0, "expected %s", name)
	}
}

func TestRecordersAreNoOpsWithoutTelemetry(t *testing.T) {
	original := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.TelemetrySystem = original
	})

	assert.NotPanics(t, func() {
		RecordRequestAttempt("POST", "/api/posts", "rate_limited", 429)
		RecordThrottleDecision("comment", true)
		RecordAction("vote", "failed")
		RecordPanic()
	})
}
