package metrics

import (
	"strconv"
	"time"

	"github.com/moltpilot/moltpilot/internal/observability"
)

// Agent-level metrics following Prometheus conventions
var (
	// API request metrics
	RequestAttemptsTotal = "api_request_attempts_total"
	RateLimitHitsTotal   = "api_rate_limit_hits_total"
	BackoffDuration      = "api_backoff_duration_ms"

	// Throttle metrics
	ThrottleDecisionsTotal = "throttle_decisions_total"

	// Agent loop metrics
	ActionsTotal = "agent_actions_total"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// RecordRequestAttempt records one HTTP attempt and how it was classified.
func RecordRequestAttempt(method, path, outcome string, statusCode int) {
	count(RequestAttemptsTotal, map[string]string{
		"method":      method,
		"path":        path,
		"outcome":     outcome,
		"http_status": strconv.Itoa(statusCode),
	})
}

// RecordRateLimitHit records a 429 response from the remote API.
func RecordRateLimitHit(path string) {
	count(RateLimitHitsTotal, map[string]string{"path": path})
}

// RecordBackoff records a backoff pause before a retry.
func RecordBackoff(path string, delay time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			BackoffDuration,
			delay,
			map[string]string{"path": path},
		)
	}
}

// RecordThrottleDecision records a throttle allow/deny decision.
func RecordThrottleDecision(kind string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	count(ThrottleDecisionsTotal, map[string]string{
		"kind":     kind,
		"decision": decision,
	})
}

// RecordAction records the outcome of a planned agent action.
func RecordAction(kind, status string) {
	count(ActionsTotal, map[string]string{
		"kind":   kind,
		"status": status,
	})
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// count increments a counter when telemetry is initialized.
func count(name string, tags map[string]string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(name, 1, tags)
	}
}
