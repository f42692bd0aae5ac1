package integration

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltpilot/moltpilot/internal/core/throttle"
	"github.com/moltpilot/moltpilot/internal/observability"
	"github.com/moltpilot/moltpilot/internal/server"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// isPermissionError normalizes OS-specific permission errors so we can skip
// when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	cleanupMetrics(t)
}

// newStatusServer serves the status router on an IPv4 loopback listener.
func newStatusServer(t *testing.T, opts ...server.Option) (*httptest.Server, *http.Client) {
	t.Helper()
	srv := server.New("127.0.0.1", 0, opts...)

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping status server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func newThrottle(t *testing.T) *throttle.Throttle {
	t.Helper()
	th, err := throttle.New(throttle.Config{
		PostIntervalMin:    30,
		PostIntervalMax:    60,
		CommentIntervalMin: 1,
		CommentIntervalMax: 2,
		MaxPostsPerHour:    1,
		MaxCommentsPerHour: 20,
	})
	require.NoError(t, err)
	return th
}

func TestStatusServerMetrics_Integration(t *testing.T) {
	observability.InitServerLogger("test", "info")
	initMetricsOrSkip(t)

	th := newThrottle(t)
	th.RecordPost()

	ts, client := newStatusServer(t, server.WithThrottle(th))

	const numRequests = 40
	const numWorkers = 8

	requests := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requests <- i
	}
	close(requests)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for n := range requests {
				path := []string{"/health", "/v1/throttle", "/version", "/missing"}[n%4]
				resp, err := client.Get(ts.URL + path)
				if err == nil {
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	content := string(body)
	assert.Contains(t, content, "test_http_requests_total")
	assert.Contains(t, content, "test_http_request_duration_ms")
	assert.Contains(t, content, "test_throttle_decisions_total")
	assert.Less(t, elapsed, 5*time.Second)
}

func TestThrottleEndpointReportsDenial(t *testing.T) {
	observability.InitServerLogger("test", "info")

	th := newThrottle(t)
	th.RecordPost()

	ts, client := newStatusServer(t, server.WithThrottle(th))

	resp, err := client.Get(ts.URL + "/v1/throttle")
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Stats struct {
			PostsLastHour int `json:"posts_last_hour"`
		} `json:"stats"`
		Post struct {
			Allowed bool   `json:"allowed"`
			Reason  string `json:"reason"`
		} `json:"post"`
		Comment struct {
			Allowed bool `json:"allowed"`
		} `json:"comment"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, 1, payload.Stats.PostsLastHour)
	assert.False(t, payload.Post.Allowed)
	assert.Contains(t, payload.Post.Reason, "hourly cap")
	assert.True(t, payload.Comment.Allowed)
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	observability.InitServerLogger("test", "info")

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	ts, client := newStatusServer(t)

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
