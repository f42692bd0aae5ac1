package moltapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/moltpilot/moltpilot/internal/metrics"
	"github.com/moltpilot/moltpilot/internal/observability"
)

// Backoff returns 2^n seconds.
func Backoff(n int) time.Duration {
	return time.Duration(1<<n) * time.Second
}

// RetryDelay is the pause after the failed attempt with zero-based index i.
// A 429 waits 2^i seconds; any other failure waits 2^(i+1).
func RetryDelay(i int, resp *http.Response) time.Duration {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return Backoff(i)
	}
	return Backoff(i + 1)
}

// call holds the state of one logical call across its attempts.
type call struct {
	ctx       context.Context
	client    *Client
	log       observability.Logger
	method    string
	path      string
	route     string
	requestID string

	attempts    int
	started     time.Time
	pending     time.Duration
	interrupted error
}

func newCall(ctx context.Context, c *Client, method, path string) *call {
	return &call{
		ctx:       ctx,
		client:    c,
		log:       c.logger(),
		method:    method,
		path:      path,
		route:     routeOf(path),
		requestID: newRequestID(),
	}
}

func (cl *call) meta() callMeta {
	return callMeta{Attempts: cl.attempts, RequestID: cl.requestID}
}

func (cl *call) retryClient() *retryablehttp.Client {
	return &retryablehttp.Client{
		HTTPClient:      cl.client.transport(),
		Logger:          retryablehttp.LeveledLogger(leveledLogger{inner: cl.log}),
		RetryMax:        MaxAttempts - 1,
		RequestLogHook:  cl.onRequest,
		ResponseLogHook: cl.onResponse,
		CheckRetry:      cl.checkRetry,
		Backoff:         cl.backoff,
		PrepareRetry:    cl.prepareRetry,
		ErrorHandler:    cl.giveUp,
	}
}

func (cl *call) fields(extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("request_id", cl.requestID),
		zap.String("method", cl.method),
		zap.String("path", cl.route),
		zap.Int("attempt", cl.attempts),
		zap.Int("max_attempts", MaxAttempts),
	}, extra...)
}

func (cl *call) onRequest(_ retryablehttp.Logger, _ *http.Request, retry int) {
	cl.attempts = retry + 1
	cl.started = time.Now()
}

func (cl *call) onResponse(_ retryablehttp.Logger, resp *http.Response) {
	if resp.StatusCode != http.StatusTooManyRequests {
		return
	}
	metrics.RecordRateLimitHit(cl.route)
	fields := cl.fields(zap.Int("status", resp.StatusCode))
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		fields = append(fields, zap.String("retry_after", retryAfter))
	}
	cl.log.Warn("api rate limited", fields...)
}

// checkRetry classifies every attempt. 401 aborts with ErrUnauthorized so the
// response reaches giveUp.
func (cl *call) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	kind, status := KindTransport, 0
	fields := cl.fields(zap.Duration("duration", time.Since(cl.started)))
	if err != nil {
		fields = append(fields, zap.Error(err))
	} else {
		status = resp.StatusCode
		kind = classifyStatus(status)
		fields = append(fields, zap.Int("status", status))
	}
	metrics.RecordRequestAttempt(cl.method, cl.route, outcomeOf(kind), status)
	cl.log.Debug("api request attempt", fields...)

	switch {
	case kind == "":
		return false, nil
	case kind == KindUnauthorized:
		cl.log.Error("api request unauthorized", fields...)
		return false, ErrUnauthorized
	default:
		return kind.Retryable(), nil
	}
}

// backoff computes the contract delay. With an injected Sleep the wait moves
// to prepareRetry and the library timer gets zero.
func (cl *call) backoff(_, _ time.Duration, retry int, resp *http.Response) time.Duration {
	delay := RetryDelay(retry, resp)
	metrics.RecordBackoff(cl.route, delay)

	fields := cl.fields(zap.Duration("backoff", delay))
	if resp != nil {
		fields = append(fields, zap.Int("status", resp.StatusCode))
	}
	cl.log.Warn("api request failed, retrying", fields...)

	if cl.client.Sleep == nil {
		return delay
	}
	cl.pending = delay
	return 0
}

func (cl *call) prepareRetry(req *http.Request) error {
	if cl.pending <= 0 {
		return nil
	}
	delay := cl.pending
	cl.pending = 0
	if err := cl.client.Sleep(req.Context(), delay); err != nil {
		cl.interrupted = fmt.Errorf("backoff interrupted: %w", err)
		return cl.interrupted
	}
	return nil
}

// giveUp turns the last attempt into an *APIError.
func (cl *call) giveUp(resp *http.Response, err error, tries int) (*http.Response, error) {
	if resp != nil {
		defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body
	}
	if cl.interrupted != nil {
		return nil, cl.interrupted
	}
	if ctxErr := cl.ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	apiErr := &APIError{
		Kind:      KindTransport,
		Method:    cl.method,
		Path:      cl.path,
		Attempts:  tries,
		RequestID: cl.requestID,
	}
	if resp != nil {
		apiErr.StatusCode = resp.StatusCode
		if kind := classifyStatus(resp.StatusCode); kind != "" {
			apiErr.Kind = kind
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		apiErr.Message = remoteMessage(body)
	} else {
		apiErr.Err = err
	}

	if apiErr.Kind != KindUnauthorized {
		cl.log.Warn("api request exhausted retries",
			zap.String("request_id", cl.requestID),
			zap.String("method", cl.method),
			zap.String("path", cl.route),
			zap.String("kind", string(apiErr.Kind)),
			zap.Int("status", apiErr.StatusCode),
			zap.Int("attempts", tries))
	}
	return nil, apiErr
}

// leveledLogger adapts observability.Logger to retryablehttp. Library errors
// are logged at WARN because the policy above decides what is terminal.
type leveledLogger struct {
	inner observability.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, zapFields(keysAndValues)...)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, zapFields(keysAndValues)...)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, zapFields(keysAndValues)...)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, zapFields(keysAndValues)...)
}

func zapFields(keysAndValues []any) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 >= len(keysAndValues) {
			fields = append(fields, zap.Any("extra", keysAndValues[i]))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

// routeOf strips the query so metric labels stay bounded.
func routeOf(path string) string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		return path[:idx]
	}
	return path
}

func outcomeOf(kind ErrorKind) string {
	if kind == "" {
		return "success"
	}
	return string(kind)
}
