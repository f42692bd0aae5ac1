// Package moltapi is a client for the social platform API. Every call goes
// through one retry policy: 401 fails fast, 429 backs off, other failures are
// retried with exponential backoff, all within a shared budget of
// MaxAttempts attempts.
package moltapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/moltpilot/moltpilot/internal/observability"
)

const (
	// MaxAttempts is the total number of attempts for one logical call,
	// shared between rate-limit backoff and error retries.
	MaxAttempts = 3

	DefaultBaseURL   = "https://www.moltbook.com"
	DefaultUserAgent = "moltpilot/dev"

	maxBodyBytes = 8 << 20
)

// Client executes calls against the platform API.
type Client struct {
	BaseURL    string
	Token      string
	UserAgent  string
	HTTPClient *http.Client
	// Limiter paces outbound attempts when set.
	Limiter *rate.Limiter
	Logger  observability.Logger
	// Sleep replaces the backoff timer; tests use it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// callMeta describes how a logical call went on the wire.
type callMeta struct {
	Attempts  int
	RequestID string
}

// Execute performs one logical call and returns the JSON response body.
// body is marshalled as JSON when non-nil.
func (c *Client) Execute(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	data, _, err := c.executeJSON(ctx, method, path, body)
	return data, err
}

func (c *Client) executeJSON(ctx context.Context, method, path string, body any) (json.RawMessage, callMeta, error) {
	data, meta, err := c.execute(ctx, method, path, body)
	if err != nil {
		return nil, meta, err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage("null"), meta, nil
	}
	if !json.Valid(data) {
		return nil, meta, validationError(method, path, meta, "response body is not valid JSON", nil)
	}
	return json.RawMessage(data), meta, nil
}

// ExecuteRaw performs one logical call and returns the raw response body.
func (c *Client) ExecuteRaw(ctx context.Context, method, path string, body any) ([]byte, error) {
	data, _, err := c.execute(ctx, method, path, body)
	return data, err
}

func (c *Client) execute(ctx context.Context, method, path string, body any) ([]byte, callMeta, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := c.resolve(path)
	if err != nil {
		return nil, callMeta{}, err
	}

	var payload any
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, callMeta{}, fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}

	call := newCall(ctx, c, method, path)
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target.String(), payload)
	if err != nil {
		return nil, call.meta(), err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent())
	req.Header.Set("X-Request-ID", call.requestID)
	if token := strings.TrimSpace(c.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := call.retryClient().Do(req)
	if err != nil {
		return nil, call.meta(), err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, call.meta(), &APIError{
			Kind:       KindTransport,
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Attempts:   call.attempts,
			RequestID:  call.requestID,
			Err:        fmt.Errorf("read response body: %w", err),
		}
	}
	return data, call.meta(), nil
}

func validationError(method, path string, meta callMeta, message string, err error) *APIError {
	return &APIError{
		Kind:      KindValidation,
		Method:    method,
		Path:      path,
		Attempts:  meta.Attempts,
		RequestID: meta.RequestID,
		Message:   message,
		Err:       err,
	}
}

// transport returns the HTTP client used for attempts, paced by Limiter.
func (c *Client) transport() *http.Client {
	base := c.httpClient()
	if c.Limiter == nil {
		return base
	}
	paced := *base
	paced.Transport = &pacedTransport{base: base.Transport, limiter: c.Limiter}
	return &paced
}

// pacedTransport waits for a limiter slot before every round trip.
type pacedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("wait for request slot: %w", err)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func (c *Client) resolve(path string) (*url.URL, error) {
	base := DefaultBaseURL
	if c != nil && strings.TrimSpace(c.BaseURL) != "" {
		base = strings.TrimSpace(c.BaseURL)
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, errors.New("base url must be absolute")
	}

	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid request path: %w", err)
	}
	return baseURL.ResolveReference(ref), nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) userAgent() string {
	if ua := strings.TrimSpace(c.UserAgent); ua != "" {
		return ua
	}
	return DefaultUserAgent
}

func (c *Client) logger() observability.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return observability.NopLogger()
}

func newRequestID() string {
	return uuid.New().String()
}
