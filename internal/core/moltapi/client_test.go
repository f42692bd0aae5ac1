package moltapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/moltpilot/moltpilot/internal/core"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// scriptedServer answers with the given statuses in order, repeating the
// last one once the script runs out.
func scriptedServer(t *testing.T, statuses []int, body string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statuses[n])
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestClient(t *testing.T, server *httptest.Server, sleeper *sleepRecorder) *Client {
	t.Helper()
	return &Client{
		BaseURL:    server.URL,
		Token:      "secret",
		HTTPClient: server.Client(),
		Logger:     zaptest.NewLogger(t),
		Sleep:      sleeper.Sleep,
	}
}

func TestExecuteUnauthorizedFailsImmediately(t *testing.T) {
	server, calls := scriptedServer(t, []int{http.StatusUnauthorized}, `{"error":"bad key"}`)
	sleeper := &sleepRecorder{}
	client := newTestClient(t, server, sleeper)

	_, err := client.Execute(context.Background(), http.MethodGet, FeedPath, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnauthorized))

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 1, apiErr.Attempts)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "bad key")

	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.Empty(t, sleeper.Delays())
}

func TestExecuteRateLimitedThenSuccess(t *testing.T) {
	server, calls := scriptedServer(t, []int{http.StatusTooManyRequests, http.StatusOK}, `{"ok":true}`)
	sleeper := &sleepRecorder{}
	client := newTestClient(t, server, sleeper)

	raw, err := client.Execute(context.Background(), http.MethodGet, FeedPath, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(raw))

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second}, sleeper.Delays())
}

func TestExecuteServerErrorsExhaustBudget(t *testing.T) {
	server, calls := scriptedServer(t, []int{http.StatusInternalServerError}, `{"error":"boom"}`)
	sleeper := &sleepRecorder{}
	client := newTestClient(t, server, sleeper)

	_, err := client.Execute(context.Background(), http.MethodPost, PostsPath, map[string]string{"a": "b"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrServer))

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, MaxAttempts, apiErr.Attempts)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, PostsPath, apiErr.Path)

	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Delays())
}

func TestExecutePersistentRateLimitSharesBudget(t *testing.T) {
	server, calls := scriptedServer(t, []int{http.StatusTooManyRequests}, `{}`)
	sleeper := &sleepRecorder{}
	client := newTestClient(t, server, sleeper)

	_, err := client.Execute(context.Background(), http.MethodGet, FeedPath, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrRateLimited))

	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Delays())
}

func TestExecuteMixedRateLimitAndServerError(t *testing.T) {
	server, calls := scriptedServer(t, []int{
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusOK,
	}, `{"ok":true}`)
	sleeper := &sleepRecorder{}
	client := newTestClient(t, server, sleeper)

	_, err := client.Execute(context.Background(), http.MethodGet, FeedPath, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, []time.Duration{time.Second, 4 * time.Second}, sleeper.Delays())
}

func TestExecuteClientErrorsAreRetried(t *testing.T) {
	server, calls := scriptedServer(t, []int{http.StatusNotFound}, `{"error":"no such post"}`)
	client := newTestClient(t, server, &sleepRecorder{})

	_, err := client.Execute(context.Background(), http.MethodGet, "/api/posts/missing", nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrClient))
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestExecuteTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	sleeper := &sleepRecorder{}
	client := &Client{BaseURL: baseURL, Sleep: sleeper.Sleep, Logger: zaptest.NewLogger(t)}

	_, err := client.Execute(context.Background(), http.MethodGet, FeedPath, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTransport))
	assert.Len(t, sleeper.Delays(), 2)
}

func TestExecuteStopsWhenBackoffInterrupted(t *testing.T) {
	server, calls := scriptedServer(t, []int{http.StatusServiceUnavailable}, `{}`)
	client := newTestClient(t, server, &sleepRecorder{})
	client.Sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := client.Execute(context.Background(), http.MethodGet, FeedPath, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestExecuteInvalidJSONIsValidationError(t *testing.T) {
	server, calls := scriptedServer(t, []int{http.StatusOK}, `<html>`)
	client := newTestClient(t, server, &sleepRecorder{})

	_, err := client.Execute(context.Background(), http.MethodGet, FeedPath, nil)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestExecuteHeaders(t *testing.T) {
	var (
		mu      sync.Mutex
		headers []http.Header
		bodies  []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		headers = append(headers, r.Header.Clone())
		bodies = append(bodies, string(data))
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL, Token: "secret", UserAgent: "moltpilot/test", HTTPClient: server.Client()}
	_, err := client.Execute(context.Background(), http.MethodPost, PostsPath, map[string]string{"title": "hi"})
	require.NoError(t, err)

	anonymous := &Client{BaseURL: server.URL, HTTPClient: server.Client()}
	_, err = anonymous.Execute(context.Background(), http.MethodGet, FeedPath, nil)
	require.NoError(t, err)

	require.Len(t, headers, 2)
	assert.Equal(t, "application/json", headers[0].Get("Content-Type"))
	assert.Equal(t, "moltpilot/test", headers[0].Get("User-Agent"))
	assert.Equal(t, "Bearer secret", headers[0].Get("Authorization"))
	assert.JSONEq(t, `{"title":"hi"}`, bodies[0])

	assert.Equal(t, DefaultUserAgent, headers[1].Get("User-Agent"))
	assert.Empty(t, headers[1].Get("Authorization"))
	assert.Empty(t, bodies[1])
}

func TestGetFeedQueryAndParse(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, FeedPath, r.URL.Path)
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`{
			"success": true,
			"posts": [
				{"id": "p1", "title": "hello", "submolt": "general", "author": {"name": "crab"}, "upvotes": 3, "comment_count": 1}
			],
			"next_cursor": "abc",
			"has_more": true
		}`))
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}
	feed, err := client.GetFeed(context.Background(), FeedOptions{Sort: core.FeedSortNew, Limit: 5})
	require.NoError(t, err)

	assert.Equal(t, "limit=5&sort=new", query)
	require.Len(t, feed.Posts, 1)
	assert.Equal(t, "p1", feed.Posts[0].ID)
	assert.Equal(t, "crab", feed.Posts[0].Author.Name)
	assert.Equal(t, 3, feed.Posts[0].Upvotes)
	assert.Equal(t, "abc", feed.NextCursor)
	assert.True(t, feed.HasMore)
}

func TestGetFeedRejectsMalformedShape(t *testing.T) {
	server, calls := scriptedServer(t, []int{http.StatusOK}, `{"items": []}`)
	client := newTestClient(t, server, &sleepRecorder{})

	_, err := client.GetFeed(context.Background(), FeedOptions{})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrValidation))
	assert.False(t, errors.Is(err, ErrServer))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 1, apiErr.Attempts)
	assert.NotEmpty(t, apiErr.RequestID)
	assert.Contains(t, err.Error(), "after 1 attempt(s)")
}

func TestGetFeedValidationCountsRetries(t *testing.T) {
	server, calls := scriptedServer(t, []int{http.StatusBadGateway, http.StatusOK}, `{"items": []}`)
	client := newTestClient(t, server, &sleepRecorder{})

	_, err := client.GetFeed(context.Background(), FeedOptions{})
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, apiErr.Kind)
	assert.Equal(t, 2, apiErr.Attempts)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestParseFeed(t *testing.T) {
	t.Run("RemoteFailure", func(t *testing.T) {
		_, err := ParseFeed([]byte(`{"success": false, "error": "nope", "posts": []}`))
		require.ErrorContains(t, err, "nope")
	})

	t.Run("MissingPostID", func(t *testing.T) {
		_, err := ParseFeed([]byte(`{"posts": [{"title": "x"}]}`))
		require.ErrorContains(t, err, "no id")
	})

	t.Run("NumericIDAndLooseShapes", func(t *testing.T) {
		feed, err := ParseFeed([]byte(`{"posts": [
			{"id": 17, "title": "a", "author": "crab", "submolt": {"name": "general"}, "created_at": "2025-01-01 12:00:00"},
			{"id": "p2", "author": {"id": 9, "username": "shrimp"}, "created_at": 1735732800},
			{"id": "p3", "created_at": "yesterday-ish"}
		]}`))
		require.NoError(t, err)
		require.Len(t, feed.Posts, 3)

		assert.Equal(t, "17", feed.Posts[0].ID)
		assert.Equal(t, "crab", feed.Posts[0].Author.Name)
		assert.Equal(t, "general", feed.Posts[0].Submolt)
		assert.Equal(t, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), feed.Posts[0].CreatedAt)

		assert.Equal(t, core.Author{ID: "9", Name: "shrimp"}, feed.Posts[1].Author)
		assert.Equal(t, time.Unix(1735732800, 0).UTC(), feed.Posts[1].CreatedAt)

		assert.True(t, feed.Posts[2].CreatedAt.IsZero())
	})

	t.Run("EmptyFeed", func(t *testing.T) {
		feed, err := ParseFeed([]byte(`{"posts": []}`))
		require.NoError(t, err)
		require.Empty(t, feed.Posts)
	})
}

func TestCreatePostReturnsRemoteID(t *testing.T) {
	var received core.NewPost
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, PostsPath, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"success": true, "post": {"id": "post-42"}}`))
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}
	result, err := client.CreatePost(context.Background(), core.NewPost{Submolt: "general", Title: "hi", Body: "there"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "post-42", result.ID)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "there", received.Body)
	assert.JSONEq(t, `{"success": true, "post": {"id": "post-42"}}`, string(result.Raw))
}

func TestCreateCommentAndVote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case CommentsPath:
			_, _ = w.Write([]byte(`{"id": 17}`))
		case VotesPath:
			_, _ = w.Write([]byte(`{"success": true, "message": "upvoted"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}

	comment, err := client.CreateComment(context.Background(), core.NewComment{PostID: "p1", Body: "nice"})
	require.NoError(t, err)
	assert.Equal(t, "17", comment.ID)

	vote, err := client.Vote(context.Background(), core.NewVote{PostID: "p1", Direction: core.VoteUp})
	require.NoError(t, err)
	assert.True(t, vote.Success)
	assert.Equal(t, "upvoted", vote.Message)
}

func TestWritesValidateBeforeSending(t *testing.T) {
	client := &Client{BaseURL: "http://127.0.0.1:1"}

	_, err := client.CreatePost(context.Background(), core.NewPost{Title: "no submolt"})
	require.Error(t, err)

	_, err = client.CreateComment(context.Background(), core.NewComment{PostID: "p1"})
	require.Error(t, err)

	_, err = client.Vote(context.Background(), core.NewVote{PostID: "p1", Direction: "sideways"})
	require.Error(t, err)

	_, err = client.Vote(context.Background(), core.NewVote{Direction: core.VoteUp})
	require.Error(t, err)
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(0))
	assert.Equal(t, 2*time.Second, Backoff(1))
	assert.Equal(t, 4*time.Second, Backoff(2))
}

func TestRetryDelay(t *testing.T) {
	limited := &http.Response{StatusCode: http.StatusTooManyRequests}
	failed := &http.Response{StatusCode: http.StatusBadGateway}

	assert.Equal(t, time.Second, RetryDelay(0, limited))
	assert.Equal(t, 2*time.Second, RetryDelay(1, limited))
	assert.Equal(t, 2*time.Second, RetryDelay(0, failed))
	assert.Equal(t, 4*time.Second, RetryDelay(1, failed))
	assert.Equal(t, 2*time.Second, RetryDelay(0, nil))
}

func TestErrorKindRetryable(t *testing.T) {
	for _, kind := range []ErrorKind{KindRateLimited, KindServer, KindClient, KindTransport} {
		assert.True(t, kind.Retryable(), string(kind))
	}
	assert.False(t, KindUnauthorized.Retryable())
	assert.False(t, KindValidation.Retryable())
}

func TestExecuteKeepsRequestIDAcrossRetries(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get("X-Request-ID"))
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server, &sleepRecorder{})
	_, err := client.Execute(context.Background(), http.MethodPost, PostsPath, map[string]string{"title": "x"})
	require.Error(t, err)

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	require.Len(t, ids, MaxAttempts)
	for _, id := range ids {
		assert.Equal(t, apiErr.RequestID, id)
	}
}

func TestExecuteLimiterPacesAttempts(t *testing.T) {
	server, calls := scriptedServer(t, []int{http.StatusOK}, `{}`)
	client := newTestClient(t, server, &sleepRecorder{})
	client.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	_, err := client.Execute(context.Background(), http.MethodGet, FeedPath, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Execute(ctx, http.MethodGet, FeedPath, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestRemoteMessageTruncatesOnRuneBoundary(t *testing.T) {
	body := "a" + strings.Repeat("é", maxMessageLen)
	msg := remoteMessage([]byte(body))

	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "..."))
	assert.LessOrEqual(t, len(msg), maxMessageLen+len("..."))
}

func TestLeveledLoggerFields(t *testing.T) {
	fields := zapFields([]any{"method", "GET", "remaining", 2, "dangling"})
	require.Len(t, fields, 3)
	assert.Equal(t, "method", fields[0].Key)
	assert.Equal(t, "remaining", fields[1].Key)
	assert.Equal(t, "extra", fields[2].Key)

	var logger retryablehttp.LeveledLogger = leveledLogger{inner: zaptest.NewLogger(t)}
	logger.Error("request failed", "error", io.EOF)
}
