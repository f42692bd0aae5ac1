package moltapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ErrorKind classifies a failed call; it decides the retry policy.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindRateLimited  ErrorKind = "rate_limited"
	KindServer       ErrorKind = "server_error"
	KindClient       ErrorKind = "client_error"
	KindTransport    ErrorKind = "transport"
	KindValidation   ErrorKind = "validation"
)

// Sentinel errors for use with errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized: credential invalid or missing")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("server error")
	ErrClient       = errors.New("client error")
	ErrTransport    = errors.New("transport failure")
	ErrValidation   = errors.New("response validation failed")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindRateLimited:
		return ErrRateLimited
	case KindServer:
		return ErrServer
	case KindClient:
		return ErrClient
	case KindTransport:
		return ErrTransport
	case KindValidation:
		return ErrValidation
	default:
		return nil
	}
}

// Retryable reports whether the kind is retried within the attempt budget.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindServer, KindClient, KindTransport:
		return true
	default:
		return false
	}
}

// APIError is the terminal error of a logical call.
type APIError struct {
	Kind       ErrorKind
	Method     string
	Path       string
	StatusCode int
	Attempts   int
	RequestID  string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s", e.Method, e.Path, e.Kind)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *APIError) Is(target error) bool {
	sentinel := e.Kind.sentinel()
	return sentinel != nil && target == sentinel
}

// AsAPIError extracts an *APIError from err.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// classifyStatus maps an HTTP status to an error kind. The empty kind means
// success. Order matters: 401 and 429 are checked before the ranges.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindClient
	default:
		return ""
	}
}

// remoteMessage pulls a human readable message out of an error body.
func remoteMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Hint    string `json:"hint"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		parts := make([]string, 0, 2)
		for _, part := range []string{payload.Error, payload.Message, payload.Hint} {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		if len(parts) > 0 {
			return truncate(strings.Join(parts, "; "), maxMessageLen)
		}
	}
	return truncate(text, maxMessageLen)
}

const maxMessageLen = 256

// truncate cuts value to at most limit bytes without splitting a rune.
func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + "..."
}
