// Package discovery extracts API hints from the platform's published API
// document. Parsing is best effort: it never fails, and anything it cannot
// find falls back to a hardcoded default.
package discovery

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/moltpilot/moltpilot/internal/core/throttle"
)

const (
	DefaultBaseURL    = "https://www.moltbook.com"
	DefaultAuthHeader = "Authorization"
	DefaultAuthScheme = "Bearer"
)

// Endpoint is a method and path mentioned in the document.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Document is the structured guess extracted from the text.
type Document struct {
	BaseURL             string     `json:"base_url"`
	AuthHeader          string     `json:"auth_header"`
	AuthScheme          string     `json:"auth_scheme"`
	RequestsPerMinute   int        `json:"requests_per_minute,omitempty"`
	PostsPerHour        int        `json:"posts_per_hour,omitempty"`
	CommentsPerHour     int        `json:"comments_per_hour,omitempty"`
	PostIntervalMinutes int        `json:"post_interval_minutes,omitempty"`
	Endpoints           []Endpoint `json:"endpoints,omitempty"`
	// Defaulted lists the fields that were not found in the text.
	Defaulted []string `json:"defaulted,omitempty"`
}

var (
	baseURLPattern      = regexp.MustCompile("(?i)base\\s*url[^\\n]*?(https?://[^\\s`\"'()<>]+)")
	anyAPIURLPattern    = regexp.MustCompile("https?://[^\\s`\"'()<>]+/api[^\\s`\"'()<>]*")
	authPattern         = regexp.MustCompile(`(?i)\b(Authorization|X-API-Key)\s*:\s*(Bearer|Token|Basic)?`)
	endpointPattern     = regexp.MustCompile(`\b(GET|POST|PUT|PATCH|DELETE)\s+(/[A-Za-z0-9_/{}:.\-]+)`)
	requestsPerMinute   = regexp.MustCompile(`(?i)(\d+)\s*requests?\s*(?:/|per|a|an)\s*min`)
	postsPerHour        = regexp.MustCompile(`(?i)(\d+)\s*posts?\s*(?:/|per|a|an)\s*hour`)
	commentsPerHour     = regexp.MustCompile(`(?i)(\d+)\s*comments?\s*(?:/|per|a|an)\s*hour`)
	postIntervalPattern = regexp.MustCompile(`(?i)(?:1|one)\s*post\s*(?:/|per|every)\s*(\d+)\s*min`)
)

// Defaults is the document used when nothing can be parsed.
func Defaults() Document {
	return Document{
		BaseURL:    DefaultBaseURL,
		AuthHeader: DefaultAuthHeader,
		AuthScheme: DefaultAuthScheme,
	}
}

// Parse extracts what it can from text.
func Parse(text string) Document {
	doc := Defaults()

	if match := baseURLPattern.FindStringSubmatch(text); match != nil {
		doc.BaseURL = cleanURL(match[1])
	} else if match := anyAPIURLPattern.FindString(text); match != "" {
		doc.BaseURL = cleanURL(match)
	} else {
		doc.Defaulted = append(doc.Defaulted, "base_url")
	}

	if match := authPattern.FindStringSubmatch(text); match != nil {
		doc.AuthHeader = match[1]
		if strings.EqualFold(match[1], "X-API-Key") {
			doc.AuthScheme = ""
		} else if match[2] != "" {
			doc.AuthScheme = match[2]
		}
	} else {
		doc.Defaulted = append(doc.Defaulted, "auth")
	}

	doc.RequestsPerMinute = firstInt(requestsPerMinute, text)
	doc.PostsPerHour = firstInt(postsPerHour, text)
	doc.CommentsPerHour = firstInt(commentsPerHour, text)
	doc.PostIntervalMinutes = firstInt(postIntervalPattern, text)
	if doc.RequestsPerMinute == 0 && doc.PostsPerHour == 0 && doc.CommentsPerHour == 0 && doc.PostIntervalMinutes == 0 {
		doc.Defaulted = append(doc.Defaulted, "rate_limits")
	}

	doc.Endpoints = endpoints(text)
	return doc
}

// ApplyTo tightens cfg with any limits the document advertises. Limits are
// only ever lowered, never raised.
func (d Document) ApplyTo(cfg throttle.Config) throttle.Config {
	if d.PostsPerHour > 0 && d.PostsPerHour < cfg.MaxPostsPerHour {
		cfg.MaxPostsPerHour = d.PostsPerHour
	}
	if d.CommentsPerHour > 0 && d.CommentsPerHour < cfg.MaxCommentsPerHour {
		cfg.MaxCommentsPerHour = d.CommentsPerHour
	}
	if d.PostIntervalMinutes > cfg.PostIntervalMin {
		cfg.PostIntervalMin = d.PostIntervalMinutes
		if cfg.PostIntervalMax < cfg.PostIntervalMin {
			cfg.PostIntervalMax = cfg.PostIntervalMin
		}
	}
	return cfg
}

func firstInt(pattern *regexp.Regexp, text string) int {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	value, err := strconv.Atoi(match[1])
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func endpoints(text string) []Endpoint {
	seen := map[Endpoint]struct{}{}
	for _, match := range endpointPattern.FindAllStringSubmatch(text, -1) {
		ep := Endpoint{Method: match[1], Path: strings.TrimRight(match[2], ".:")}
		seen[ep] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}

	out := make([]Endpoint, 0, len(seen))
	for ep := range seen {
		out = append(out, ep)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path == out[j].Path {
			return out[i].Method < out[j].Method
		}
		return out[i].Path < out[j].Path
	})
	return out
}

func cleanURL(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), ".,;:/")
}
