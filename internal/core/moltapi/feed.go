package moltapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/moltpilot/moltpilot/internal/core"
)

// Endpoint paths consumed by the agent.
const (
	FeedPath     = "/api/feed"
	PostsPath    = "/api/posts"
	CommentsPath = "/api/comments"
	VotesPath    = "/api/votes"
)

// FeedOptions selects a feed page. Zero values are omitted from the query.
type FeedOptions struct {
	Sort    core.FeedSort
	Submolt string
	Limit   int
	Cursor  string
}

func (o FeedOptions) query() url.Values {
	values := url.Values{}
	if sort := strings.TrimSpace(string(o.Sort)); sort != "" {
		values.Set("sort", sort)
	}
	if submolt := strings.TrimSpace(o.Submolt); submolt != "" {
		values.Set("submolt", submolt)
	}
	if o.Limit > 0 {
		values.Set("limit", strconv.Itoa(o.Limit))
	}
	if cursor := strings.TrimSpace(o.Cursor); cursor != "" {
		values.Set("cursor", cursor)
	}
	return values
}

// GetFeed fetches one feed page. A body that does not look like a feed is
// reported as a validation error and is not retried.
func (c *Client) GetFeed(ctx context.Context, opts FeedOptions) (*core.Feed, error) {
	path := FeedPath
	if encoded := opts.query().Encode(); encoded != "" {
		path += "?" + encoded
	}

	raw, meta, err := c.executeJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	feed, err := ParseFeed(raw)
	if err != nil {
		return nil, validationError(http.MethodGet, path, meta, "", err)
	}
	return feed, nil
}

// wirePost is a feed entry as sent by the platform. Ids, authors, submolts
// and timestamps come in more than one shape.
type wirePost struct {
	ID           json.RawMessage `json:"id"`
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	URL          string          `json:"url"`
	Submolt      json.RawMessage `json:"submolt"`
	Author       json.RawMessage `json:"author"`
	Upvotes      int             `json:"upvotes"`
	Downvotes    int             `json:"downvotes"`
	CommentCount int             `json:"comment_count"`
	CreatedAt    json.RawMessage `json:"created_at"`
}

func (w wirePost) post() core.Post {
	return core.Post{
		ID:           idString(w.ID),
		Title:        w.Title,
		Content:      w.Content,
		URL:          w.URL,
		Submolt:      nameOf(w.Submolt),
		Author:       authorOf(w.Author),
		Upvotes:      w.Upvotes,
		Downvotes:    w.Downvotes,
		CommentCount: w.CommentCount,
		CreatedAt:    timeOf(w.CreatedAt),
	}
}

// ParseFeed decodes and checks a feed response body.
func ParseFeed(raw []byte) (*core.Feed, error) {
	var payload struct {
		Success    *bool       `json:"success"`
		Error      string      `json:"error"`
		Posts      *[]wirePost `json:"posts"`
		NextCursor string      `json:"next_cursor"`
		HasMore    bool        `json:"has_more"`
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	if payload.Success != nil && !*payload.Success {
		msg := strings.TrimSpace(payload.Error)
		if msg == "" {
			msg = "unspecified error"
		}
		return nil, fmt.Errorf("feed request reported failure: %s", msg)
	}
	if payload.Posts == nil {
		return nil, errors.New("feed response has no posts field")
	}

	posts := make([]core.Post, 0, len(*payload.Posts))
	for i, wp := range *payload.Posts {
		post := wp.post()
		if strings.TrimSpace(post.ID) == "" {
			return nil, fmt.Errorf("feed post %d has no id", i)
		}
		posts = append(posts, post)
	}

	return &core.Feed{
		Posts:      posts,
		NextCursor: payload.NextCursor,
		HasMore:    payload.HasMore,
	}, nil
}

// authorOf accepts {"id","name"}, {"username"} or a bare name.
func authorOf(raw json.RawMessage) core.Author {
	if len(raw) == 0 {
		return core.Author{}
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return core.Author{Name: name}
	}
	var obj struct {
		ID       json.RawMessage `json:"id"`
		Name     string          `json:"name"`
		Username string          `json:"username"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return core.Author{}
	}
	author := core.Author{ID: idString(obj.ID), Name: obj.Name}
	if author.Name == "" {
		author.Name = obj.Username
	}
	return author
}

// nameOf accepts a bare string or an object with a name.
func nameOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return obj.Name
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// timeOf parses the layouts above or unix seconds. Anything else is the
// zero time.
func timeOf(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		var seconds int64
		if err := json.Unmarshal(raw, &seconds); err != nil {
			return time.Time{}
		}
		return time.Unix(seconds, 0).UTC()
	}
	text = strings.TrimSpace(text)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t
		}
	}
	return time.Time{}
}
