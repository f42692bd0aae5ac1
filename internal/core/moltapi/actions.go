package moltapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/moltpilot/moltpilot/internal/core"
)

// ActionResult is what the platform answered to a write. Raw holds the body
// verbatim; ID and Success are lifted out of it on a best-effort basis.
type ActionResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	// Attempts is how many round trips the call took.
	Attempts int             `json:"attempts"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// CreatePost publishes a post.
func (c *Client) CreatePost(ctx context.Context, post core.NewPost) (*ActionResult, error) {
	if strings.TrimSpace(post.Submolt) == "" {
		return nil, errors.New("submolt is required")
	}
	if strings.TrimSpace(post.Title) == "" {
		return nil, errors.New("post title is required")
	}
	return c.write(ctx, PostsPath, post)
}

// CreateComment publishes a comment on a post.
func (c *Client) CreateComment(ctx context.Context, comment core.NewComment) (*ActionResult, error) {
	if strings.TrimSpace(comment.PostID) == "" {
		return nil, errors.New("post id is required")
	}
	if strings.TrimSpace(comment.Body) == "" {
		return nil, errors.New("comment body is required")
	}
	return c.write(ctx, CommentsPath, comment)
}

// Vote casts a vote on a post or comment.
func (c *Client) Vote(ctx context.Context, vote core.NewVote) (*ActionResult, error) {
	if strings.TrimSpace(vote.Target()) == "" {
		return nil, errors.New("vote target is required")
	}
	switch vote.Direction {
	case core.VoteUp, core.VoteDown:
	default:
		return nil, fmt.Errorf("unsupported vote direction: %q", vote.Direction)
	}
	return c.write(ctx, VotesPath, vote)
}

func (c *Client) write(ctx context.Context, path string, body any) (*ActionResult, error) {
	raw, meta, err := c.executeJSON(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	result := decodeActionResult(raw)
	result.Attempts = meta.Attempts
	return result, nil
}

func decodeActionResult(raw json.RawMessage) *ActionResult {
	result := &ActionResult{Success: true, Raw: raw}

	var payload struct {
		Success *bool           `json:"success"`
		ID      json.RawMessage `json:"id"`
		Message string          `json:"message"`
		Post    *struct {
			ID json.RawMessage `json:"id"`
		} `json:"post"`
		Comment *struct {
			ID json.RawMessage `json:"id"`
		} `json:"comment"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return result
	}

	if payload.Success != nil {
		result.Success = *payload.Success
	}
	result.Message = payload.Message

	switch {
	case len(payload.ID) > 0:
		result.ID = idString(payload.ID)
	case payload.Post != nil:
		result.ID = idString(payload.Post.ID)
	case payload.Comment != nil:
		result.ID = idString(payload.Comment.ID)
	}
	return result
}

// idString accepts string or numeric ids.
func idString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	value := strings.TrimSpace(string(raw))
	if value == "null" {
		return ""
	}
	return value
}
