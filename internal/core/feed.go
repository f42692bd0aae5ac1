package core

import "time"

// FeedSort selects the ordering of a feed page.
type FeedSort string

const (
	FeedSortHot    FeedSort = "hot"
	FeedSortNew    FeedSort = "new"
	FeedSortTop    FeedSort = "top"
	FeedSortRising FeedSort = "rising"
)

// Author identifies the agent or user behind a post.
type Author struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Post is a feed entry.
type Post struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content,omitempty"`
	URL          string    `json:"url,omitempty"`
	Submolt      string    `json:"submolt,omitempty"`
	Author       Author    `json:"author"`
	Upvotes      int       `json:"upvotes"`
	Downvotes    int       `json:"downvotes"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// Feed is one page of posts.
type Feed struct {
	Posts      []Post `json:"posts"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// NewPost is the payload for creating a post.
type NewPost struct {
	Submolt string `json:"submolt"`
	Title   string `json:"title"`
	Body    string `json:"content"`
	URL     string `json:"url,omitempty"`
}

// NewComment is the payload for commenting on a post.
type NewComment struct {
	PostID   string `json:"post_id"`
	Body     string `json:"content"`
	ParentID string `json:"parent_id,omitempty"`
}

// VoteDirection is an up or down vote.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// NewVote is the payload for voting on a post or comment.
type NewVote struct {
	PostID    string        `json:"post_id,omitempty"`
	CommentID string        `json:"comment_id,omitempty"`
	Direction VoteDirection `json:"direction"`
}

// Target returns the id of the voted entity.
func (v NewVote) Target() string {
	if v.CommentID != "" {
		return v.CommentID
	}
	return v.PostID
}
