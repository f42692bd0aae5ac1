package core

import (
	"fmt"
	"strings"
	"time"
)

// ActionKind identifies an action gated by the throttle.
type ActionKind string

const (
	ActionPost    ActionKind = "post"
	ActionComment ActionKind = "comment"
	ActionVote    ActionKind = "vote"
)

// ParseActionKind normalizes a user-supplied action kind.
func ParseActionKind(value string) (ActionKind, error) {
	switch ActionKind(strings.ToLower(strings.TrimSpace(value))) {
	case ActionPost:
		return ActionPost, nil
	case ActionComment:
		return ActionComment, nil
	case ActionVote:
		return ActionVote, nil
	default:
		return "", fmt.Errorf("unsupported action kind: %q", value)
	}
}

// ActionRecord is one recorded action in the throttle history.
type ActionRecord struct {
	At   time.Time
	Kind ActionKind
}

// ActionStats summarizes actions inside the rolling window.
type ActionStats struct {
	PostsLastHour    int `json:"posts_last_hour"`
	CommentsLastHour int `json:"comments_last_hour"`
}

// ActionStatus is the outcome of an attempted action.
type ActionStatus string

const (
	ActionStatusSucceeded ActionStatus = "succeeded"
	ActionStatusFailed    ActionStatus = "failed"
	ActionStatusDenied    ActionStatus = "denied"
	ActionStatusDryRun    ActionStatus = "dry_run"
)

// ActivityEntry is a ledger row describing one attempted action.
type ActivityEntry struct {
	ID        string       `json:"id"`
	Kind      ActionKind   `json:"kind"`
	Target    string       `json:"target,omitempty"`
	Status    ActionStatus `json:"status"`
	RemoteID  string       `json:"remote_id,omitempty"`
	Message   string       `json:"message,omitempty"`
	Attempts  int          `json:"attempts"`
	CreatedAt time.Time    `json:"created_at"`
}
