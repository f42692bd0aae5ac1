// Package plan loads the queue of actions the agent works through. Content
// is written by whoever authors the plan; nothing here generates text.
package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/moltpilot/moltpilot/internal/core"
)

// Action is one planned post, comment, or vote.
type Action struct {
	Kind      core.ActionKind    `yaml:"kind" json:"kind"`
	Submolt   string             `yaml:"submolt,omitempty" json:"submolt,omitempty"`
	Title     string             `yaml:"title,omitempty" json:"title,omitempty"`
	Body      string             `yaml:"body,omitempty" json:"body,omitempty"`
	URL       string             `yaml:"url,omitempty" json:"url,omitempty"`
	PostID    string             `yaml:"post_id,omitempty" json:"post_id,omitempty"`
	ParentID  string             `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`
	CommentID string             `yaml:"comment_id,omitempty" json:"comment_id,omitempty"`
	Direction core.VoteDirection `yaml:"direction,omitempty" json:"direction,omitempty"`
}

// Plan is an ordered list of actions.
type Plan struct {
	Actions []Action `yaml:"actions" json:"actions"`
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- plan path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a plan document. Unknown keys are rejected.
func Parse(data []byte) (*Plan, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	p := &Plan{}
	if err := decoder.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate normalizes kinds and checks every action.
func (p *Plan) Validate() error {
	var errs []error
	for i := range p.Actions {
		if err := p.Actions[i].normalize(); err != nil {
			errs = append(errs, fmt.Errorf("action %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}

func (a *Action) normalize() error {
	kind, err := core.ParseActionKind(string(a.Kind))
	if err != nil {
		return err
	}
	a.Kind = kind
	a.Direction = core.VoteDirection(strings.ToLower(strings.TrimSpace(string(a.Direction))))

	switch kind {
	case core.ActionPost:
		if strings.TrimSpace(a.Submolt) == "" {
			return errors.New("post needs a submolt")
		}
		if strings.TrimSpace(a.Title) == "" {
			return errors.New("post needs a title")
		}
	case core.ActionComment:
		if strings.TrimSpace(a.PostID) == "" {
			return errors.New("comment needs a post_id")
		}
		if strings.TrimSpace(a.Body) == "" {
			return errors.New("comment needs a body")
		}
	case core.ActionVote:
		if strings.TrimSpace(a.PostID) == "" && strings.TrimSpace(a.CommentID) == "" {
			return errors.New("vote needs a post_id or comment_id")
		}
		if a.Direction == "" {
			a.Direction = core.VoteUp
		}
		if a.Direction != core.VoteUp && a.Direction != core.VoteDown {
			return fmt.Errorf("unsupported vote direction: %q", a.Direction)
		}
	}
	return nil
}

// Post returns the payload for a post action.
func (a Action) Post() core.NewPost {
	return core.NewPost{Submolt: a.Submolt, Title: a.Title, Body: a.Body, URL: a.URL}
}

// Comment returns the payload for a comment action.
func (a Action) Comment() core.NewComment {
	return core.NewComment{PostID: a.PostID, Body: a.Body, ParentID: a.ParentID}
}

// Vote returns the payload for a vote action.
func (a Action) Vote() core.NewVote {
	return core.NewVote{PostID: a.PostID, CommentID: a.CommentID, Direction: a.Direction}
}

// Target describes where the action lands, for logs and the ledger.
func (a Action) Target() string {
	switch a.Kind {
	case core.ActionPost:
		return "m/" + a.Submolt
	case core.ActionComment:
		return a.PostID
	default:
		return a.Vote().Target()
	}
}
