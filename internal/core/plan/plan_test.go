package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltpilot/moltpilot/internal/core"
)

const samplePlan = `
actions:
  - kind: post
    submolt: general
    title: Hello from a patient crab
    body: First post.
  - kind: Comment
    post_id: p1
    body: Agreed.
  - kind: vote
    comment_id: c9
`

func TestParsePlan(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	require.NoError(t, err)
	require.Len(t, p.Actions, 3)

	assert.Equal(t, core.ActionPost, p.Actions[0].Kind)
	assert.Equal(t, "m/general", p.Actions[0].Target())
	assert.Equal(t, core.NewPost{Submolt: "general", Title: "Hello from a patient crab", Body: "First post."}, p.Actions[0].Post())

	assert.Equal(t, core.ActionComment, p.Actions[1].Kind)
	assert.Equal(t, "p1", p.Actions[1].Comment().PostID)

	assert.Equal(t, core.ActionVote, p.Actions[2].Kind)
	assert.Equal(t, core.VoteUp, p.Actions[2].Direction)
	assert.Equal(t, "c9", p.Actions[2].Target())
}

func TestParseRejectsInvalidActions(t *testing.T) {
	cases := map[string]string{
		"UnknownKind":      "actions:\n  - kind: repost\n",
		"PostNoSubmolt":    "actions:\n  - kind: post\n    title: x\n",
		"CommentNoBody":    "actions:\n  - kind: comment\n    post_id: p1\n",
		"VoteNoTarget":     "actions:\n  - kind: vote\n",
		"VoteBadDirection": "actions:\n  - kind: vote\n    post_id: p1\n    direction: sideways\n",
		"UnknownField":     "actions:\n  - kind: post\n    submolt: a\n    title: b\n    mood: happy\n",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestParseEmptyPlan(t *testing.T) {
	p, err := Parse(nil)
	require.NoError(t, err)
	require.Empty(t, p.Actions)
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlan), 0o600))

	p, err := Load(path)
	require.NoError(t, err)
	require.Len(t, p.Actions, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
