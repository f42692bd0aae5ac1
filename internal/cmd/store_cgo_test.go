//go:build cgo

package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moltpilot/moltpilot/internal/config"
	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/store"
	"github.com/moltpilot/moltpilot/internal/core/throttle"
)

func TestRestoreThrottleIgnoresVotes(t *testing.T) {
	ctx := context.Background()
	db, err := store.OpenLedger(ctx, config.StoreConfig{Path: filepath.Join(t.TempDir(), "ledger.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	postedAt := time.Now().UTC().Add(-20 * time.Minute)
	_, err = db.RecordActivity(ctx, core.ActivityEntry{Kind: core.ActionPost, Status: core.ActionStatusSucceeded, CreatedAt: postedAt})
	require.NoError(t, err)
	// newer votes than the limit would otherwise push the post out of the read
	for i := range restoreLimit + 1 {
		_, err := db.RecordActivity(ctx, core.ActivityEntry{
			Kind:      core.ActionVote,
			Status:    core.ActionStatusSucceeded,
			CreatedAt: postedAt.Add(time.Duration(i+1) * time.Millisecond),
		})
		require.NoError(t, err)
	}

	thr, err := throttle.New(throttle.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, restoreThrottle(ctx, thr, db))
	require.Equal(t, 1, thr.Stats().PostsLastHour)
}
