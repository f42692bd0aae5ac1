package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/moltpilot/moltpilot/internal/config"
	"github.com/moltpilot/moltpilot/internal/core"
	"github.com/moltpilot/moltpilot/internal/core/store"
	"github.com/moltpilot/moltpilot/internal/core/throttle"
	"github.com/moltpilot/moltpilot/internal/observability"
)

// restoreLimit bounds how many ledger rows are read back to seed the throttle.
const restoreLimit = 500

// openLedger opens the activity ledger when it is enabled. A nil store with
// a nil error means the ledger is switched off.
func openLedger(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if !cfg.Agent.Ledger {
		return nil, nil
	}
	return store.OpenLedger(ctx, cfg.Store)
}

// restoreThrottle seeds t with the posts and comments the ledger recorded as
// succeeded inside the last window, so separate invocations share one budget.
func restoreThrottle(ctx context.Context, t *throttle.Throttle, db *store.Store) error {
	if t == nil || db == nil {
		return nil
	}

	// votes are not throttled and would otherwise eat into the row limit
	entries, err := db.ListActivity(ctx, store.ActivityQuery{
		Kinds:  []core.ActionKind{core.ActionPost, core.ActionComment},
		Status: core.ActionStatusSucceeded,
		Since:  time.Now().UTC().Add(-throttle.Window),
		Limit:  restoreLimit,
	})
	if err != nil {
		return fmt.Errorf("read activity ledger: %w", err)
	}

	records := make([]core.ActionRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, core.ActionRecord{At: entry.CreatedAt, Kind: entry.Kind})
	}
	t.Restore(records)

	stats := t.Stats()
	observability.CoreLogger().Debug("Throttle restored from activity ledger",
		zap.Int("rows", len(entries)),
		zap.Int("posts_last_hour", stats.PostsLastHour),
		zap.Int("comments_last_hour", stats.CommentsLastHour))
	return nil
}
