package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/moltpilot/moltpilot/internal/config"
	"github.com/moltpilot/moltpilot/internal/core"
)

func TestLedgerDSN(t *testing.T) {
	t.Run("URLUsesRawValue", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io",
			AuthToken: "token123",
		}

		dsn, err := ledgerDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=token123", dsn)
	})

	t.Run("URLWithExistingToken", func(t *testing.T) {
		cfg := config.StoreConfig{
			URL:       "libsql://example.turso.io?authToken=keep",
			AuthToken: "token123",
		}

		dsn, err := ledgerDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "libsql://example.turso.io?authToken=keep", dsn)
	})

	t.Run("PathWithFilePrefix", func(t *testing.T) {
		cfg := config.StoreConfig{Path: "file:./moltpilot.db"}

		dsn, err := ledgerDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "file:./moltpilot.db", dsn)
	})

	t.Run("PlainPathCreatesDirectory", func(t *testing.T) {
		dir := t.TempDir()
		cfg := config.StoreConfig{Path: dir + "/nested/moltpilot.db"}

		dsn, err := ledgerDSN(cfg)
		require.NoError(t, err)
		require.Equal(t, "file:"+dir+"/nested/moltpilot.db", dsn)
		require.DirExists(t, dir+"/nested")
	})

	t.Run("PathMissing", func(t *testing.T) {
		_, err := ledgerDSN(config.StoreConfig{})
		require.Error(t, err)
	})

	t.Run("FilePrefixCreatesDirectory", func(t *testing.T) {
		dir := t.TempDir()
		dsn, err := ledgerDSN(config.StoreConfig{Path: "file:" + dir + "/deep/ledger.db?mode=rwc"})
		require.NoError(t, err)
		require.Equal(t, "file:"+dir+"/deep/ledger.db?mode=rwc", dsn)
		require.DirExists(t, dir+"/deep")
	})

	t.Run("MemoryPath", func(t *testing.T) {
		dsn, err := ledgerDSN(config.StoreConfig{Path: ":memory:"})
		require.NoError(t, err)
		require.Equal(t, ":memory:", dsn)
	})
}

func TestActivityQueryWhereClause(t *testing.T) {
	where, args := ActivityQuery{}.whereClause()
	require.Empty(t, where)
	require.Nil(t, args)

	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	where, args = ActivityQuery{Kind: core.ActionPost, Status: core.ActionStatusFailed, Since: since}.whereClause()
	require.Equal(t, "WHERE kind = ? AND status = ? AND created_at >= ?", where)
	require.Equal(t, []any{"post", "failed", since.UnixMilli()}, args)

	where, args = ActivityQuery{Kinds: []core.ActionKind{core.ActionPost, core.ActionComment}}.whereClause()
	require.Equal(t, "WHERE kind IN (?, ?)", where)
	require.Equal(t, []any{"post", "comment"}, args)
}

func TestNilStoreReturnsErrors(t *testing.T) {
	var s *Store
	_, err := s.RecordActivity(t.Context(), core.ActivityEntry{Kind: core.ActionPost, Status: core.ActionStatusSucceeded})
	require.Error(t, err)
	_, err = s.ListActivity(t.Context(), ActivityQuery{})
	require.Error(t, err)
	require.NoError(t, s.Close())
}

func TestOpenLedgerRejectsUnknownDriver(t *testing.T) {
	_, err := OpenLedger(t.Context(), config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	require.ErrorContains(t, err, "unsupported store driver")
}
