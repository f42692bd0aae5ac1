package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moltpilot/moltpilot/internal/core"
)

// DefaultActivityLimit caps ListActivity when no limit is given.
const DefaultActivityLimit = 50

// ActivityQuery filters the ledger. Empty filters match everything.
type ActivityQuery struct {
	Kind core.ActionKind
	// Kinds matches any of the listed kinds, on top of Kind.
	Kinds  []core.ActionKind
	Status core.ActionStatus
	Since  time.Time
	Limit  int
}

func (q ActivityQuery) whereClause() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if kind := strings.TrimSpace(string(q.Kind)); kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, kind)
	}
	if len(q.Kinds) > 0 {
		marks := make([]string, 0, len(q.Kinds))
		for _, kind := range q.Kinds {
			marks = append(marks, "?")
			args = append(args, string(kind))
		}
		conds = append(conds, "kind IN ("+strings.Join(marks, ", ")+")")
	}
	if status := strings.TrimSpace(string(q.Status)); status != "" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// RecordActivity appends entry to the ledger, assigning an ID and timestamp
// when they are missing. The stored entry is returned.
func (s *Store) RecordActivity(ctx context.Context, entry core.ActivityEntry) (core.ActivityEntry, error) {
	if s == nil || s.DB == nil {
		return entry, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(string(entry.Kind)) == "" {
		return entry, errors.New("activity kind is required")
	}
	if strings.TrimSpace(string(entry.Status)) == "" {
		return entry, errors.New("activity status is required")
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO activity (id, kind, target, status, remote_id, message, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, string(entry.Kind), nullIfEmpty(entry.Target), string(entry.Status),
		nullIfEmpty(entry.RemoteID), nullIfEmpty(entry.Message), entry.Attempts, entry.CreatedAt.UnixMilli())
	if err != nil {
		return entry, fmt.Errorf("record activity: %w", err)
	}
	return entry, nil
}

// ListActivity returns ledger entries, newest first.
func (s *Store) ListActivity(ctx context.Context, q ActivityQuery) ([]core.ActivityEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	where, args := q.whereClause()
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, kind, target, status, remote_id, message, attempts, created_at
		FROM activity
		%s
		ORDER BY created_at DESC, id
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []core.ActivityEntry{}
	for rows.Next() {
		var (
			id        string
			kind      string
			target    sql.NullString
			status    string
			remoteID  sql.NullString
			message   sql.NullString
			attempts  int
			createdAt int64
		)
		if err := rows.Scan(&id, &kind, &target, &status, &remoteID, &message, &attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}

		entries = append(entries, core.ActivityEntry{
			ID:        id,
			Kind:      core.ActionKind(kind),
			Target:    target.String,
			Status:    core.ActionStatus(status),
			RemoteID:  remoteID.String,
			Message:   message.String,
			Attempts:  attempts,
			CreatedAt: time.UnixMilli(createdAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	return entries, nil
}

// CountActivity counts ledger entries matching q. Limit is ignored.
func (s *Store) CountActivity(ctx context.Context, q ActivityQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args := q.whereClause()
	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM activity
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count activity: %w", err)
	}
	return count, nil
}

// PruneActivity deletes entries older than before.
func (s *Store) PruneActivity(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM activity WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}
	return affected, nil
}

func nullIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
