// Package store keeps the activity ledger in libsql, either in a local file
// or on a remote Turso database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/moltpilot/moltpilot/internal/config"
)

const (
	driverName = "libsql"
	memoryPath = ":memory:"
)

// Store is an open activity ledger.
type Store struct {
	DB *sql.DB
}

// OpenLedger connects to the configured database and brings the activity
// schema up to date. The caller owns the returned store.
func OpenLedger(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if driver := strings.TrimSpace(cfg.Driver); driver != "" && driver != driverName {
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	dsn, err := ledgerDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open activity ledger: %w", err)
	}
	if dsn == memoryPath {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &Store{DB: db}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reach activity ledger: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// ledgerDSN resolves the libsql connection string. A remote URL wins over a
// path; local file paths get their parent directory created.
func ledgerDSN(cfg config.StoreConfig) (string, error) {
	if remote := strings.TrimSpace(cfg.URL); remote != "" {
		return withAuthToken(remote, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return "", errors.New("store path or url is required")
	case path == memoryPath, strings.HasPrefix(path, "libsql:"):
		return path, nil
	case strings.HasPrefix(path, "file:"):
		local := strings.TrimPrefix(strings.TrimPrefix(path, "file:"), "//")
		if idx := strings.IndexByte(local, '?'); idx >= 0 {
			local = local[:idx]
		}
		if err := mkdirFor(local); err != nil {
			return "", err
		}
		return path, nil
	default:
		clean := filepath.Clean(path)
		if err := mkdirFor(clean); err != nil {
			return "", err
		}
		return "file:" + clean, nil
	}
}

// withAuthToken adds the Turso token unless the URL already carries one.
func withAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	query := parsed.Query()
	if query.Get("authToken") != "" {
		return dsn, nil
	}
	query.Set("authToken", token)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func mkdirFor(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
