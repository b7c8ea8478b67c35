package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

const (
	storeDirMode  os.FileMode = 0750
	storeFileMode os.FileMode = 0600

	// openTimeout bounds the ping that proves the store file is usable.
	openTimeout = 5 * time.Second
)

// DB is the relay's session store handle.
//
// Session rows are written from connection goroutines while the status
// API reads them, so the pool is pinned to one connection and SQLite
// serialises every statement on it.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the SQLite file at cfg.Path and checks
// that it answers a query before returning.
//
// The parent directory is created with mode 0750 and the file is
// restricted to 0600 once it exists.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), storeDirMode); err != nil {
		return nil, fmt.Errorf("creating session store directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening session store %s: %w", cfg.Path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	db := &DB{DB: sqlDB, path: cfg.Path}

	pingCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	if err := db.HealthCheck(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // already failing
		return nil, err
	}

	if err := os.Chmod(cfg.Path, storeFileMode); err != nil && !os.IsNotExist(err) {
		sqlDB.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("restricting session store permissions: %w", err)
	}

	return db, nil
}

// dsn builds the go-sqlite3 connection string for cfg.
// See https://github.com/mattn/go-sqlite3#connection-string.
func dsn(cfg config.DatabaseConfig) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout*int(time.Second/time.Millisecond)))
	q.Set("_foreign_keys", "on")
	if cfg.WALMode {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// HealthCheck runs a trivial query against the session store.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("session store %s unavailable: %w", db.path, err)
	}
	return nil
}

// Close releases the session store. It is safe on a nil DB.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing session store: %w", err)
	}
	return nil
}
