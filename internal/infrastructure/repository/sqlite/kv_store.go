// Package sqlite stores archive state in an embedded SQLite database for
// single-user deployments without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type KVStore struct {
	db *sql.DB
}

func NewKVStore(db *sql.DB) *KVStore {
	return &KVStore{db: db}
}

// OpenDB opens (and creates) the database file. WAL mode lets the read-only
// MCP process read while the API writes.
func OpenDB(path string) (*sql.DB, error) {
	if path == "" {
		path = "./data/archive.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *KVStore) EnsureSchema(ctx context.Context) error {
	const query = `
CREATE TABLE IF NOT EXISTS archive_state (
	namespace TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	return nil
}

func (s *KVStore) Get(ctx context.Context, namespace string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM archive_state WHERE namespace = ?`, namespace).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("select %s: %w", namespace, err)
	}
	return value, true, nil
}

func (s *KVStore) Put(ctx context.Context, namespace string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO archive_state (namespace, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(namespace) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		namespace, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", namespace, err)
	}
	return nil
}
