package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/courtside/pkg/types"
)

const createKV = `CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

// SQLite stores items in a single kv table.
type SQLite struct {
	db *sqlx.DB
}

// Entry is one stored item with its last write time.
type Entry struct {
	Key       string `db:"key"`
	Value     string `db:"value"`
	UpdatedAt string `db:"updated_at"`
}

// OpenSQLite opens or creates the database at path, creating parent
// directories as needed.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}
	db, err := sqlx.Connect("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createKV); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}
	return &SQLite{db: db}, nil
}

// GetItem implements types.Storage.
func (s *SQLite) GetItem(key string) (string, error) {
	if key == "" {
		return "", types.ErrInvalidKey
	}
	var value string
	err := s.db.Get(&value, `SELECT value FROM kv WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", types.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

// SetItem implements types.Storage.
func (s *SQLite) SetItem(key, value string) error {
	if key == "" {
		return types.ErrInvalidKey
	}
	_, err := s.db.NamedExec(`INSERT INTO kv (key, value, updated_at) VALUES (:key, :value, :updated_at)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		Entry{Key: key, Value: value, UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// RemoveItem implements types.Storage.
func (s *SQLite) RemoveItem(key string) error {
	if key == "" {
		return types.ErrInvalidKey
	}
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

// Keys returns the stored keys with the given prefix, sorted.
func (s *SQLite) Keys(prefix string) ([]string, error) {
	entries, err := s.Entries(prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

// Entries returns the stored items whose key has the given prefix, sorted
// by key.
func (s *SQLite) Entries(prefix string) ([]Entry, error) {
	var entries []Entry
	err := s.db.Select(&entries,
		`SELECT key, value, updated_at FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`,
		len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	return entries, nil
}

// Close releases the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
