package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite. Several SQLiteStores (one per
// window, possibly in different processes) may open the same file.
type SQLiteStore struct {
	db     *sql.DB
	origin string
	path   string
}

// NewSQLiteStore opens or creates a SQLite database at the given path and
// scopes it to origin.
func NewSQLiteStore(dbPath, origin string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, origin: origin, path: dbPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Origin returns the origin this store is scoped to.
func (s *SQLiteStore) Origin() string { return s.origin }

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		origin     TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      TEXT NOT NULL,
		version    INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (origin, key)
	);
	CREATE INDEX IF NOT EXISTS idx_kv_updated ON kv(updated_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE origin = ? AND key = ?`, s.origin, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s/%s: %w", s.origin, key, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	return set(ctx, s.db, s.origin, key, value)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func set(ctx context.Context, db execer, origin, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := db.ExecContext(ctx,
		`INSERT INTO kv (origin, key, value, version, updated_at) VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT(origin, key) DO UPDATE SET value = excluded.value, version = kv.version + 1, updated_at = excluded.updated_at`,
		origin, key, value, now)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE origin = ? AND key = ?`, s.origin, key)
	return err
}

func (s *SQLiteStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var old string
	ok := true
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE origin = ? AND key = ?`, s.origin, key).Scan(&old)
	if errors.Is(err, sql.ErrNoRows) {
		ok = false
	} else if err != nil {
		return err
	}

	value, remove, err := fn(old, ok)
	if errors.Is(err, ErrUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}

	if remove {
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE origin = ? AND key = ?`, s.origin, key); err != nil {
			return err
		}
	} else if err := set(ctx, tx, s.origin, key, value); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT origin, key, value, version, updated_at FROM kv WHERE origin = ? ORDER BY key`, s.origin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var updatedAt string
	if err := row.Scan(&e.Origin, &e.Key, &e.Value, &e.Version, &updatedAt); err != nil {
		return e, err
	}
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return e, nil
}
