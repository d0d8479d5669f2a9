// Package sqlite provides a SQLite-backed document store. The docs table's
// path PRIMARY KEY turns Create into an INSERT whose unique-constraint
// violation maps to store.ErrAlreadyExists, satisfying the atomic
// create-if-absent contract.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PAIR-code/deliberate-lab-sub006/store"
	_ "modernc.org/sqlite"
)

// Store implements store.Store on SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath. WAL mode keeps concurrent
// readers from blocking the single writer.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS docs (
		path TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, path string, out any) error {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM docs WHERE path = ?`, path).Scan(&data)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query document: %w", err)
	}
	return json.Unmarshal(data, out)
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO docs (path, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		path, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// Create implements store.Store. The primary key makes the insert the
// atomic first-writer-wins operation the engine relies on.
func (s *Store) Create(ctx context.Context, path string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO docs (path, data, updated_at) VALUES (?, ?, ?)`,
		path, data, time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// List implements store.Store. Only direct children match; deeper paths
// contain another separator and are excluded.
func (s *Store) List(ctx context.Context, prefix string, each func(path string, data []byte) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, data FROM docs WHERE path LIKE ? AND path NOT LIKE ? ORDER BY path`,
		prefix+"/%", prefix+"/%/%")
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		var data []byte
		if err := rows.Scan(&path, &data); err != nil {
			return fmt.Errorf("scan document row: %w", err)
		}
		if err := each(path, data); err != nil {
			return err
		}
	}
	return rows.Err()
}

// isUniqueViolation matches the modernc.org/sqlite constraint error text
// (SQLITE_CONSTRAINT_PRIMARYKEY, code 1555).
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "1555")
}
