package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Row is one document of the sync table.
type Row struct {
	Key       string
	Data      json.RawMessage
	UpdatedAt time.Time
}

// DB wraps the SQLite connection holding the sync table.
type DB struct {
	conn *sql.DB
	path string
}

// OpenDB opens (or creates) the sync database at path in WAL mode.
//
// The caller MUST call Close() when done.
func OpenDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connStr := path
	if !strings.HasPrefix(connStr, "file:") {
		connStr = "file:" + path
	}
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database is closed")
	}
	return db.conn.PingContext(ctx)
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the sync table if it doesn't exist. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS crewflo_sync (
		key TEXT PRIMARY KEY,
		data TEXT,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Get returns the row stored under key, or ErrNotFound.
func (db *DB) Get(ctx context.Context, key string) (*Row, error) {
	var (
		data      sql.NullString
		updatedAt string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT data, updated_at FROM crewflo_sync WHERE key = ?`, key,
	).Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	row := &Row{Key: key}
	if data.Valid {
		row.Data = json.RawMessage(data.String)
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		row.UpdatedAt = t
	}
	return row, nil
}

// Upsert replaces the document stored under key and returns the stored row.
// The data must be valid JSON.
func (db *DB) Upsert(ctx context.Context, key string, data json.RawMessage) (*Row, error) {
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON document for %s", key)
	}

	now := time.Now().UTC()
	query := `
	INSERT INTO crewflo_sync (key, data, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`
	if _, err := db.conn.ExecContext(ctx, query, key, string(data), now.Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("failed to upsert %s: %w", key, err)
	}

	return &Row{Key: key, Data: data, UpdatedAt: now}, nil
}

// Delete removes key. Returns nil if it doesn't exist.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM crewflo_sync WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys lists every key, optionally restricted to those starting with prefix.
func (db *DB) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT key FROM crewflo_sync`
	var args []interface{}
	if prefix != "" {
		query += ` WHERE substr(key, 1, ?) = ?`
		args = append(args, len(prefix), prefix)
	}
	query += ` ORDER BY key ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}
	return keys, nil
}
