// ABOUTME: SQLite-backed store for fire-and-forget client and server log events.
// ABOUTME: Supports append, time-windowed queries with category filters, counts by category, and pruning.

package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// timeLayout is fixed-width so stored UTC timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one logged event.
type Entry struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"sessionId"`
	Category  string          `json:"category"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Filter selects entries for Query.
type Filter struct {
	Since    time.Time
	Category string
	Limit    int
}

// Store persists entries in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the log database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			category TEXT NOT NULL,
			event TEXT NOT NULL,
			data TEXT,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS events_created_at ON events(created_at);
		CREATE INDEX IF NOT EXISTS events_category ON events(category, created_at);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts e. A zero CreatedAt is set to now.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var data any
	if len(e.Data) > 0 {
		data = string(e.Data)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, category, event, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, e.Category, e.Event, data, e.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Query returns entries newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	q := `SELECT id, session_id, category, event, data, created_at FROM events WHERE created_at >= ?`
	args := []any{f.Since.UTC().Format(timeLayout)}
	if f.Category != "" {
		q += ` AND category = ?`
		args = append(args, f.Category)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var data sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Category, &e.Event, &data, &created); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if data.Valid {
			e.Data = json.RawMessage(data.String)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Counts returns the number of entries per category since the given time.
func (s *Store) Counts(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM events WHERE created_at >= ? GROUP BY category`,
		since.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[cat] = n
	}
	return counts, rows.Err()
}

// Prune deletes entries older than before and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
