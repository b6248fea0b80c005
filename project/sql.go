// ABOUTME: database/sql project store shared by the SQLite and PostgreSQL backends.
// ABOUTME: Open picks PostgreSQL (pgx) for a DATABASE_URL and falls back to a local SQLite file.

package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore is a Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

const schema = `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		code TEXT NOT NULL DEFAULT '',
		prompt_text TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		features TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`

const ownerIndex = `CREATE INDEX IF NOT EXISTS projects_owner ON projects(owner, updated_at)`

// Open returns a PostgreSQL store when databaseURL is set, otherwise a
// SQLite store at sqlitePath.
func Open(ctx context.Context, databaseURL, sqlitePath string) (*SQLStore, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return OpenPostgres(ctx, databaseURL)
	}
	return OpenSQLite(sqlitePath)
}

// OpenSQLite opens or creates a SQLite database at path.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	return newSQLStore(context.Background(), db, dialectSQLite)
}

// OpenPostgres connects through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newSQLStore(ctx, db, dialectPostgres)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	for _, stmt := range []string{schema, ownerIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &SQLStore{db: db, dialect: d, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error { return s.db.Close() }

// bind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) bind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const columns = `id, owner, name, code, prompt_text, category, features, created_at, updated_at`

// List returns the owner's projects, most recently updated first.
func (s *SQLStore) List(ctx context.Context, owner string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		s.bind(`SELECT `+columns+` FROM projects WHERE owner = ? ORDER BY updated_at DESC`), owner)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	projects := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Create inserts p. A missing ID or timestamp is an error; use FromAnswers.
func (s *SQLStore) Create(ctx context.Context, p Project) (Project, error) {
	if p.ID == "" || p.Owner == "" || p.CreatedAt.IsZero() {
		return Project{}, fmt.Errorf("%w: id, owner, and createdAt are required", ErrInvalid)
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	features, err := json.Marshal(nonNil(p.Features))
	if err != nil {
		return Project{}, fmt.Errorf("encode features: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		s.bind(`INSERT INTO projects (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Owner, p.Name, p.Code, p.PromptText, p.Category, string(features),
		p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

// Get returns the project with id or ErrNotFound.
func (s *SQLStore) Get(ctx context.Context, id string) (Project, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+columns+` FROM projects WHERE id = ?`), id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	return p, err
}

// UpdateCode replaces the project's document and bumps UpdatedAt.
func (s *SQLStore) UpdateCode(ctx context.Context, id, code string) error {
	res, err := s.db.ExecContext(ctx,
		s.bind(`UPDATE projects SET code = ?, updated_at = ? WHERE id = ?`), code, s.now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update project code: %w", err)
	}
	return requireRow(res)
}

// Delete removes the project.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM projects WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(sc scanner) (Project, error) {
	var p Project
	var features string
	if err := sc.Scan(&p.ID, &p.Owner, &p.Name, &p.Code, &p.PromptText, &p.Category, &features,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, err
		}
		return Project{}, fmt.Errorf("scan project row: %w", err)
	}
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return Project{}, fmt.Errorf("decode features: %w", err)
	}
	return p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
