package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/cradle/internal/store"
)

// DB implements store.Store for SQLite (modernc.org/sqlite driver, CGO-free).
// Path is a filesystem path to the database file. Use ":memory:" for in-memory.

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS container_state(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			container_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			image TEXT NOT NULL,
			state TEXT NOT NULL,
			health TEXT NOT NULL,
			exit_code INTEGER NULL,
			restarts INTEGER NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_container_state_name ON container_state(name);`,
		`CREATE INDEX IF NOT EXISTS idx_container_state_state ON container_state(state);`,
		`CREATE TABLE IF NOT EXISTS container_transitions(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			container_id TEXT NOT NULL,
			name TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			exit_code INTEGER NULL,
			restarts INTEGER NOT NULL,
			occurred_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_container_transitions_name ON container_transitions(name);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) RecordTransition(ctx context.Context, rec store.Record, from string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO container_transitions(container_id, name, from_state, to_state, exit_code, restarts, occurred_at)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		rec.ContainerID, rec.Name, from, rec.State, rec.ExitCode, rec.Restarts, rec.OccurredAt.UTC())
	if err != nil {
		return err
	}
	rec.UpdatedAt = now
	return s.UpsertStatus(ctx, rec)
}

func (s *DB) UpsertStatus(ctx context.Context, rec store.Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO container_state(container_id, name, image, state, health, exit_code, restarts, occurred_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(container_id) DO UPDATE SET
			name=excluded.name,
			image=excluded.image,
			state=excluded.state,
			health=excluded.health,
			exit_code=excluded.exit_code,
			restarts=excluded.restarts,
			occurred_at=excluded.occurred_at,
			updated_at=excluded.updated_at;`,
		rec.ContainerID, rec.Name, rec.Image, rec.State, rec.Health, rec.ExitCode,
		rec.Restarts, rec.OccurredAt.UTC(), rec.UpdatedAt.UTC())
	return err
}

func (s *DB) History(ctx context.Context, name string, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, container_id, name, to_state, exit_code, restarts, occurred_at
		FROM container_transitions
		WHERE name=?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?;`, name, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]store.Record, 0)
	for rows.Next() {
		var r store.Record
		if err := rows.Scan(&r.ID, &r.ContainerID, &r.Name, &r.State, &r.ExitCode, &r.Restarts, &r.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *DB) GetActive(ctx context.Context) ([]store.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, container_id, name, image, state, health, exit_code, restarts, occurred_at, updated_at
		FROM container_state
		WHERE state != 'removed'
		ORDER BY updated_at DESC;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanState(rows)
}

func (s *DB) Delete(ctx context.Context, containerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM container_state WHERE container_id=?;`, containerID)
	return err
}

func (s *DB) PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM container_transitions WHERE occurred_at < ?;`, olderThan.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanState(rows *sql.Rows) ([]store.Record, error) {
	out := make([]store.Record, 0)
	for rows.Next() {
		var r store.Record
		if err := rows.Scan(&r.ID, &r.ContainerID, &r.Name, &r.Image, &r.State, &r.Health,
			&r.ExitCode, &r.Restarts, &r.OccurredAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
