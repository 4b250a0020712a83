package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/cradle/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS container_state(
			id BIGSERIAL PRIMARY KEY,
			container_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			image TEXT NOT NULL,
			state TEXT NOT NULL,
			health TEXT NOT NULL,
			exit_code INTEGER NULL,
			restarts INTEGER NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_container_state_name ON container_state(name);`,
		`CREATE INDEX IF NOT EXISTS idx_container_state_state ON container_state(state);`,
		`CREATE TABLE IF NOT EXISTS container_transitions(
			id BIGSERIAL PRIMARY KEY,
			container_id TEXT NOT NULL,
			name TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			exit_code INTEGER NULL,
			restarts INTEGER NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_container_transitions_name ON container_transitions(name);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) RecordTransition(ctx context.Context, rec store.Record, from string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO container_transitions(container_id, name, from_state, to_state, exit_code, restarts, occurred_at)
		VALUES($1,$2,$3,$4,$5,$6,$7);`,
		rec.ContainerID, rec.Name, from, rec.State, rec.ExitCode, rec.Restarts, rec.OccurredAt.UTC())
	if err != nil {
		return err
	}
	rec.UpdatedAt = time.Now().UTC()
	return p.UpsertStatus(ctx, rec)
}

func (p *DB) UpsertStatus(ctx context.Context, rec store.Record) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO container_state(container_id, name, image, state, health, exit_code, restarts, occurred_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT(container_id) DO UPDATE SET
			name=EXCLUDED.name,
			image=EXCLUDED.image,
			state=EXCLUDED.state,
			health=EXCLUDED.health,
			exit_code=EXCLUDED.exit_code,
			restarts=EXCLUDED.restarts,
			occurred_at=EXCLUDED.occurred_at,
			updated_at=EXCLUDED.updated_at;`,
		rec.ContainerID, rec.Name, rec.Image, rec.State, rec.Health, rec.ExitCode,
		rec.Restarts, rec.OccurredAt.UTC(), rec.UpdatedAt.UTC())
	return err
}

func (p *DB) History(ctx context.Context, name string, limit int) ([]store.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, container_id, name, to_state, exit_code, restarts, occurred_at
		FROM container_transitions
		WHERE name=$1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2;`, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
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

func (p *DB) GetActive(ctx context.Context) ([]store.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, container_id, name, image, state, health, exit_code, restarts, occurred_at, updated_at
		FROM container_state
		WHERE state != 'removed'
		ORDER BY updated_at DESC;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanState(rows)
}

func (p *DB) Delete(ctx context.Context, containerID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM container_state WHERE container_id=$1;`, containerID)
	return err
}

func (p *DB) PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM container_transitions WHERE occurred_at < $1;`, olderThan.UTC())
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
