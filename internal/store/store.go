package store

import (
	"context"
	"database/sql"
	"time"
)

// Record is the persisted view of one container's lifecycle position.
// ContainerID is unique across tracked containers; State is the lifecycle
// state string at OccurredAt. Timestamps should be UTC.
type Record struct {
	ID          int64
	ContainerID string
	Name        string
	Image       string
	State       string
	Health      string
	ExitCode    sql.NullInt64
	Restarts    int
	OccurredAt  time.Time
	UpdatedAt   time.Time
}

// Store persists the last known state per container together with a
// transition log. It backs daemon restarts and the status query surface;
// the in-memory registry remains the source of truth while running.
type Store interface {
	EnsureSchema(ctx context.Context) error
	// RecordTransition appends a row to the transition log and upserts the
	// current state. from is the state being left.
	RecordTransition(ctx context.Context, rec Record, from string) error
	// UpsertStatus refreshes the current-state row without logging.
	UpsertStatus(ctx context.Context, rec Record) error
	// History returns the most recent transitions for the named container,
	// newest first.
	History(ctx context.Context, name string, limit int) ([]Record, error)
	// GetActive lists containers whose last known state is not removed.
	GetActive(ctx context.Context) ([]Record, error)
	// Delete drops the current-state row for a removed container. The
	// transition log is retained for PurgeOlderThan to reap.
	Delete(ctx context.Context, containerID string) error
	PurgeOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}
