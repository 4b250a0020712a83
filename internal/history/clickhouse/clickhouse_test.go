package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/clickhouse"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/cradle/internal/history"
)

// setupClickHouseContainer starts a ClickHouse container for testing.
func setupClickHouseContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	clickHouseContainer, err := clickhouse.Run(ctx,
		"clickhouse/clickhouse-server:24.3.2.23",
		clickhouse.WithUsername("default"),
		clickhouse.WithPassword(""),
		clickhouse.WithDatabase("default"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/ping").
				WithPort("8123/tcp").
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("Skipping test - could not start ClickHouse container (Docker may not be available): %v", err)
	}

	host, err := clickHouseContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := clickHouseContainer.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	addr := host + ":" + port.Port()
	return clickHouseContainer, addr
}

// setupSinkWithTable creates a sink and sets up the test table.
func setupSinkWithTable(ctx context.Context, t *testing.T, addr string, tableName string) *Sink {
	t.Helper()

	sink, err := New(addr, "default", "default", "", tableName)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}

	err = sink.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+tableName+` (
			type String,
			occurred_at DateTime64(6),
			container_id String,
			name String,
			from_state String,
			to_state String,
			exit_code Nullable(Int64),
			restarts Int64,
			detail String
		) ENGINE = MergeTree()
		ORDER BY (occurred_at, container_id)
	`)
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	return sink
}

func TestClickHouseSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	clickHouseContainer, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := clickHouseContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink := setupSinkWithTable(ctx, t, addr, "cradle_events")
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	transitionEvent := history.Event{
		Type:        history.EventTransition,
		OccurredAt:  time.Now().Add(-time.Minute).UTC(),
		ContainerID: "abc123",
		Name:        "web",
		FromState:   "created",
		ToState:     "running",
		Detail:      "started",
	}
	if err := sink.Send(ctx, transitionEvent); err != nil {
		t.Fatalf("Failed to send transition event: %v", err)
	}

	code := 137
	exitEvent := history.Event{
		Type:        history.EventTransition,
		OccurredAt:  time.Now().UTC(),
		ContainerID: "abc123",
		Name:        "web",
		FromState:   "running",
		ToState:     "stopped",
		ExitCode:    &code,
		Restarts:    1,
		Detail:      "exited",
	}
	if err := sink.Send(ctx, exitEvent); err != nil {
		t.Fatalf("Failed to send exit event: %v", err)
	}

	// Give the server a moment to make the rows visible.
	time.Sleep(100 * time.Millisecond)

	rows := sink.conn.QueryRow(ctx, "SELECT COUNT(*) FROM cradle_events WHERE container_id = ?", "abc123")
	var count uint64
	if err := rows.Scan(&count); err != nil {
		t.Fatalf("Failed to query count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 events, got %d", count)
	}
}

func TestClickHouseSink_ConnectionError(t *testing.T) {
	_, err := New("invalid-host:9000", "default", "default", "", "cradle_events")
	if err == nil {
		t.Error("Expected error with invalid connection, got nil")
	}
}

func TestClickHouseSink_Send_ContextCancellation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	clickHouseContainer, addr := setupClickHouseContainer(ctx, t)
	defer func() {
		if err := clickHouseContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate ClickHouse container: %v", err)
		}
	}()

	sink := setupSinkWithTable(ctx, t, addr, "cradle_events")
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()

	event := history.Event{
		Type:        history.EventUnhealthy,
		OccurredAt:  time.Now().UTC(),
		ContainerID: "cancelled",
		Name:        "cancelled",
	}
	if err := sink.Send(cancelCtx, event); err != nil {
		t.Logf("Expected error with cancelled context: %v", err)
	}
}
