// Package cradle tracks the lifecycle of containers on a single node:
// registration, a strict state machine (created, running, paused, stopped,
// removed), liveness probes and restart policies. The actual execution is
// delegated to a pluggable runtime; the Docker Engine adapter is the default.
package cradle

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/cradle/internal/config"
	"github.com/loykin/cradle/internal/container"
	"github.com/loykin/cradle/internal/history"
	chsink "github.com/loykin/cradle/internal/history/clickhouse"
	"github.com/loykin/cradle/internal/manager"
	"github.com/loykin/cradle/internal/metrics"
	"github.com/loykin/cradle/internal/probe"
	"github.com/loykin/cradle/internal/restart"
	"github.com/loykin/cradle/internal/runtime"
	dockerrt "github.com/loykin/cradle/internal/runtime/docker"
	fakert "github.com/loykin/cradle/internal/runtime/fake"
	iapi "github.com/loykin/cradle/internal/server"
	"github.com/loykin/cradle/internal/store"
	"github.com/loykin/cradle/internal/store/factory"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = container.Spec

type Status = container.Status

type State = container.State

type RestartPolicy = restart.Policy

type ProbeConfig = probe.Config

type ProbeResult = probe.Result

type Runtime = runtime.Runtime

type HistorySink = history.Sink

type FileConfig = cfg.FileConfig

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

// New builds a Manager on the given runtime.
func New(rt Runtime) *Manager { return &Manager{inner: manager.New(rt)} }

// NewWithDocker builds a Manager connected to the local Docker Engine.
func NewWithDocker() (*Manager, error) {
	rt, err := dockerrt.New()
	if err != nil {
		return nil, err
	}
	return New(rt), nil
}

// NewWithFakeRuntime builds a Manager on the in-memory runtime, useful for
// tests and tracking-only deployments.
func NewWithFakeRuntime() *Manager { return New(fakert.New()) }

func (m *Manager) SetLogger(l *slog.Logger)          { m.inner.SetLogger(l) }
func (m *Manager) Register(s Spec) (Status, error)   { return m.inner.Register(s) }
func (m *Manager) Start(ref string) error            { return m.inner.Start(ref) }
func (m *Manager) Stop(ref string) error             { return m.inner.Stop(ref) }
func (m *Manager) Pause(ref string) error            { return m.inner.Pause(ref) }
func (m *Manager) Unpause(ref string) error          { return m.inner.Unpause(ref) }
func (m *Manager) Remove(ref string) error           { return m.inner.Remove(ref) }
func (m *Manager) Status(ref string) (Status, error) { return m.inner.Status(ref) }
func (m *Manager) List() []Status                    { return m.inner.List() }
func (m *Manager) ApplyConfig(specs []Spec) error    { return m.inner.ApplyConfig(specs) }
func (m *Manager) SetHistorySinks(s ...HistorySink)  { m.inner.SetHistorySinks(s...) }
func (m *Manager) Shutdown()                         { m.inner.Shutdown() }

func (m *Manager) ProbeResults(ref string) ([]ProbeResult, error) {
	return m.inner.ProbeResults(ref)
}

func (m *Manager) History(ctx context.Context, name string, limit int) ([]store.Record, error) {
	return m.inner.History(ctx, name, limit)
}

// SetStoreDSN wires persistence from a DSN (sqlite path or postgres URL).
func (m *Manager) SetStoreDSN(dsn string) error {
	st, err := factory.NewFromDSN(dsn)
	if err != nil {
		return err
	}
	return m.inner.SetStore(st)
}

// SetClickHouseSink adds a ClickHouse history sink.
func (m *Manager) SetClickHouseSink(addr, database, username, password, table string) error {
	sink, err := chsink.New(addr, database, username, password, table)
	if err != nil {
		return err
	}
	m.inner.SetHistorySinks(sink)
	return nil
}

// ParseRestartPolicy parses a docker-style policy string such as
// "on-failure:3".
func ParseRestartPolicy(s string) (RestartPolicy, error) { return restart.Parse(s) }

// LoadConfig reads the TOML configuration file.
func LoadConfig(path string) (*FileConfig, error) { return cfg.Load(path) }

// NewHTTPServer starts an HTTP server exposing the tracker API using the
// given manager.
func NewHTTPServer(addr, basePath string, withMetrics bool, m *Manager) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, withMetrics, m.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
