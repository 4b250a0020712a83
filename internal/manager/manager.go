package manager

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/cradle/internal/container"
	"github.com/loykin/cradle/internal/history"
	"github.com/loykin/cradle/internal/metrics"
	"github.com/loykin/cradle/internal/probe"
	"github.com/loykin/cradle/internal/registry"
	"github.com/loykin/cradle/internal/runtime"
	"github.com/loykin/cradle/internal/store"
)

// Manager orchestrates the registry (record ownership), the runtime
// (execution), the probe monitor (health) and the restart engine (policy).
// One handler goroutine per container serializes that container's lifecycle
// operations; containers never block each other.
type Manager struct {
	mu        sync.RWMutex
	reg       *registry.Registry
	rt        runtime.Runtime
	monitor   *probe.Monitor
	st        store.Store
	histSinks []history.Sink
	logger    *slog.Logger

	entries map[string]*ctEntry
}

type ctEntry struct {
	h       *handler
	hCancel context.CancelFunc
}

func New(rt runtime.Runtime) *Manager {
	m := &Manager{
		reg:     registry.New(),
		rt:      rt,
		logger:  slog.Default(),
		entries: make(map[string]*ctEntry),
	}
	m.monitor = probe.NewMonitor(m.onHealthChange)
	return m
}

// SetLogger replaces the manager's logger. Call before registering.
func (m *Manager) SetLogger(l *slog.Logger) {
	if l != nil {
		m.logger = l
	}
}

// SetStore configures a persistence store used to record lifecycle
// transitions. It ensures the schema and keeps the instance for writes.
func (m *Manager) SetStore(s store.Store) error {
	m.mu.Lock()
	m.st = s
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.EnsureSchema(context.Background())
}

// SetHistorySinks configures external history sinks (ClickHouse, etc.).
// Passing no sinks clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.mu.Lock()
	m.histSinks = append([]history.Sink(nil), sinks...)
	m.mu.Unlock()
}

// Register validates the spec, creates the record in the Created state and
// prepares the runtime handle. With spec.AutoStart the container is started
// immediately.
func (m *Manager) Register(spec container.Spec) (container.Status, error) {
	snap, err := m.reg.Add(spec)
	if err != nil {
		return container.Status{}, err
	}
	handle, err := m.rt.Create(context.Background(), snap.ID, spec)
	if err != nil {
		// The runtime refused; roll the record back out so the name frees up.
		m.reg.Discard(snap.ID)
		return container.Status{}, fmt.Errorf("runtime create failed: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := newHandler(snap.ID, spec, handle, handlerDeps{
		reg:     m.reg,
		monitor: m.monitor,
		logger:  m.logger.With("container", spec.Name),
		record:  m.recordTransition,
	})
	m.mu.Lock()
	m.entries[snap.ID] = &ctEntry{h: h, hCancel: cancel}
	m.mu.Unlock()
	go h.run(ctx)

	m.logger.Info("container registered", "container", spec.Name, "id", snap.ID, "image", spec.Image,
		"restart_policy", spec.RestartPolicy.String())
	m.recordTransition(snap, "", history.EventTransition, "registered")

	if spec.AutoStart {
		if err := m.Start(snap.ID); err != nil {
			return snap, err
		}
		return m.reg.Get(snap.ID)
	}
	return snap, nil
}

// Start transitions the container to Running via its handler.
func (m *Manager) Start(ref string) error {
	h, err := m.handlerFor(ref)
	if err != nil {
		return err
	}
	return h.send(ctrlMsg{typ: ctrlStart})
}

// Stop requests a user-initiated stop. The call returns once the container
// has actually left the Running state.
func (m *Manager) Stop(ref string) error {
	h, err := m.handlerFor(ref)
	if err != nil {
		return err
	}
	return h.send(ctrlMsg{typ: ctrlStop, manual: true})
}

// Pause suspends a running container.
func (m *Manager) Pause(ref string) error {
	h, err := m.handlerFor(ref)
	if err != nil {
		return err
	}
	return h.send(ctrlMsg{typ: ctrlPause})
}

// Unpause resumes a paused container.
func (m *Manager) Unpause(ref string) error {
	h, err := m.handlerFor(ref)
	if err != nil {
		return err
	}
	return h.send(ctrlMsg{typ: ctrlUnpause})
}

// Remove deletes a stopped container. The record is gone afterwards; any
// further operation on the id reports ErrUnknownContainer.
func (m *Manager) Remove(ref string) error {
	id, err := m.reg.Resolve(ref)
	if err != nil {
		return err
	}
	h, err := m.handlerFor(id)
	if err != nil {
		return err
	}
	if err := h.send(ctrlMsg{typ: ctrlRemove}); err != nil {
		return err
	}
	// Record is gone; tear down the handler goroutine and forget the entry.
	m.mu.Lock()
	e := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()
	if e != nil && e.hCancel != nil {
		e.hCancel()
	}
	if st := m.store(); st != nil {
		_ = st.Delete(context.Background(), id)
	}
	return nil
}

// Status returns the snapshot for one container by id or name.
func (m *Manager) Status(ref string) (container.Status, error) {
	id, err := m.reg.Resolve(ref)
	if err != nil {
		return container.Status{}, err
	}
	return m.reg.Get(id)
}

// List snapshots all tracked containers.
func (m *Manager) List() []container.Status {
	return m.reg.List()
}

// ProbeResults returns the retained probe window for a container.
func (m *Manager) ProbeResults(ref string) ([]probe.Result, error) {
	id, err := m.reg.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return m.monitor.Results(id), nil
}

// History returns recent persisted transitions for a container name.
func (m *Manager) History(ctx context.Context, name string, limit int) ([]store.Record, error) {
	st := m.store()
	if st == nil {
		return nil, fmt.Errorf("no store configured")
	}
	return st.History(ctx, name, limit)
}

// ApplyConfig registers every spec, skipping names that already exist.
func (m *Manager) ApplyConfig(specs []container.Spec) error {
	var firstErr error
	for _, s := range specs {
		if _, err := m.Register(s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Shutdown stops probe tasks and tears down all handlers. Containers are
// left as they are on the runtime side; cradle is a tracker, not an owner
// of last resort.
func (m *Manager) Shutdown() {
	m.monitor.Shutdown()
	m.mu.Lock()
	entries := make([]*ctEntry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.entries = make(map[string]*ctEntry)
	m.mu.Unlock()
	for _, e := range entries {
		_ = e.h.send(ctrlMsg{typ: ctrlShutdown})
		if e.hCancel != nil {
			e.hCancel()
		}
	}
	if st := m.store(); st != nil {
		_ = st.Close()
	}
}

func (m *Manager) handlerFor(ref string) (*handler, error) {
	id, err := m.reg.Resolve(ref)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	e := m.entries[id]
	m.mu.RUnlock()
	if e == nil {
		return nil, fmt.Errorf("%w: %s", container.ErrUnknownContainer, ref)
	}
	return e.h, nil
}

func (m *Manager) store() store.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st
}

func (m *Manager) sinks() []history.Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]history.Sink(nil), m.histSinks...)
}

// onHealthChange runs on a probe goroutine when a container's reported
// health flips. Unhealthy containers are handed to the restart engine by
// stopping them with the unhealthy flag; the exit path decides what happens
// next.
func (m *Manager) onHealthChange(id string, healthy bool, last probe.Result) {
	if healthy {
		snap, err := m.reg.Update(id, func(rec *container.Record) {
			rec.Health = container.HealthHealthy
		})
		if err != nil {
			return
		}
		metrics.SetUnhealthy(snap.Name, false)
		return
	}

	snap, err := m.reg.Update(id, func(rec *container.Record) {
		rec.Health = container.HealthUnhealthy
	})
	if err != nil {
		// Record vanished between probe and callback; result is stale.
		return
	}
	metrics.SetUnhealthy(snap.Name, true)
	m.logger.Warn("container unhealthy", "container", snap.Name,
		"consecutive_failures", last.ConsecutiveFailures)
	m.recordTransition(snap, container.StateRunning, history.EventUnhealthy, "probe threshold crossed")

	h, err := m.handlerFor(id)
	if err != nil {
		return
	}
	// Never block the probe loop on the stop; the handler serializes it.
	go func() {
		if err := h.send(ctrlMsg{typ: ctrlStop, unhealthy: true}); err != nil {
			m.logger.Error("unhealthy stop failed", "container", snap.Name, "error", err)
		}
	}()
}

// recordTransition persists a lifecycle event to the store and fans it out
// to history sinks. Best-effort: persistence failures are logged, never
// propagated into the control path.
func (m *Manager) recordTransition(snap container.Status, from container.State, typ history.EventType, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if st := m.store(); st != nil && snap.State != container.StateRemoved.String() {
		rec := store.Record{
			ContainerID: snap.ID,
			Name:        snap.Name,
			Image:       snap.Image,
			State:       snap.State,
			Health:      snap.Health,
			Restarts:    snap.Restarts,
			OccurredAt:  snap.LastChange,
		}
		if snap.ExitCode != nil {
			rec.ExitCode = sql.NullInt64{Int64: int64(*snap.ExitCode), Valid: true}
		}
		var err error
		if typ == history.EventTransition {
			err = st.RecordTransition(ctx, rec, from.String())
		} else {
			err = st.UpsertStatus(ctx, rec)
		}
		if err != nil {
			m.logger.Warn("store write failed", "container", snap.Name, "error", err)
		}
	}

	sinks := m.sinks()
	if len(sinks) == 0 {
		return
	}
	evt := history.Event{
		Type:        typ,
		OccurredAt:  time.Now().UTC(),
		ContainerID: snap.ID,
		Name:        snap.Name,
		FromState:   from.String(),
		ToState:     snap.State,
		ExitCode:    snap.ExitCode,
		Restarts:    snap.Restarts,
		Detail:      detail,
	}
	for _, s := range sinks {
		_ = s.Send(ctx, evt)
	}
}
