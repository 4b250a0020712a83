package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/cradle/internal/container"
	"github.com/loykin/cradle/internal/metrics"
)

// Registry is the single owner of all ContainerRecords. The map is guarded
// by mu; each record is guarded by its entry lock so that exactly one
// transition applies at a time per container while other containers proceed
// concurrently.
//
// Lock hierarchy: mu (map) before entry.mu. Never the reverse.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry // id -> entry
	names   map[string]string // name -> id
}

type entry struct {
	mu  sync.Mutex
	rec container.Record
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		names:   make(map[string]string),
	}
}

// Add creates a record in the Created state and returns its snapshot.
// Names are unique across tracked containers.
func (r *Registry) Add(spec container.Spec) (container.Status, error) {
	if err := spec.Validate(); err != nil {
		return container.Status{}, err
	}
	now := time.Now().UTC()
	rec := container.Record{
		ID:                 uuid.NewString(),
		Spec:               spec,
		DesiredState:       container.StateCreated,
		CurrentState:       container.StateCreated,
		Health:             container.HealthNone,
		CreatedAt:          now,
		LastTransitionTime: now,
	}
	if spec.Probe != nil {
		rec.Health = container.HealthStarting
	}

	r.mu.Lock()
	if _, dup := r.names[spec.Name]; dup {
		r.mu.Unlock()
		return container.Status{}, fmt.Errorf("container name %q already registered", spec.Name)
	}
	e := &entry{rec: rec}
	r.entries[rec.ID] = e
	r.names[spec.Name] = rec.ID
	n := len(r.entries)
	r.mu.Unlock()

	metrics.SetTracked(n)
	setStateGauges(rec.Spec.Name, rec.CurrentState)
	return rec.Snapshot(), nil
}

// Resolve maps an id or a name to the canonical id.
func (r *Registry) Resolve(ref string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.entries[ref]; ok {
		return ref, nil
	}
	if id, ok := r.names[ref]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", container.ErrUnknownContainer, ref)
}

func (r *Registry) get(id string) (*entry, error) {
	r.mu.RLock()
	e := r.entries[id]
	r.mu.RUnlock()
	if e == nil {
		return nil, fmt.Errorf("%w: %s", container.ErrUnknownContainer, id)
	}
	return e, nil
}

// Transition moves the container to the requested state if the transition
// table allows it, applying mutate (may be nil) to the record under the same
// lock. On an illegal request the record is left untouched and a typed
// *InvalidTransitionError is returned.
func (r *Registry) Transition(id string, to container.State, mutate func(*container.Record)) (container.Status, error) {
	e, err := r.get(id)
	if err != nil {
		return container.Status{}, err
	}
	e.mu.Lock()
	from := e.rec.CurrentState
	// A caller may hold the entry from just before a concurrent removal
	// finished; removed containers report unknown, not an illegal transition.
	if from == container.StateRemoved {
		e.mu.Unlock()
		return container.Status{}, fmt.Errorf("%w: %s", container.ErrUnknownContainer, id)
	}
	if !container.CanTransition(from, to) {
		name := e.rec.Spec.Name
		e.mu.Unlock()
		metrics.IncInvalidTransition(name)
		return container.Status{}, &container.InvalidTransitionError{ID: id, From: from, Requested: to}
	}
	e.rec.CurrentState = to
	e.rec.LastTransitionTime = time.Now().UTC()
	if mutate != nil {
		mutate(&e.rec)
	}
	snap := e.rec.Snapshot()
	name := e.rec.Spec.Name
	e.mu.Unlock()

	metrics.RecordStateTransition(name, from.String(), to.String())
	setStateGauges(name, to)

	if to == container.StateRemoved {
		r.mu.Lock()
		delete(r.entries, id)
		delete(r.names, name)
		n := len(r.entries)
		r.mu.Unlock()
		metrics.SetTracked(n)
	}
	return snap, nil
}

// Discard removes a record without going through the transition table.
// Only for rolling back a registration whose runtime setup failed.
func (r *Registry) Discard(id string) {
	r.mu.Lock()
	e := r.entries[id]
	if e != nil {
		delete(r.entries, id)
		delete(r.names, e.rec.Spec.Name)
	}
	n := len(r.entries)
	r.mu.Unlock()
	metrics.SetTracked(n)
}

// Update applies a non-lifecycle mutation (health, desired state) under the
// record lock and returns the resulting snapshot.
func (r *Registry) Update(id string, mutate func(*container.Record)) (container.Status, error) {
	e, err := r.get(id)
	if err != nil {
		return container.Status{}, err
	}
	e.mu.Lock()
	mutate(&e.rec)
	snap := e.rec.Snapshot()
	e.mu.Unlock()
	return snap, nil
}

// View reads the record under its lock without mutating it.
func (r *Registry) View(id string, fn func(container.Record)) error {
	e, err := r.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	fn(e.rec)
	e.mu.Unlock()
	return nil
}

// Get returns the snapshot for one container.
func (r *Registry) Get(id string) (container.Status, error) {
	e, err := r.get(id)
	if err != nil {
		return container.Status{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Snapshot(), nil
}

// List snapshots all tracked containers, sorted by name.
func (r *Registry) List() []container.Status {
	r.mu.RLock()
	es := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		es = append(es, e)
	}
	r.mu.RUnlock()
	out := make([]container.Status, 0, len(es))
	for _, e := range es {
		e.mu.Lock()
		out = append(out, e.rec.Snapshot())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of tracked containers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func setStateGauges(name string, active container.State) {
	for _, s := range []container.State{
		container.StateCreated, container.StateRunning, container.StatePaused,
		container.StateStopped, container.StateRemoved,
	} {
		metrics.SetCurrentState(name, s.String(), s == active)
	}
}
