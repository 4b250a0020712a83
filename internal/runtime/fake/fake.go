// Package fake is an in-memory runtime used by tests and by tracking-only
// deployments where no container engine is attached. Exits are injected by
// the caller via SignalExit.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/cradle/internal/container"
	"github.com/loykin/cradle/internal/runtime"
)

type Runtime struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

func New() *Runtime {
	return &Runtime{handles: make(map[string]*Handle)}
}

func (r *Runtime) Create(_ context.Context, id string, spec container.Spec) (runtime.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.handles[id]; dup {
		return nil, fmt.Errorf("fake runtime: handle %s already exists", id)
	}
	h := &Handle{id: id, spec: spec}
	r.handles[id] = h
	return h, nil
}

func (r *Runtime) Close() error { return nil }

// SignalExit simulates the container identified by id exiting with code.
// It is a no-op error if the container is unknown or not running.
func (r *Runtime) SignalExit(id string, code int) error {
	r.mu.Lock()
	h := r.handles[id]
	r.mu.Unlock()
	if h == nil {
		return fmt.Errorf("fake runtime: unknown handle %s", id)
	}
	return h.exit(code)
}

// Handle simulates one container. A run is modeled as a channel that
// delivers exactly one exit code.
type Handle struct {
	id   string
	spec container.Spec

	mu      sync.Mutex
	running bool
	paused  bool
	removed bool
	exitCh  chan runtime.Exit
}

func (h *Handle) Start(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.removed {
		return fmt.Errorf("fake runtime: %s is removed", h.id)
	}
	if h.running {
		return fmt.Errorf("fake runtime: %s already running", h.id)
	}
	h.running = true
	h.paused = false
	h.exitCh = make(chan runtime.Exit, 1)
	return nil
}

func (h *Handle) Stop(_ context.Context, _ time.Duration) error {
	// A stop is an exit with code 0 from the runtime's perspective.
	return h.exit(0)
}

func (h *Handle) Pause(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return fmt.Errorf("fake runtime: %s not running", h.id)
	}
	h.paused = true
	return nil
}

func (h *Handle) Unpause(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.paused {
		return fmt.Errorf("fake runtime: %s not paused", h.id)
	}
	h.paused = false
	return nil
}

func (h *Handle) Remove(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return fmt.Errorf("fake runtime: %s still running", h.id)
	}
	h.removed = true
	return nil
}

func (h *Handle) Wait(ctx context.Context) (runtime.Exit, error) {
	h.mu.Lock()
	ch := h.exitCh
	h.mu.Unlock()
	if ch == nil {
		return runtime.Exit{}, fmt.Errorf("fake runtime: %s has no active run", h.id)
	}
	select {
	case <-ctx.Done():
		return runtime.Exit{}, ctx.Err()
	case e := <-ch:
		return e, nil
	}
}

// Running reports whether the simulated container is currently up.
func (h *Handle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Handle) exit(code int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return fmt.Errorf("fake runtime: %s not running", h.id)
	}
	h.running = false
	h.paused = false
	h.exitCh <- runtime.Exit{Code: code, At: time.Now()}
	return nil
}
