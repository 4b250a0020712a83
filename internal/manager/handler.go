package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loykin/cradle/internal/container"
	"github.com/loykin/cradle/internal/history"
	"github.com/loykin/cradle/internal/metrics"
	"github.com/loykin/cradle/internal/probe"
	"github.com/loykin/cradle/internal/registry"
	"github.com/loykin/cradle/internal/runtime"
)

type ctrlType int

const (
	ctrlStart ctrlType = iota
	ctrlStop
	ctrlPause
	ctrlUnpause
	ctrlRemove
	ctrlShutdown
)

type ctrlMsg struct {
	typ       ctrlType
	manual    bool // stop requested by a user, not by policy
	unhealthy bool // stop triggered by the probe threshold
	reply     chan error
}

type handlerDeps struct {
	reg     *registry.Registry
	monitor *probe.Monitor
	logger  *slog.Logger
	record  func(snap container.Status, from container.State, typ history.EventType, detail string)
}

// handler owns one container's control flow. All lifecycle operations go
// through the ctrl channel so exactly one applies at a time; the supervisor
// goroutine it spawns per run reports exits back via the same channel.
type handler struct {
	id     string
	spec   container.Spec
	handle runtime.Handle
	deps   handlerDeps
	ctrl   chan ctrlMsg

	mu         sync.Mutex
	runDone    chan struct{} // closed when the current run's exit is processed
	pendManual bool
	pendUnhlth bool
	closed     bool
}

func newHandler(id string, spec container.Spec, h runtime.Handle, deps handlerDeps) *handler {
	return &handler{
		id:     id,
		spec:   spec,
		handle: h,
		deps:   deps,
		ctrl:   make(chan ctrlMsg, 16),
	}
}

// send queues an operation and blocks until the handler has applied it.
// The closed check and the enqueue happen under the same lock close takes,
// so a message is either answered by the run loop or by the drain in close,
// never left unanswered in the buffer.
func (h *handler) send(msg ctrlMsg) error {
	msg.reply = make(chan error, 1)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", container.ErrUnknownContainer, h.id)
	}
	h.ctrl <- msg
	h.mu.Unlock()
	return <-msg.reply
}

func (h *handler) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.close()
			return
		case msg := <-h.ctrl:
			var err error
			switch msg.typ {
			case ctrlStart:
				err = h.doStart(ctx)
			case ctrlStop:
				err = h.doStop(ctx, msg.manual, msg.unhealthy)
			case ctrlPause:
				err = h.doPause(ctx)
			case ctrlUnpause:
				err = h.doUnpause(ctx)
			case ctrlRemove:
				err = h.doRemove(ctx)
			case ctrlShutdown:
				h.close()
				if msg.reply != nil {
					msg.reply <- nil
				}
				return
			}
			if msg.reply != nil {
				msg.reply <- err
			}
			if msg.typ == ctrlRemove && err == nil {
				h.close()
				return
			}
		}
	}
}

// close marks the handler dead and answers every message still queued in
// ctrl; once closed is set no new message can be enqueued.
func (h *handler) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for {
		select {
		case msg := <-h.ctrl:
			if msg.reply != nil {
				msg.reply <- fmt.Errorf("%w: %s", container.ErrUnknownContainer, h.id)
			}
		default:
			return
		}
	}
}

func (h *handler) doStart(ctx context.Context) error {
	prev, err := h.deps.reg.Get(h.id)
	if err != nil {
		return err
	}
	snap, err := h.deps.reg.Transition(h.id, container.StateRunning, func(rec *container.Record) {
		rec.DesiredState = container.StateRunning
		rec.UserStopped = false
		rec.LastError = ""
		if rec.Spec.Probe != nil {
			rec.Health = container.HealthStarting
		}
	})
	if err != nil {
		return err
	}
	if err := h.handle.Start(ctx); err != nil {
		// The record moved to Running optimistically; put it back.
		_, _ = h.deps.reg.Transition(h.id, container.StateStopped, func(rec *container.Record) {
			rec.LastError = err.Error()
		})
		h.deps.logger.Error("runtime start failed", "error", err)
		return fmt.Errorf("start %s: %w", h.spec.Name, err)
	}

	if h.spec.Probe != nil {
		if err := h.deps.monitor.Watch(h.id, *h.spec.Probe); err != nil {
			h.deps.logger.Warn("probe watch failed", "error", err)
		}
	}

	h.mu.Lock()
	h.pendManual = false
	h.pendUnhlth = false
	h.runDone = make(chan struct{})
	done := h.runDone
	h.mu.Unlock()

	go h.supervise(ctx, done)

	h.deps.logger.Info("container started")
	h.deps.record(snap, container.State(prev.State), history.EventTransition, "started")
	return nil
}

// doStop requests the runtime to stop and waits for the supervisor to
// process the resulting exit. Stopping an already stopped container is a
// no-op; stopping from Created or Paused is rejected.
func (h *handler) doStop(ctx context.Context, manual, unhealthy bool) error {
	snap, err := h.deps.reg.Get(h.id)
	if err != nil {
		return err
	}
	switch container.State(snap.State) {
	case container.StateStopped:
		return nil
	case container.StateRunning:
	default:
		metrics.IncInvalidTransition(snap.Name)
		return &container.InvalidTransitionError{
			ID: h.id, From: container.State(snap.State), Requested: container.StateStopped,
		}
	}

	h.mu.Lock()
	h.pendManual = h.pendManual || manual
	h.pendUnhlth = h.pendUnhlth || unhealthy
	done := h.runDone
	h.mu.Unlock()

	if err := h.handle.Stop(ctx, h.spec.EffectiveStopTimeout()); err != nil {
		return fmt.Errorf("stop %s: %w", h.spec.Name, err)
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *handler) doPause(ctx context.Context) error {
	snap, err := h.deps.reg.Transition(h.id, container.StatePaused, nil)
	if err != nil {
		return err
	}
	if err := h.handle.Pause(ctx); err != nil {
		_, _ = h.deps.reg.Transition(h.id, container.StateRunning, nil)
		return fmt.Errorf("pause %s: %w", h.spec.Name, err)
	}
	// A paused container cannot answer probes; suspend them instead of
	// counting failures against it.
	h.deps.monitor.Unwatch(h.id)
	h.deps.logger.Info("container paused")
	h.deps.record(snap, container.StateRunning, history.EventTransition, "paused")
	return nil
}

func (h *handler) doUnpause(ctx context.Context) error {
	snap, err := h.deps.reg.Transition(h.id, container.StateRunning, func(rec *container.Record) {
		if rec.Spec.Probe != nil {
			rec.Health = container.HealthStarting
		}
	})
	if err != nil {
		return err
	}
	if err := h.handle.Unpause(ctx); err != nil {
		_, _ = h.deps.reg.Transition(h.id, container.StatePaused, nil)
		return fmt.Errorf("unpause %s: %w", h.spec.Name, err)
	}
	if h.spec.Probe != nil {
		if err := h.deps.monitor.Watch(h.id, *h.spec.Probe); err != nil {
			h.deps.logger.Warn("probe watch failed", "error", err)
		}
	}
	h.deps.logger.Info("container unpaused")
	h.deps.record(snap, container.StatePaused, history.EventTransition, "unpaused")
	return nil
}

// doRemove deletes the record and the runtime-side container. Only legal
// from Stopped; the transition table enforces that.
func (h *handler) doRemove(ctx context.Context) error {
	snap, err := h.deps.reg.Transition(h.id, container.StateRemoved, nil)
	if err != nil {
		return err
	}
	h.deps.monitor.Unwatch(h.id)
	if err := h.handle.Remove(ctx); err != nil {
		h.deps.logger.Warn("runtime remove failed", "error", err)
	}
	h.deps.logger.Info("container removed")
	h.deps.record(snap, container.StateStopped, history.EventTransition, "removed")
	metrics.SetUnhealthy(snap.Name, false)
	return nil
}
