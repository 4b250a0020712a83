package manager

import (
	"context"
	"time"

	"github.com/loykin/cradle/internal/container"
	"github.com/loykin/cradle/internal/history"
	"github.com/loykin/cradle/internal/metrics"
	"github.com/loykin/cradle/internal/restart"
)

// restartDelay spaces restarts out just enough to avoid a tight crash loop
// hammering the runtime.
const restartDelay = 100 * time.Millisecond

// supervise waits for the current run to exit, moves the record to Stopped
// and asks the restart engine what to do next. Exactly one supervisor exists
// per run; doStart replaces done for each new run.
func (h *handler) supervise(ctx context.Context, done chan struct{}) {
	defer close(done)

	exit, err := h.handle.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // handler torn down, leave the record as-is
		}
		h.deps.logger.Error("runtime wait failed", "error", err)
		exit.Code = -1
	}

	h.mu.Lock()
	manual := h.pendManual
	unhealthy := h.pendUnhlth
	h.pendManual = false
	h.pendUnhlth = false
	h.mu.Unlock()

	h.deps.monitor.Unwatch(h.id)

	code := exit.Code
	snap, terr := h.deps.reg.Transition(h.id, container.StateStopped, func(rec *container.Record) {
		rec.ExitCode = &code
		rec.UserStopped = manual
		if rec.Spec.Probe != nil {
			rec.Health = container.HealthStarting
		}
	})
	if terr != nil {
		// Exit observed while Paused: the engine killed a frozen container.
		// Thaw the record first, then stop it.
		if _, rerr := h.deps.reg.Transition(h.id, container.StateRunning, nil); rerr != nil {
			h.deps.logger.Warn("exit for container in unexpected state", "error", terr)
			return
		}
		snap, terr = h.deps.reg.Transition(h.id, container.StateStopped, func(rec *container.Record) {
			rec.ExitCode = &code
			rec.UserStopped = manual
		})
		if terr != nil {
			h.deps.logger.Warn("exit for container in unexpected state", "error", terr)
			return
		}
	}

	h.deps.logger.Info("container exited", "exit_code", code, "manual", manual, "unhealthy", unhealthy)
	h.deps.record(snap, container.StateRunning, history.EventTransition, "exited")

	dec := restart.Decide(h.id, h.spec.RestartPolicy, restart.ExitEvent{
		ExitCode:  code,
		Manual:    manual,
		Unhealthy: unhealthy,
	}, snap.Restarts)

	if dec.Err != nil {
		snap, _ = h.deps.reg.Update(h.id, func(rec *container.Record) {
			rec.LastError = dec.Err.Error()
		})
		h.deps.logger.Warn("restart limit reached", "restarts", snap.Restarts, "error", dec.Err)
		h.deps.record(snap, container.StateStopped, history.EventRestart, dec.Err.Error())
		return
	}
	if !dec.Restart {
		return
	}

	select {
	case <-time.After(restartDelay):
	case <-ctx.Done():
		return
	}

	snap, uerr := h.deps.reg.Update(h.id, func(rec *container.Record) {
		rec.Restarts++
	})
	if uerr != nil {
		return // removed in the meantime
	}
	metrics.IncRestart(snap.Name)
	h.deps.logger.Info("restarting container", "reason", dec.Reason, "restarts", snap.Restarts)
	h.deps.record(snap, container.StateStopped, history.EventRestart, dec.Reason)

	// Queue the start through the handler so it serializes with any
	// concurrent user operation. Runs outside this goroutine because the
	// handler may currently be blocked waiting on done.
	go func() {
		if err := h.send(ctrlMsg{typ: ctrlStart}); err != nil {
			h.deps.logger.Error("policy restart failed", "error", err)
		}
	}()
}
