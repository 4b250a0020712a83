package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/cradle/internal/metrics"
)

// Result is one probe outcome for a container. ConsecutiveFailures counts
// post-grace failures only; failures inside the start-period are recorded
// with a zero count.
type Result struct {
	Timestamp           time.Time `json:"timestamp"`
	Success             bool      `json:"success"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Err                 error     `json:"-"`
}

// HealthFunc is invoked when a container's reported health changes: once
// when it first succeeds (healthy=true), once when consecutive failures
// cross the retry threshold (healthy=false), and again on recovery. It runs
// on the probe goroutine and must not block for long.
type HealthFunc func(id string, healthy bool, last Result)

// Monitor runs one periodic probe task per watched container.
// Tasks never share blocking work: a slow probe for one container cannot
// delay another container's schedule.
type Monitor struct {
	mu       sync.Mutex
	tasks    map[string]*task
	onChange HealthFunc
}

type task struct {
	id      string
	cfg     Config
	prober  Prober
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time

	mu       sync.Mutex
	window   []Result
	failures int
	reported string // "", "healthy", "unhealthy"
}

func NewMonitor(onChange HealthFunc) *Monitor {
	return &Monitor{tasks: make(map[string]*task), onChange: onChange}
}

// Watch registers a probe task for the container and starts its loop.
// The config must already have passed Validate.
func (m *Monitor) Watch(id string, cfg Config) error {
	cfg.Normalize()
	p, err := cfg.Build()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{
		id:      id,
		cfg:     cfg,
		prober:  p,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	m.mu.Lock()
	if _, exists := m.tasks[id]; exists {
		m.mu.Unlock()
		cancel()
		return fmt.Errorf("container %s is already being probed", id)
	}
	m.tasks[id] = t
	m.mu.Unlock()
	go m.run(ctx, t)
	return nil
}

// Unwatch cancels the container's probe task immediately. An in-flight probe
// is abandoned; its result is discarded rather than awaited.
func (m *Monitor) Unwatch(id string) {
	m.mu.Lock()
	t := m.tasks[id]
	delete(m.tasks, id)
	m.mu.Unlock()
	if t != nil {
		t.cancel()
	}
}

// Results returns the retained result window for a container, oldest first.
func (m *Monitor) Results(id string) []Result {
	m.mu.Lock()
	t := m.tasks[id]
	m.mu.Unlock()
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Result, len(t.window))
	copy(out, t.window)
	return out
}

// Watching reports whether the container currently has a probe task.
func (m *Monitor) Watching(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[id]
	return ok
}

// Shutdown cancels all probe tasks and waits for their loops to return.
func (m *Monitor) Shutdown() {
	m.mu.Lock()
	tasks := make([]*task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.tasks = make(map[string]*task)
	m.mu.Unlock()
	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

func (m *Monitor) run(ctx context.Context, t *task) {
	defer close(t.done)
	ticker := time.NewTicker(t.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := t.prober.Check(ctx)
		if ctx.Err() != nil {
			// Task was cancelled while the probe was in flight; discard.
			return
		}
		m.record(t, err)
	}
}

func (m *Monitor) record(t *task, err error) {
	now := time.Now()
	grace := now.Sub(t.started) < t.cfg.StartPeriod

	t.mu.Lock()
	res := Result{Timestamp: now, Success: err == nil, Err: err}
	var report string
	switch {
	case err == nil:
		t.failures = 0
		if t.reported != "healthy" {
			t.reported = "healthy"
			report = "healthy"
		}
	case grace:
		// Start-period failures are observed but never counted.
	default:
		t.failures++
		if t.failures >= t.cfg.Retries && t.reported != "unhealthy" {
			t.reported = "unhealthy"
			report = "unhealthy"
		}
	}
	res.ConsecutiveFailures = t.failures
	t.window = append(t.window, res)
	if n := t.cfg.WindowSize; len(t.window) > n {
		t.window = t.window[len(t.window)-n:]
	}
	t.mu.Unlock()

	if err != nil {
		metrics.IncProbeFailure(t.id)
	}
	if report != "" && m.onChange != nil {
		m.onChange(t.id, report == "healthy", res)
	}
}
