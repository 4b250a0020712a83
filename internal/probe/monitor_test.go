package probe

import (
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// collector records health change callbacks for assertions.
type collector struct {
	mu     sync.Mutex
	events []string // "healthy" / "unhealthy"
}

func (c *collector) fn(_ string, healthy bool, _ Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if healthy {
		c.events = append(c.events, "healthy")
	} else {
		c.events = append(c.events, "unhealthy")
	}
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	copy(out, c.events)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func tcpCfg(target string) Config {
	return Config{
		Type:     TypeTCP,
		Target:   target,
		Interval: 20 * time.Millisecond,
		Timeout:  10 * time.Millisecond,
		Retries:  3,
	}
}

// unusedAddr reserves a port and closes it so probes against it fail fast.
func unusedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestMonitorReportsHealthyThenUnhealthy(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	c := &collector{}
	m := NewMonitor(c.fn)
	defer m.Shutdown()

	if err := m.Watch("c1", tcpCfg(ln.Addr().String())); err != nil {
		t.Fatalf("watch: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		ev := c.snapshot()
		return len(ev) >= 1 && ev[0] == "healthy"
	})

	// kill the listener; after Retries consecutive failures the monitor must
	// report unhealthy exactly once
	_ = ln.Close()
	waitFor(t, 3*time.Second, func() bool {
		ev := c.snapshot()
		return len(ev) >= 2 && ev[len(ev)-1] == "unhealthy"
	})
	time.Sleep(150 * time.Millisecond) // a few more failing ticks
	unhealthyCount := 0
	for _, e := range c.snapshot() {
		if e == "unhealthy" {
			unhealthyCount++
		}
	}
	if unhealthyCount != 1 {
		t.Fatalf("unhealthy reported %d times, want once", unhealthyCount)
	}
}

func TestMonitorStartPeriodGrace(t *testing.T) {
	c := &collector{}
	m := NewMonitor(c.fn)
	defer m.Shutdown()

	cfg := tcpCfg(unusedAddr(t))
	cfg.StartPeriod = time.Hour // every failure lands inside the grace window
	if err := m.Watch("c1", cfg); err != nil {
		t.Fatalf("watch: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return len(m.Results("c1")) >= 5
	})
	if ev := c.snapshot(); len(ev) != 0 {
		t.Fatalf("grace failures must not change health: %v", ev)
	}
	for _, r := range m.Results("c1") {
		if r.Success {
			t.Fatalf("probe against closed port succeeded")
		}
		if r.ConsecutiveFailures != 0 {
			t.Fatalf("grace failures counted: %+v", r)
		}
	}
}

func TestMonitorRecovery(t *testing.T) {
	// an HTTP target that flips from failing to healthy
	var mu sync.Mutex
	healthy := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		ok := healthy
		mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &collector{}
	m := NewMonitor(c.fn)
	defer m.Shutdown()

	cfg := Config{
		Type:     TypeHTTP,
		Target:   srv.URL,
		Interval: 20 * time.Millisecond,
		Timeout:  10 * time.Millisecond,
		Retries:  2,
	}
	if err := m.Watch("c1", cfg); err != nil {
		t.Fatalf("watch: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		ev := c.snapshot()
		return len(ev) >= 1 && ev[0] == "unhealthy"
	})

	mu.Lock()
	healthy = true
	mu.Unlock()
	waitFor(t, 2*time.Second, func() bool {
		ev := c.snapshot()
		return ev[len(ev)-1] == "healthy"
	})
}

func TestMonitorWindowBound(t *testing.T) {
	m := NewMonitor(nil)
	defer m.Shutdown()

	cfg := tcpCfg(unusedAddr(t))
	cfg.WindowSize = 4
	if err := m.Watch("c1", cfg); err != nil {
		t.Fatalf("watch: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		return len(m.Results("c1")) == 4
	})
	time.Sleep(100 * time.Millisecond)
	if n := len(m.Results("c1")); n != 4 {
		t.Fatalf("window grew past its bound: %d", n)
	}
}

func TestMonitorUnwatchStopsTask(t *testing.T) {
	m := NewMonitor(nil)
	defer m.Shutdown()

	if err := m.Watch("c1", tcpCfg(unusedAddr(t))); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if !m.Watching("c1") {
		t.Fatalf("not watching after Watch")
	}
	m.Unwatch("c1")
	if m.Watching("c1") {
		t.Fatalf("still watching after Unwatch")
	}
	if res := m.Results("c1"); res != nil {
		t.Fatalf("results retained after Unwatch: %v", res)
	}
}

func TestMonitorDuplicateWatch(t *testing.T) {
	m := NewMonitor(nil)
	defer m.Shutdown()

	if err := m.Watch("c1", tcpCfg(unusedAddr(t))); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := m.Watch("c1", tcpCfg(unusedAddr(t))); err == nil {
		t.Fatalf("duplicate watch accepted")
	}
}
