package cradle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestManagerFacadeLifecycle(t *testing.T) {
	m := NewWithFakeRuntime()
	defer m.Shutdown()

	s := Spec{Name: "pf1", Image: "busybox:latest"}
	st, err := m.Register(s)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if st.State != "created" || st.ID == "" {
		t.Fatalf("unexpected status: %+v", st)
	}

	if err := m.Start("pf1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	st, err = m.Status("pf1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != "running" {
		t.Fatalf("expected running, got %q", st.State)
	}

	if err := m.Pause("pf1"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := m.Unpause("pf1"); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	if err := m.Stop("pf1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := m.Remove("pf1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := m.Status("pf1"); err == nil {
		t.Fatalf("expected error after remove")
	}
}

func TestManagerFacadeList(t *testing.T) {
	m := NewWithFakeRuntime()
	defer m.Shutdown()

	for _, name := range []string{"a", "b"} {
		if _, err := m.Register(Spec{Name: name, Image: "busybox:latest"}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if got := m.List(); len(got) != 2 {
		t.Fatalf("expected 2 tracked containers, got %d", len(got))
	}
}

func TestParseRestartPolicyHelper(t *testing.T) {
	p, err := ParseRestartPolicy("on-failure:3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.MaxRetries != 3 {
		t.Fatalf("unexpected policy: %+v", p)
	}
	if _, err := ParseRestartPolicy("sometimes"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestConfigHelpers(t *testing.T) {
	dir := t.TempDir()
	cfg := `
runtime = "fake"

[[containers]]
name = "c1"
image = "nginx:alpine"
restart_policy = "always"
stop_timeout = "2s"
`
	p := filepath.Join(dir, "cradle.toml")
	if err := os.WriteFile(p, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	config, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	specs, err := config.Specs()
	if err != nil {
		t.Fatalf("Specs: %v", err)
	}
	if len(specs) != 1 || specs[0].Name != "c1" || specs[0].StopTimeout != 2*time.Second {
		t.Fatalf("unexpected specs: %+v", specs)
	}

	m := NewWithFakeRuntime()
	defer m.Shutdown()
	if err := m.ApplyConfig(specs); err != nil {
		t.Fatalf("ApplyConfig: %v", err)
	}
	if _, err := m.Status("c1"); err != nil {
		t.Fatalf("status after apply: %v", err)
	}
}

func TestMetricsHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("RegisterMetrics: %v", err)
	}
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("RegisterMetricsDefault: %v", err)
	}
	// Repeated registration is a no-op.
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("RegisterMetricsDefault twice: %v", err)
	}
}

func TestSetStoreDSN(t *testing.T) {
	m := NewWithFakeRuntime()
	defer m.Shutdown()

	dbPath := filepath.Join(t.TempDir(), "cradle.db")
	if err := m.SetStoreDSN(dbPath); err != nil {
		t.Fatalf("SetStoreDSN: %v", err)
	}
	if err := m.SetStoreDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}
