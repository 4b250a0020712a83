package container

import (
	"testing"
	"time"

	"github.com/loykin/cradle/internal/probe"
	"github.com/loykin/cradle/internal/restart"
)

func validSpec() Spec {
	return Spec{Name: "web", Image: "nginx:1.27"}
}

func TestSpecValidate(t *testing.T) {
	s := validSpec()
	if err := s.Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}

	s = validSpec()
	s.Name = ""
	if err := s.Validate(); err == nil {
		t.Fatalf("empty name accepted")
	}

	s = validSpec()
	s.Name = "a/b"
	if err := s.Validate(); err == nil {
		t.Fatalf("name with separator accepted")
	}

	s = validSpec()
	s.Image = " "
	if err := s.Validate(); err == nil {
		t.Fatalf("empty image accepted")
	}

	s = validSpec()
	s.Env = []string{"NOEQUALS"}
	if err := s.Validate(); err == nil {
		t.Fatalf("malformed env accepted")
	}

	s = validSpec()
	s.StopTimeout = -time.Second
	if err := s.Validate(); err == nil {
		t.Fatalf("negative stop timeout accepted")
	}

	s = validSpec()
	s.RestartPolicy = restart.Policy{Mode: "sometimes"}
	if err := s.Validate(); err == nil {
		t.Fatalf("unknown policy mode accepted")
	}
}

func TestSpecValidateProbe(t *testing.T) {
	s := validSpec()
	s.Probe = &probe.Config{Type: probe.TypeTCP, Target: "127.0.0.1:80"}
	if err := s.Validate(); err != nil {
		t.Fatalf("valid probe rejected: %v", err)
	}

	// a timeout beyond the interval is a registration error
	s = validSpec()
	s.Probe = &probe.Config{
		Type:     probe.TypeHTTP,
		Target:   "http://127.0.0.1/healthz",
		Interval: time.Second,
		Timeout:  2 * time.Second,
	}
	if err := s.Validate(); err == nil {
		t.Fatalf("probe timeout > interval accepted")
	}

	s = validSpec()
	s.Probe = &probe.Config{Type: "icmp", Target: "host"}
	if err := s.Validate(); err == nil {
		t.Fatalf("unknown probe type accepted")
	}
}

func TestEffectiveStopTimeout(t *testing.T) {
	s := validSpec()
	if got := s.EffectiveStopTimeout(); got != 10*time.Second {
		t.Fatalf("default grace = %v", got)
	}
	s.StopTimeout = 3 * time.Second
	if got := s.EffectiveStopTimeout(); got != 3*time.Second {
		t.Fatalf("explicit grace = %v", got)
	}
}

func TestSnapshotCopiesExitCode(t *testing.T) {
	code := 137
	rec := Record{ID: "id1", Spec: validSpec(), CurrentState: StateStopped, ExitCode: &code}
	snap := rec.Snapshot()
	*rec.ExitCode = 0
	if snap.ExitCode == nil || *snap.ExitCode != 137 {
		t.Fatalf("snapshot must not alias the record's exit code")
	}
}
