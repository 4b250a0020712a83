package probe

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"
)

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := HTTPProber{URL: srv.URL + "/healthz", Timeout: time.Second}
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("healthy endpoint: %v", err)
	}
	p = HTTPProber{URL: srv.URL + "/bad", Timeout: time.Second}
	if err := p.Check(context.Background()); err == nil {
		t.Fatalf("5xx response accepted")
	}
}

func TestHTTPProberTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := HTTPProber{URL: srv.URL, Timeout: 50 * time.Millisecond}
	err := p.Check(context.Background())
	if !errors.Is(err, ErrProbeTimeout) {
		t.Fatalf("expected ErrProbeTimeout, got %v", err)
	}
}

func TestTCPProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	p := TCPProber{Address: ln.Addr().String(), Timeout: time.Second}
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("open port: %v", err)
	}
}

func TestExecProber(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell commands")
	}
	p := ExecProber{Command: "true", Timeout: time.Second}
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("true: %v", err)
	}
	p = ExecProber{Command: "false", Timeout: time.Second}
	if err := p.Check(context.Background()); err == nil {
		t.Fatalf("false exited 1 but probe passed")
	}
	// shell metacharacters route through /bin/sh
	p = ExecProber{Command: "test 1 -eq 1 && true", Timeout: time.Second}
	if err := p.Check(context.Background()); err != nil {
		t.Fatalf("shell command: %v", err)
	}
}

func TestExecProberTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix shell commands")
	}
	p := ExecProber{Command: "sleep 5", Timeout: 50 * time.Millisecond}
	err := p.Check(context.Background())
	if !errors.Is(err, ErrProbeTimeout) {
		t.Fatalf("expected ErrProbeTimeout, got %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{Type: TypeTCP, Target: "127.0.0.1:80"}
	c.Normalize()
	if c.Interval != DefaultInterval || c.Timeout != DefaultTimeout ||
		c.Retries != DefaultRetries || c.WindowSize != DefaultWindowSize {
		t.Fatalf("defaults not applied: %+v", c)
	}
}
