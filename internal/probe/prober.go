package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// ErrProbeTimeout marks a probe that did not complete within its timeout.
// It is recovered locally as a failed result, never surfaced as fatal.
var ErrProbeTimeout = errors.New("probe timed out")

// Prober is a strategy that determines whether a container is healthy.
// Implementations must be safe for concurrent use and must honor ctx.
type Prober interface {
	// Check returns nil when the container is healthy.
	Check(ctx context.Context) error
	// Describe returns a human-readable description of the probe.
	Describe() string
}

// HTTPProber succeeds on any 2xx/3xx response from URL.
type HTTPProber struct {
	URL     string
	Timeout time.Duration
}

func (p HTTPProber) Check(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrProbeTimeout, p.URL)
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("http probe status %d", resp.StatusCode)
	}
	return nil
}

func (p HTTPProber) Describe() string { return "http:" + p.URL }

// TCPProber succeeds when a TCP connection to Address can be established.
type TCPProber struct {
	Address string
	Timeout time.Duration
}

func (p TCPProber) Check(ctx context.Context) error {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return fmt.Errorf("%w: %s", ErrProbeTimeout, p.Address)
		}
		return err
	}
	return conn.Close()
}

func (p TCPProber) Describe() string { return "tcp:" + p.Address }

// ExecProber runs a command that should exit 0 when the container is healthy.
type ExecProber struct {
	Command string
	Timeout time.Duration
}

func (p ExecProber) Check(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	cmd := buildShellAwareCommand(cctx, p.Command)
	cmd.Stdout = nil
	cmd.Stderr = nil
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrProbeTimeout, p.Command)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return fmt.Errorf("exec probe exit code %d", ee.ExitCode())
	}
	return err
}

func (p ExecProber) Describe() string { return "exec:" + p.Command }

// buildShellAwareCommand constructs an *exec.Cmd for an exec probe.
// Avoids invoking a shell unless obvious shell metacharacters are present
// (G204 mitigation).
func buildShellAwareCommand(ctx context.Context, cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		return exec.CommandContext(ctx, "/bin/true")
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.CommandContext(ctx, "/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.CommandContext(ctx, name, args...)
}
