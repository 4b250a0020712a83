// Package docker adapts the Docker Engine API to the cradle runtime
// interface. Restart policy is always "no" on the engine side: cradle's own
// restart engine is the single authority for restarts.
package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	dcontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/loykin/cradle/internal/container"
	"github.com/loykin/cradle/internal/logger"
	"github.com/loykin/cradle/internal/runtime"
)

// Runtime drives a local Docker Engine via its API socket.
type Runtime struct {
	cli *client.Client
}

// New connects to the engine using the standard DOCKER_HOST environment.
func New() (*Runtime, error) {
	return NewWithHost("")
}

// NewWithHost connects to the given engine address, or the DOCKER_HOST
// environment when host is empty.
func NewWithHost(host string) (*Runtime, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("connect docker engine: %w", err)
	}
	return &Runtime{cli: cli}, nil
}

func (r *Runtime) Close() error { return r.cli.Close() }

func (r *Runtime) Create(ctx context.Context, id string, spec container.Spec) (runtime.Handle, error) {
	cc := &dcontainer.Config{
		Image:  spec.Image,
		Env:    spec.Env,
		Labels: labelsFor(id, spec),
	}
	hc := &dcontainer.HostConfig{
		// cradle applies the policy; the engine must never restart on its own.
		RestartPolicy: dcontainer.RestartPolicy{Name: dcontainer.RestartPolicyDisabled},
	}
	if len(spec.Ports) > 0 {
		exposed, bindings, err := nat.ParsePortSpecs(spec.Ports)
		if err != nil {
			return nil, fmt.Errorf("container %q: invalid port spec: %w", spec.Name, err)
		}
		cc.ExposedPorts = exposed
		hc.PortBindings = bindings
	}
	resp, err := r.cli.ContainerCreate(ctx, cc, hc, nil, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("create container %q: %w", spec.Name, err)
	}
	return &handle{cli: r.cli, engineID: resp.ID, name: spec.Name, log: spec.Log}, nil
}

func labelsFor(id string, spec container.Spec) map[string]string {
	labels := make(map[string]string, len(spec.Labels)+1)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels["io.cradle.id"] = id
	return labels
}

type handle struct {
	cli      *client.Client
	engineID string
	name     string
	log      logger.Config
}

func (h *handle) Start(ctx context.Context) error {
	if err := h.cli.ContainerStart(ctx, h.engineID, dcontainer.StartOptions{}); err != nil {
		return err
	}
	if h.log.Enabled() {
		go h.captureLogs()
	}
	return nil
}

// captureLogs follows the engine's log stream for the current run and
// demultiplexes it into the configured rotated files. The stream ends when
// the container exits.
func (h *handle) captureLogs() {
	outW, errW, err := h.log.Writers(h.name)
	if err != nil {
		return
	}
	defer func() {
		if outW != nil {
			_ = outW.Close()
		}
		if errW != nil {
			_ = errW.Close()
		}
	}()
	rc, err := h.cli.ContainerLogs(context.Background(), h.engineID, dcontainer.LogsOptions{
		ShowStdout: outW != nil,
		ShowStderr: errW != nil,
		Follow:     true,
	})
	if err != nil {
		return
	}
	defer func() { _ = rc.Close() }()
	var out, errOut io.Writer = io.Discard, io.Discard
	if outW != nil {
		out = outW
	}
	if errW != nil {
		errOut = errW
	}
	_, _ = stdcopy.StdCopy(out, errOut, rc)
}

func (h *handle) Stop(ctx context.Context, grace time.Duration) error {
	secs := int(grace / time.Second)
	return h.cli.ContainerStop(ctx, h.engineID, dcontainer.StopOptions{Timeout: &secs})
}

func (h *handle) Pause(ctx context.Context) error {
	return h.cli.ContainerPause(ctx, h.engineID)
}

func (h *handle) Unpause(ctx context.Context) error {
	return h.cli.ContainerUnpause(ctx, h.engineID)
}

func (h *handle) Remove(ctx context.Context) error {
	return h.cli.ContainerRemove(ctx, h.engineID, dcontainer.RemoveOptions{Force: true})
}

func (h *handle) Wait(ctx context.Context) (runtime.Exit, error) {
	waitCh, errCh := h.cli.ContainerWait(ctx, h.engineID, dcontainer.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		return runtime.Exit{}, ctx.Err()
	case err := <-errCh:
		return runtime.Exit{}, fmt.Errorf("wait container: %w", err)
	case resp := <-waitCh:
		e := runtime.Exit{Code: int(resp.StatusCode), At: time.Now()}
		if resp.Error != nil {
			e.Err = fmt.Errorf("engine: %s", resp.Error.Message)
		}
		return e, nil
	}
}
