// Package runtime abstracts the collaborator that actually executes
// containers. cradle owns lifecycle tracking and restart policy; the runtime
// owns images and processes. Implementations: docker (real engine) and fake
// (in-memory simulation for tests and tracking-only deployments).
package runtime

import (
	"context"
	"time"

	"github.com/loykin/cradle/internal/container"
)

// Exit describes the end of one container run.
type Exit struct {
	Code int
	At   time.Time
	Err  error // runtime-side wait error, not the container's own failure
}

// Handle is the runtime-side counterpart of one tracked container.
// All methods honor ctx; Wait blocks until the current run ends.
type Handle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context, grace time.Duration) error
	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	Remove(ctx context.Context) error
	Wait(ctx context.Context) (Exit, error)
}

// Runtime creates handles for container specs. Create must not start the
// container; the caller drives the lifecycle explicitly.
type Runtime interface {
	Create(ctx context.Context, id string, spec container.Spec) (Handle, error)
	Close() error
}
