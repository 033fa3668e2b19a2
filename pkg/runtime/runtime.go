package runtime

import (
	"context"
	"time"
)

// ImageState describes the artifact a component is currently running
type ImageState struct {
	// Ref is the image reference the container was created from
	Ref string

	// Digest is the content digest of that image
	Digest string

	// Running reports whether the component has a live task
	Running bool
}

// ExecResult is the structured outcome of a command run inside a
// component. Probes interpret ExitCode and Output; the state machine
// never parses raw tool output itself.
type ExecResult struct {
	ExitCode int
	Output   string
}

// Client is the narrow capability set the orchestration logic needs from
// a container runtime: inspect, pull, start, stop, exec. Everything else
// about the runtime is out of scope, which keeps the workflow testable
// against a fake.
type Client interface {
	// Ping verifies the runtime is reachable
	Ping(ctx context.Context) error

	// Running resolves the artifact state of a component's container.
	// Returns types.ErrComponentNotRunning when the container is absent.
	Running(ctx context.Context, containerID string) (ImageState, error)

	// Pull fetches an image and returns its content digest
	Pull(ctx context.Context, imageRef string) (string, error)

	// Start brings a component up on the given image. If the container
	// exists but was created from a different image, it is recreated from
	// the new one with its spec preserved.
	Start(ctx context.Context, containerID, imageRef string) error

	// Stop gracefully stops a component, force-killing after timeout
	Stop(ctx context.Context, containerID string, timeout time.Duration) error

	// Exec runs a command inside a component and returns its exit status
	// and combined output
	Exec(ctx context.Context, containerID string, command []string) (ExecResult, error)

	// Close releases the runtime connection
	Close() error
}
