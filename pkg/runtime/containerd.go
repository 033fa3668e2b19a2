package runtime

import (
	"bytes"
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
	"github.com/containerd/containerd/namespaces"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/drvig/updns/pkg/types"
)

const (
	// DefaultNamespace is the containerd namespace the stack runs in
	DefaultNamespace = "dnsstack"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"
)

// ContainerdClient implements Client against a local containerd daemon
type ContainerdClient struct {
	client    *containerd.Client
	namespace string
}

// NewContainerdClient connects to containerd at socketPath
func NewContainerdClient(socketPath, namespace string) (*ContainerdClient, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRuntimeUnavailable, err)
	}

	return &ContainerdClient{
		client:    client,
		namespace: namespace,
	}, nil
}

// Ping verifies the containerd daemon responds
func (c *ContainerdClient) Ping(ctx context.Context) error {
	ctx = namespaces.WithNamespace(ctx, c.namespace)

	if _, err := c.client.Version(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrRuntimeUnavailable, err)
	}
	return nil
}

// Close closes the containerd client connection
func (c *ContainerdClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Running resolves the image reference and digest a container was created
// from, and whether it has a live task
func (c *ContainerdClient) Running(ctx context.Context, containerID string) (ImageState, error) {
	ctx = namespaces.WithNamespace(ctx, c.namespace)

	container, err := c.client.LoadContainer(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ImageState{}, fmt.Errorf("%w: %s", types.ErrComponentNotRunning, containerID)
		}
		return ImageState{}, fmt.Errorf("%w: %v", types.ErrRuntimeUnavailable, err)
	}

	image, err := container.Image(ctx)
	if err != nil {
		return ImageState{}, fmt.Errorf("failed to resolve image for %s: %w", containerID, err)
	}

	state := ImageState{
		Ref:    image.Name(),
		Digest: image.Target().Digest.String(),
	}

	task, err := container.Task(ctx, nil)
	if err == nil {
		status, err := task.Status(ctx)
		if err == nil && status.Status == containerd.Running {
			state.Running = true
		}
	}

	return state, nil
}

// Pull fetches an image and returns its content digest
func (c *ContainerdClient) Pull(ctx context.Context, imageRef string) (string, error) {
	ctx = namespaces.WithNamespace(ctx, c.namespace)

	image, err := c.client.Pull(ctx, imageRef, containerd.WithPullUnpack)
	if err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", imageRef, err)
	}

	return image.Target().Digest.String(), nil
}

// Start brings a component up on imageRef. A container created from a
// different image is recreated with its OCI spec preserved so mounts and
// environment survive the update.
func (c *ContainerdClient) Start(ctx context.Context, containerID, imageRef string) error {
	ctx = namespaces.WithNamespace(ctx, c.namespace)

	image, err := c.client.GetImage(ctx, imageRef)
	if err != nil {
		return fmt.Errorf("failed to get image %s: %w", imageRef, err)
	}

	container, err := c.client.LoadContainer(ctx, containerID)
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	if err == nil {
		current, err := container.Image(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve image for %s: %w", containerID, err)
		}

		if current.Target().Digest != image.Target().Digest {
			container, err = c.recreate(ctx, container, image)
			if err != nil {
				return err
			}
		}
	} else {
		return fmt.Errorf("%w: %s", types.ErrComponentNotRunning, containerID)
	}

	// Idempotent when a task is already running
	if task, err := container.Task(ctx, nil); err == nil {
		if status, err := task.Status(ctx); err == nil && status.Status == containerd.Running {
			return nil
		}
		if _, err := task.Delete(ctx); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to delete stale task for %s: %w", containerID, err)
		}
	}

	task, err := container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("failed to create task for %s: %w", containerID, err)
	}

	if err := task.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task for %s: %w", containerID, err)
	}

	return nil
}

// recreate replaces a container with one built from image, keeping the
// existing OCI spec
func (c *ContainerdClient) recreate(ctx context.Context, container containerd.Container, image containerd.Image) (containerd.Container, error) {
	id := container.ID()

	spec, err := container.Spec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec for %s: %w", id, err)
	}

	if task, err := container.Task(ctx, nil); err == nil {
		if _, err := task.Delete(ctx, containerd.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("failed to delete task for %s: %w", id, err)
		}
	}

	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return nil, fmt.Errorf("failed to delete container %s: %w", id, err)
	}

	replacement, err := c.client.NewContainer(
		ctx,
		id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithSpec(spec),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to recreate container %s: %w", id, err)
	}

	return replacement, nil
}

// Stop gracefully stops a component's task, escalating to SIGKILL after
// timeout. A missing task is not an error.
func (c *ContainerdClient) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	ctx = namespaces.WithNamespace(ctx, c.namespace)

	container, err := c.client.LoadContainer(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return nil
	}

	statusC, err := task.Wait(ctx)
	if err != nil {
		return fmt.Errorf("failed to wait on task for %s: %w", containerID, err)
	}

	if err := task.Kill(ctx, syscall.SIGTERM); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to signal task for %s: %w", containerID, err)
	}

	select {
	case <-statusC:
	case <-time.After(timeout):
		if err := task.Kill(ctx, syscall.SIGKILL); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("failed to force kill task for %s: %w", containerID, err)
		}
		<-statusC
	case <-ctx.Done():
		return ctx.Err()
	}

	if _, err := task.Delete(ctx); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to delete task for %s: %w", containerID, err)
	}

	return nil
}

// Exec runs a command inside a component's task and returns its exit code
// and combined output
func (c *ContainerdClient) Exec(ctx context.Context, containerID string, command []string) (ExecResult, error) {
	ctx = namespaces.WithNamespace(ctx, c.namespace)

	container, err := c.client.LoadContainer(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ExecResult{}, fmt.Errorf("%w: %s", types.ErrComponentNotRunning, containerID)
		}
		return ExecResult{}, fmt.Errorf("failed to load container %s: %w", containerID, err)
	}

	task, err := container.Task(ctx, nil)
	if err != nil {
		return ExecResult{}, fmt.Errorf("%w: %s has no task", types.ErrComponentNotRunning, containerID)
	}

	spec, err := container.Spec(ctx)
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to read spec for %s: %w", containerID, err)
	}

	var output bytes.Buffer
	execID := fmt.Sprintf("probe-%d", time.Now().UnixNano())

	process, err := task.Exec(ctx, execID, execSpec(spec.Process, command), cio.NewCreator(cio.WithStreams(nil, &output, &output)))
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to exec in %s: %w", containerID, err)
	}
	defer process.Delete(ctx)

	statusC, err := process.Wait(ctx)
	if err != nil {
		return ExecResult{}, fmt.Errorf("failed to wait on exec in %s: %w", containerID, err)
	}

	if err := process.Start(ctx); err != nil {
		return ExecResult{}, fmt.Errorf("failed to start exec in %s: %w", containerID, err)
	}

	select {
	case status := <-statusC:
		code, _, err := status.Result()
		if err != nil {
			return ExecResult{}, fmt.Errorf("exec in %s failed: %w", containerID, err)
		}
		return ExecResult{ExitCode: int(code), Output: output.String()}, nil
	case <-ctx.Done():
		_ = process.Kill(namespaces.WithNamespace(context.Background(), c.namespace), syscall.SIGKILL)
		return ExecResult{}, ctx.Err()
	}
}

// execSpec derives a process spec for an exec from the container's own,
// so the probe inherits the component's env, cwd and user
func execSpec(base *specs.Process, command []string) *specs.Process {
	pspec := *base
	pspec.Args = command
	pspec.Terminal = false
	return &pspec
}
