package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/drvig/updns/pkg/types"
)

// FakeClient is an in-memory Client for tests. It records every call in
// order, which lets tests assert sequencing guarantees (no mutation on an
// empty plan, halt on first unhealthy entry, stop-all before restore).
type FakeClient struct {
	mu sync.Mutex

	// Containers is the simulated container set, keyed by container ID
	Containers map[string]*FakeContainer

	// PullDigests maps image ref to the digest a pull resolves to
	PullDigests map[string]string

	// Error injection per operation
	PingErr   error
	PullErrs  map[string]error
	StartErrs map[string]error
	StopErrs  map[string]error
	ExecErrs  map[string]error

	// ExecResults queues exec outcomes per container; when a queue is
	// drained the last result repeats
	ExecResults map[string][]ExecResult

	// Calls records every operation in invocation order
	Calls []string
}

// FakeContainer is the simulated state of one container
type FakeContainer struct {
	Ref     string
	Digest  string
	Running bool
}

// NewFakeClient returns an empty fake runtime
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Containers:  make(map[string]*FakeContainer),
		PullDigests: make(map[string]string),
		PullErrs:    make(map[string]error),
		StartErrs:   make(map[string]error),
		StopErrs:    make(map[string]error),
		ExecErrs:    make(map[string]error),
		ExecResults: make(map[string][]ExecResult),
	}
}

// AddContainer registers a running container
func (f *FakeClient) AddContainer(id, ref, digest string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Containers[id] = &FakeContainer{Ref: ref, Digest: digest, Running: true}
}

// QueueExec appends an exec outcome for a container
func (f *FakeClient) QueueExec(id string, result ExecResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ExecResults[id] = append(f.ExecResults[id], result)
}

// CallLog returns a copy of the recorded calls
func (f *FakeClient) CallLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Calls...)
}

// MutatingCalls returns only the calls that change runtime state
func (f *FakeClient) MutatingCalls() []string {
	var out []string
	for _, call := range f.CallLog() {
		if strings.HasPrefix(call, "start ") || strings.HasPrefix(call, "stop ") {
			out = append(out, call)
		}
	}
	return out
}

func (f *FakeClient) record(format string, args ...any) {
	f.Calls = append(f.Calls, fmt.Sprintf(format, args...))
}

func (f *FakeClient) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ping")
	return f.PingErr
}

func (f *FakeClient) Running(ctx context.Context, containerID string) (ImageState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("inspect %s", containerID)

	c, ok := f.Containers[containerID]
	if !ok {
		return ImageState{}, fmt.Errorf("%w: %s", types.ErrComponentNotRunning, containerID)
	}
	return ImageState{Ref: c.Ref, Digest: c.Digest, Running: c.Running}, nil
}

func (f *FakeClient) Pull(ctx context.Context, imageRef string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull %s", imageRef)

	if err := f.PullErrs[imageRef]; err != nil {
		return "", err
	}
	if digest, ok := f.PullDigests[imageRef]; ok {
		return digest, nil
	}
	return "", fmt.Errorf("unknown image %s", imageRef)
}

func (f *FakeClient) Start(ctx context.Context, containerID, imageRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start %s %s", containerID, imageRef)

	if err := f.StartErrs[containerID]; err != nil {
		return err
	}

	c, ok := f.Containers[containerID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrComponentNotRunning, containerID)
	}

	c.Ref = imageRef
	if digest, ok := f.PullDigests[imageRef]; ok {
		c.Digest = digest
	}
	c.Running = true
	return nil
}

func (f *FakeClient) Stop(ctx context.Context, containerID string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop %s", containerID)

	if err := f.StopErrs[containerID]; err != nil {
		return err
	}
	if c, ok := f.Containers[containerID]; ok {
		c.Running = false
	}
	return nil
}

func (f *FakeClient) Exec(ctx context.Context, containerID string, command []string) (ExecResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("exec %s %s", containerID, strings.Join(command, " "))

	if err := f.ExecErrs[containerID]; err != nil {
		return ExecResult{}, err
	}

	queue := f.ExecResults[containerID]
	switch len(queue) {
	case 0:
		return ExecResult{ExitCode: 0}, nil
	case 1:
		return queue[0], nil
	default:
		f.ExecResults[containerID] = queue[1:]
		return queue[0], nil
	}
}

func (f *FakeClient) Close() error {
	return nil
}
