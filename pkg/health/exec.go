package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/drvig/updns/pkg/runtime"
)

// ExecChecker probes a component by running a command inside its
// container. Exit code zero means healthy; when Expect is set the output
// must also contain it, which covers tools that report degraded states
// with a zero exit.
type ExecChecker struct {
	// Runtime executes the command in the container
	Runtime runtime.Client

	// Container is the container to exec into
	Container string

	// Command is the probe command (e.g. ["pihole", "status"])
	Command []string

	// Expect, when non-empty, must appear in the command output
	Expect string

	// Timeout bounds a single probe invocation
	Timeout time.Duration
}

// NewExecChecker creates an exec health checker
func NewExecChecker(rt runtime.Client, container string, command []string) *ExecChecker {
	return &ExecChecker{
		Runtime:   rt,
		Container: container,
		Command:   command,
		Timeout:   10 * time.Second,
	}
}

// Check performs the exec health check
func (e *ExecChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if len(e.Command) == 0 {
		return Result{
			Healthy:   false,
			Message:   "no command specified",
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	result, err := e.Runtime.Exec(execCtx, e.Container, e.Command)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("exec failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if result.ExitCode != 0 {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("exit code %d", result.ExitCode),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if e.Expect != "" && !strings.Contains(result.Output, e.Expect) {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("output missing %q", e.Expect),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("command %v succeeded", e.Command),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (e *ExecChecker) Type() CheckType {
	return CheckTypeExec
}

// WithTimeout sets the probe timeout
func (e *ExecChecker) WithTimeout(timeout time.Duration) *ExecChecker {
	e.Timeout = timeout
	return e
}

// WithExpect sets the required output substring
func (e *ExecChecker) WithExpect(expect string) *ExecChecker {
	e.Expect = expect
	return e
}
