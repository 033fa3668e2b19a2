package types

import "errors"

// Sentinel errors for the failure taxonomy. Callers match with errors.Is;
// wrapping sites add the component or path involved.
var (
	// ErrRuntimeUnavailable means the container runtime cannot be reached.
	// Fatal before any mutation.
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")

	// ErrComponentNotRunning means an expected component is absent from
	// the runtime. Fatal before any mutation.
	ErrComponentNotRunning = errors.New("component not running")

	// ErrBackupIncomplete means a declared volume or the config source
	// could not be archived. The run must abort before mutation.
	ErrBackupIncomplete = errors.New("backup incomplete")

	// ErrRestoreIncomplete means a snapshot archive is missing or failed
	// to extract. Terminal; never retried automatically.
	ErrRestoreIncomplete = errors.New("restore incomplete")

	// ErrStepApplyFailed means the runtime could not apply a plan entry
	ErrStepApplyFailed = errors.New("step apply failed")

	// ErrStepUnhealthy means a plan entry exhausted its health-poll budget
	ErrStepUnhealthy = errors.New("step unhealthy")

	// ErrVerificationFailed means a post-update verification check failed
	ErrVerificationFailed = errors.New("verification failed")
)
