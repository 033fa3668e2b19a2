package types

import (
	"time"
)

// Component is one managed service of the DNS stack, as declared in
// configuration. The declaration is the source of truth for update order,
// health probing and backup targets.
type Component struct {
	// Name is the stable key for the component (e.g. "cache", "resolver")
	Name string `yaml:"name"`

	// Container is the runtime container ID the component runs in
	Container string `yaml:"container"`

	// Image is the image reference the component is deployed from
	Image string `yaml:"image"`

	// Rank defines update order; lower ranks are updated first
	Rank int `yaml:"rank"`

	// Probe declares the component-specific health probe and its budget
	Probe ProbeSpec `yaml:"probe"`

	// Volumes are the stateful volumes captured by backup snapshots
	Volumes []VolumeRef `yaml:"volumes"`

	// StopTimeout bounds graceful shutdown before the runtime force-kills
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// ProbeType selects the health probe implementation for a component
type ProbeType string

const (
	ProbeTypeExec  ProbeType = "exec"
	ProbeTypeTCP   ProbeType = "tcp"
	ProbeTypeDNS   ProbeType = "dns"
	ProbeTypeRedis ProbeType = "redis"
)

// ProbeSpec declares a health probe and its retry budget. Budgets are
// per-component configuration, never hardcoded per probe type.
type ProbeSpec struct {
	Type ProbeType `yaml:"type"`

	// Address is the probe target for tcp, dns and redis probes
	Address string `yaml:"address"`

	// Domain is the query name for dns probes
	Domain string `yaml:"domain"`

	// Command is the in-container command for exec probes
	Command []string `yaml:"command"`

	// Expect, when set, must appear in the exec probe's output
	Expect string `yaml:"expect"`

	// Attempts is the poll budget before the component is declared unhealthy
	Attempts int `yaml:"attempts"`

	// Interval is the spacing between poll attempts
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds a single probe invocation
	Timeout time.Duration `yaml:"timeout"`
}

// VolumeRef names a stateful volume and its host path
type VolumeRef struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// ComponentIdentity is the collected identity of one component at run
// start: what is running and what upstream publishes. Immutable within a
// run; hash comparison decides outdatedness, never tag comparison.
type ComponentIdentity struct {
	// Name is the component's stable key
	Name string

	// Container is the runtime container the identity was read from
	Container string

	// Image is the declared image reference
	Image string

	// RunningTag is the human-readable tag of the deployed image
	RunningTag string

	// RunningDigest is the content digest of the deployed image
	RunningDigest string

	// LatestDigest is the content digest of the latest published image.
	// Only meaningful when LatestKnown is true.
	LatestDigest string

	// LatestKnown is false when the latest-digest lookup failed; such a
	// component is excluded from planning rather than guessed at.
	LatestKnown bool

	// Rank is the component's dependency rank, copied from its declaration
	Rank int
}

// Outdated reports whether the running artifact differs from the latest
// published one. Unknown identities are never outdated.
func (id ComponentIdentity) Outdated() bool {
	return id.LatestKnown && id.RunningDigest != id.LatestDigest
}

// UpdatePlan is the ordered set of components to update in one run,
// ascending by rank. Derived once by the planner, consumed once by the
// executor, never mutated.
type UpdatePlan struct {
	Entries []ComponentIdentity
}

// Empty reports whether the system is fully current
func (p UpdatePlan) Empty() bool {
	return len(p.Entries) == 0
}

// Names returns the component names in plan order
func (p UpdatePlan) Names() []string {
	names := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		names = append(names, e.Name)
	}
	return names
}

// BackupSnapshot is a point-in-time capture of mutable state taken before
// any mutating step runs. A snapshot returned by the backup manager is
// always complete; partial captures are destroyed, not returned.
type BackupSnapshot struct {
	// ID is a unique snapshot identifier
	ID string

	// Timestamp is when the capture was taken
	Timestamp time.Time

	// Dir is the snapshot's root directory
	Dir string

	// ConfigCopy is the path of the archived configuration file
	ConfigCopy string

	// VolumeArchives maps volume name to archive path
	VolumeArchives map[string]string
}

// RunOutcome is the single terminal state of a run
type RunOutcome string

const (
	// OutcomeNoUpdateNeeded means every component was already current
	OutcomeNoUpdateNeeded RunOutcome = "no-update-needed"

	// OutcomeSuccess means the plan executed and verification passed
	OutcomeSuccess RunOutcome = "success"

	// OutcomeFailed means a step or verification failed and no rollback
	// was attempted because no backup snapshot existed
	OutcomeFailed RunOutcome = "failed"

	// OutcomeFailedRolledBack means the update failed and the snapshot
	// was restored successfully
	OutcomeFailedRolledBack RunOutcome = "failed-rolled-back"

	// OutcomeFailedRollbackFailed means restoration itself failed and the
	// system is in an indeterminate state requiring manual intervention
	OutcomeFailedRollbackFailed RunOutcome = "failed-rollback-failed"

	// OutcomeCancelledByUser means the operator declined at the decision
	// gate; nothing was mutated
	OutcomeCancelledByUser RunOutcome = "cancelled"
)

// ExitCode maps each outcome to a distinct process exit status
func (o RunOutcome) ExitCode() int {
	switch o {
	case OutcomeNoUpdateNeeded, OutcomeSuccess:
		return 0
	case OutcomeCancelledByUser:
		return 1
	case OutcomeFailed:
		return 2
	case OutcomeFailedRolledBack:
		return 3
	case OutcomeFailedRollbackFailed:
		return 4
	default:
		return 2
	}
}

// RunRecord is the persisted summary of one run, kept in the history store
type RunRecord struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Outcome    RunOutcome `json:"outcome"`
	Planned    []string   `json:"planned"`
	BackupDir  string     `json:"backup_dir,omitempty"`
	Error      string     `json:"error,omitempty"`
}
