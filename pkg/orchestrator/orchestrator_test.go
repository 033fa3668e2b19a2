package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drvig/updns/pkg/environment"
	"github.com/drvig/updns/pkg/executor"
	"github.com/drvig/updns/pkg/health"
	"github.com/drvig/updns/pkg/inventory"
	"github.com/drvig/updns/pkg/runtime"
	"github.com/drvig/updns/pkg/types"
	"github.com/drvig/updns/pkg/verify"
)

type fakeCollector struct {
	identities []types.ComponentIdentity
	err        error
}

func (f *fakeCollector) Collect(ctx context.Context) ([]types.ComponentIdentity, error) {
	return f.identities, f.err
}

type fakeSnapshotter struct {
	snapshot *types.BackupSnapshot
	err      error
	calls    int
}

func (f *fakeSnapshotter) Snapshot() (*types.BackupSnapshot, error) {
	f.calls++
	return f.snapshot, f.err
}

type fakeExecutor struct {
	result executor.Result
	calls  int
	plans  []types.UpdatePlan
}

func (f *fakeExecutor) Execute(ctx context.Context, plan types.UpdatePlan) executor.Result {
	f.calls++
	f.plans = append(f.plans, plan)
	return f.result
}

type fakeVerifier struct {
	result verify.Result
	calls  int
}

func (f *fakeVerifier) Verify(ctx context.Context) verify.Result {
	f.calls++
	return f.result
}

type fakeRollbacker struct {
	outcome   types.RunOutcome
	calls     int
	snapshots []*types.BackupSnapshot
}

func (f *fakeRollbacker) Rollback(ctx context.Context, snapshot *types.BackupSnapshot) types.RunOutcome {
	f.calls++
	f.snapshots = append(f.snapshots, snapshot)
	return f.outcome
}

type fakeHistory struct {
	records []types.RunRecord
	err     error
}

func (f *fakeHistory) Append(record types.RunRecord) error {
	f.records = append(f.records, record)
	return f.err
}

func identity(name string, outdated bool) types.ComponentIdentity {
	id := types.ComponentIdentity{
		Name:          name,
		Container:     "dns-" + name,
		Image:         name + ":latest",
		RunningDigest: "sha256:aaa",
		LatestDigest:  "sha256:aaa",
		LatestKnown:   true,
	}
	if outdated {
		id.LatestDigest = "sha256:bbb"
	}
	return id
}

type fixture struct {
	orch      *Orchestrator
	collector *fakeCollector
	backups   *fakeSnapshotter
	executor  *fakeExecutor
	verifier  *fakeVerifier
	rollback  *fakeRollbacker
	history   *fakeHistory
}

func newFixture(identities ...types.ComponentIdentity) *fixture {
	f := &fixture{
		collector: &fakeCollector{identities: identities},
		backups:   &fakeSnapshotter{snapshot: &types.BackupSnapshot{ID: "snap-1", Dir: "/backups/snap-1"}},
		executor:  &fakeExecutor{},
		verifier:  &fakeVerifier{},
		rollback:  &fakeRollbacker{outcome: types.OutcomeFailedRolledBack},
		history:   &fakeHistory{},
	}
	f.orch = &Orchestrator{
		Collector: f.collector,
		Backups:   f.backups,
		Executor:  f.executor,
		Verifier:  f.verifier,
		Rollback:  f.rollback,
		History:   f.history,
		Decider:   StaticDecider{Choice: DecisionBackupThenProceed},
		Env:       &environment.Environment{RunID: "run-1"},
		Logger:    zerolog.Nop(),
	}
	return f
}

func TestRunAllCurrent(t *testing.T) {
	f := newFixture(identity("cache", false), identity("resolver", false), identity("blocker", false))

	outcome, err := f.orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeNoUpdateNeeded, outcome)
	assert.Zero(t, f.backups.calls)
	assert.Zero(t, f.executor.calls)
	assert.Zero(t, f.verifier.calls)

	require.Len(t, f.history.records, 1)
	assert.Equal(t, "run-1", f.history.records[0].ID)
	assert.Empty(t, f.history.records[0].Planned)
}

func TestRunSingleUpdateSuccess(t *testing.T) {
	f := newFixture(identity("cache", false), identity("resolver", true), identity("blocker", false))
	f.executor.result = executor.Result{
		Steps: []executor.StepResult{{Component: "resolver", State: executor.StepHealthy, Attempts: 2}},
	}

	outcome, err := f.orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, outcome)
	assert.Equal(t, 1, f.backups.calls)
	assert.Equal(t, 1, f.verifier.calls)
	assert.Zero(t, f.rollback.calls)

	require.Len(t, f.executor.plans, 1)
	assert.Equal(t, []string{"resolver"}, f.executor.plans[0].Names())

	require.Len(t, f.history.records, 1)
	assert.Equal(t, types.OutcomeSuccess, f.history.records[0].Outcome)
	assert.Equal(t, "/backups/snap-1", f.history.records[0].BackupDir)
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(identity("resolver", true))
	f.orch.Decider = StaticDecider{Choice: DecisionCancel}

	outcome, err := f.orch.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.OutcomeCancelledByUser, outcome)
	assert.Zero(t, f.backups.calls)
	assert.Zero(t, f.executor.calls)
}

func TestRunCollectFailure(t *testing.T) {
	f := newFixture()
	f.collector.err = types.ErrRuntimeUnavailable

	outcome, err := f.orch.Run(context.Background())

	assert.Equal(t, types.OutcomeFailed, outcome)
	assert.ErrorIs(t, err, types.ErrRuntimeUnavailable)
	assert.Zero(t, f.executor.calls)
}

func TestRunBackupFailureAbortsBeforeExecution(t *testing.T) {
	f := newFixture(identity("resolver", true))
	f.backups.snapshot = nil
	f.backups.err = types.ErrBackupIncomplete

	outcome, err := f.orch.Run(context.Background())

	assert.Equal(t, types.OutcomeFailed, outcome)
	assert.ErrorIs(t, err, types.ErrBackupIncomplete)
	assert.Zero(t, f.executor.calls, "execution must not start on a failed backup")
	assert.Zero(t, f.rollback.calls)
}

func TestRunStepFailureWithBackupRollsBack(t *testing.T) {
	f := newFixture(identity("resolver", true))
	f.executor.result = executor.Result{
		Steps:  []executor.StepResult{{Component: "resolver", State: executor.StepUnhealthy, Attempts: 10}},
		Failed: &types.ComponentIdentity{Name: "resolver"},
		Err:    types.ErrStepUnhealthy,
	}

	outcome, err := f.orch.Run(context.Background())

	assert.Equal(t, types.OutcomeFailedRolledBack, outcome)
	assert.ErrorIs(t, err, types.ErrStepUnhealthy)
	require.Equal(t, 1, f.rollback.calls)
	assert.Equal(t, "snap-1", f.rollback.snapshots[0].ID)
	assert.Zero(t, f.verifier.calls)
}

func TestRunStepFailureWithoutBackupSurfacesFailure(t *testing.T) {
	f := newFixture(identity("resolver", true))
	f.orch.Decider = StaticDecider{Choice: DecisionProceed}
	f.executor.result = executor.Result{
		Failed: &types.ComponentIdentity{Name: "resolver"},
		Err:    types.ErrStepUnhealthy,
	}

	outcome, err := f.orch.Run(context.Background())

	assert.Equal(t, types.OutcomeFailed, outcome)
	assert.ErrorIs(t, err, types.ErrStepUnhealthy)
	assert.Zero(t, f.backups.calls)
	assert.Zero(t, f.rollback.calls, "no rollback may be claimed without a snapshot")
}

func TestRunVerificationFailureRollsBack(t *testing.T) {
	f := newFixture(identity("resolver", true))
	f.executor.result = executor.Result{
		Steps: []executor.StepResult{{Component: "resolver", State: executor.StepHealthy, Attempts: 1}},
	}
	f.verifier.result = verify.Result{Failed: true, FailedCheck: verify.CheckBlocking}

	outcome, err := f.orch.Run(context.Background())

	assert.Equal(t, types.OutcomeFailedRolledBack, outcome)
	assert.ErrorIs(t, err, types.ErrVerificationFailed)
	assert.Equal(t, 1, f.rollback.calls)
}

func TestRunRollbackFailure(t *testing.T) {
	f := newFixture(identity("resolver", true))
	f.executor.result = executor.Result{
		Failed: &types.ComponentIdentity{Name: "resolver"},
		Err:    types.ErrStepUnhealthy,
	}
	f.rollback.outcome = types.OutcomeFailedRollbackFailed

	outcome, _ := f.orch.Run(context.Background())
	assert.Equal(t, types.OutcomeFailedRollbackFailed, outcome)
}

func TestRunRecordsByOutcome(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*fixture)
		outcome types.RunOutcome
	}{
		{
			name:    "no update needed",
			setup:   func(f *fixture) { f.collector.identities = []types.ComponentIdentity{identity("cache", false)} },
			outcome: types.OutcomeNoUpdateNeeded,
		},
		{
			name: "cancelled",
			setup: func(f *fixture) {
				f.orch.Decider = StaticDecider{Choice: DecisionCancel}
			},
			outcome: types.OutcomeCancelledByUser,
		},
		{
			name: "decider error",
			setup: func(f *fixture) {
				f.orch.Decider = erroringDecider{}
			},
			outcome: types.OutcomeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(identity("resolver", true))
			tt.setup(f)

			outcome, _ := f.orch.Run(context.Background())
			assert.Equal(t, tt.outcome, outcome)

			require.Len(t, f.history.records, 1)
			assert.Equal(t, tt.outcome, f.history.records[0].Outcome)
			assert.False(t, f.history.records[0].FinishedAt.IsZero())
		})
	}
}

type erroringDecider struct{}

func (erroringDecider) Decide(types.UpdatePlan) (Decision, error) {
	return DecisionCancel, errors.New("terminal closed")
}

func TestRunHistoryAppendFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(identity("cache", false))
	f.history.err = errors.New("disk full")

	outcome, err := f.orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeNoUpdateNeeded, outcome)
}

type staticResolver map[string]string

func (s staticResolver) ManifestDigest(ctx context.Context, imageRef string) (string, error) {
	digest, ok := s[imageRef]
	if !ok {
		return "", errors.New("manifest not found")
	}
	return digest, nil
}

type alwaysHealthy struct{}

func (alwaysHealthy) Check(ctx context.Context) health.Result {
	return health.Result{Healthy: true, CheckedAt: time.Now()}
}

func (alwaysHealthy) Type() health.CheckType { return health.CheckTypeTCP }

// A second run against an unchanged upstream must observe the digests the
// first run converged to and plan nothing. Wires the real collector and
// executor over one fake runtime, whose Start applies the pulled digest.
func TestRunRepeatedWithoutUpstreamChange(t *testing.T) {
	rt := runtime.NewFakeClient()
	env := &environment.Environment{RunID: "run-repeat"}
	latest := staticResolver{}
	for _, name := range []string{"cache", "resolver", "blocker"} {
		ref := name + ":latest"
		rt.AddContainer("dns-"+name, ref, "sha256:aaa")
		rt.PullDigests[ref] = "sha256:bbb"
		latest[ref] = "sha256:bbb"
		env.Components = append(env.Components, types.Component{
			Name:        name,
			Container:   "dns-" + name,
			Image:       ref,
			Rank:        len(env.Components),
			StopTimeout: time.Second,
		})
	}

	checkers := func(types.Component) (health.Checker, health.Budget, error) {
		return alwaysHealthy{}, health.Budget{Attempts: 3, Interval: time.Millisecond}, nil
	}
	history := &fakeHistory{}
	orch := &Orchestrator{
		Collector: inventory.NewCollector(rt, latest, env, zerolog.Nop()),
		Backups:   &fakeSnapshotter{snapshot: &types.BackupSnapshot{ID: "snap-1", Dir: "/backups/snap-1"}},
		Executor:  executor.New(rt, env, checkers, zerolog.Nop()),
		Verifier:  &fakeVerifier{},
		Rollback:  &fakeRollbacker{},
		History:   history,
		Decider:   StaticDecider{Choice: DecisionProceed},
		Env:       env,
		Logger:    zerolog.Nop(),
	}

	outcome, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeSuccess, outcome)

	// One stop and one start per component, nothing else.
	mutations := rt.MutatingCalls()
	assert.Len(t, mutations, 6)

	outcome, err = orch.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.OutcomeNoUpdateNeeded, outcome)
	assert.Equal(t, mutations, rt.MutatingCalls(), "second run must not touch the runtime")

	require.Len(t, history.records, 2)
	assert.Equal(t, []string{"cache", "resolver", "blocker"}, history.records[0].Planned)
	assert.Empty(t, history.records[1].Planned)
}
