package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/drvig/updns/pkg/environment"
	"github.com/drvig/updns/pkg/executor"
	"github.com/drvig/updns/pkg/metrics"
	"github.com/drvig/updns/pkg/planner"
	"github.com/drvig/updns/pkg/types"
	"github.com/drvig/updns/pkg/verify"
)

// Decision is the operator's answer at the one-time gate before any
// mutation. There is no way to interrupt a run after this point; the
// gate is the only cancellation surface.
type Decision int

const (
	DecisionProceed Decision = iota
	DecisionBackupThenProceed
	DecisionCancel
)

// Decider supplies the operator decision for a plan. Interactive runs use
// the prompt package; unattended runs use a StaticDecider.
type Decider interface {
	Decide(plan types.UpdatePlan) (Decision, error)
}

// StaticDecider answers with a fixed decision, for unattended runs
type StaticDecider struct {
	Choice Decision
}

func (d StaticDecider) Decide(types.UpdatePlan) (Decision, error) {
	return d.Choice, nil
}

// Collector gathers component identities
type Collector interface {
	Collect(ctx context.Context) ([]types.ComponentIdentity, error)
}

// Snapshotter takes a pre-mutation backup
type Snapshotter interface {
	Snapshot() (*types.BackupSnapshot, error)
}

// Executor applies an update plan
type Executor interface {
	Execute(ctx context.Context, plan types.UpdatePlan) executor.Result
}

// Verifier checks the deployed stack end to end
type Verifier interface {
	Verify(ctx context.Context) verify.Result
}

// Rollbacker restores a snapshot and reports the terminal outcome
type Rollbacker interface {
	Rollback(ctx context.Context, snapshot *types.BackupSnapshot) types.RunOutcome
}

// History persists run records
type History interface {
	Append(record types.RunRecord) error
}

// Orchestrator sequences one update run: collect, plan, decide, back up,
// execute, verify, and recover on failure. Strictly sequential; each
// phase owns the components while it runs and hands them to the next.
type Orchestrator struct {
	Collector   Collector
	Backups     Snapshotter
	Executor    Executor
	Verifier    Verifier
	Rollback    Rollbacker
	History     History
	Decider     Decider
	Env         *environment.Environment
	Logger      zerolog.Logger
}

// Run executes the full workflow and returns the run's terminal outcome.
// The returned error carries detail for failure outcomes; the outcome is
// authoritative for the exit status either way.
func (o *Orchestrator) Run(ctx context.Context) (types.RunOutcome, error) {
	started := time.Now()
	record := types.RunRecord{
		ID:        o.Env.RunID,
		StartedAt: started,
	}

	outcome, err := o.run(ctx, &record)

	record.Outcome = outcome
	record.FinishedAt = time.Now()
	if err != nil {
		record.Error = err.Error()
	}

	metrics.RunsTotal.WithLabelValues(string(outcome)).Inc()
	if o.History != nil {
		if herr := o.History.Append(record); herr != nil {
			o.Logger.Warn().Err(herr).Msg("failed to persist run record")
		}
	}

	o.Logger.Info().
		Str("outcome", string(outcome)).
		Dur("took", time.Since(started)).
		Int("exit_code", outcome.ExitCode()).
		Msg("run finished")

	return outcome, err
}

func (o *Orchestrator) run(ctx context.Context, record *types.RunRecord) (types.RunOutcome, error) {
	logger := o.Logger

	// Phase 1: inventory. Fails closed before any side effect.
	timer := metrics.NewTimer()
	identities, err := o.Collector.Collect(ctx)
	timer.ObserveDuration(metrics.PhaseDuration.WithLabelValues("collect"))
	if err != nil {
		return types.OutcomeFailed, err
	}

	// Phase 2: planning. Pure; derived once, never re-evaluated.
	plan := planner.Plan(identities, logger)
	record.Planned = plan.Names()

	if plan.Empty() {
		logger.Info().Msg("all components current, nothing to do")
		return types.OutcomeNoUpdateNeeded, nil
	}

	logger.Info().
		Strs("components", plan.Names()).
		Msg("update plan derived")

	// One-time decision gate; nothing has been mutated yet
	decision, err := o.Decider.Decide(plan)
	if err != nil {
		return types.OutcomeFailed, err
	}
	if decision == DecisionCancel {
		logger.Info().Msg("cancelled by user, nothing was changed")
		return types.OutcomeCancelledByUser, nil
	}

	// Phase 3: optional backup. An incomplete backup aborts the run
	// before the first mutating step; executing on a partial snapshot is
	// worse than not executing at all.
	var snapshot *types.BackupSnapshot
	if decision == DecisionBackupThenProceed {
		timer = metrics.NewTimer()
		snapshot, err = o.Backups.Snapshot()
		timer.ObserveDuration(metrics.PhaseDuration.WithLabelValues("backup"))
		if err != nil {
			return types.OutcomeFailed, err
		}
		record.BackupDir = snapshot.Dir
	}

	// Phase 4: execution, in plan order, halting on first failure
	timer = metrics.NewTimer()
	execResult := o.Executor.Execute(ctx, plan)
	timer.ObserveDuration(metrics.PhaseDuration.WithLabelValues("execute"))

	for _, step := range execResult.Steps {
		if step.State == executor.StepHealthy {
			metrics.ComponentsUpdated.Inc()
			metrics.HealthPollAttempts.WithLabelValues(step.Component).Observe(float64(step.Attempts))
		}
	}

	if execResult.Failed != nil {
		logger.Error().
			Str("component", execResult.Failed.Name).
			Err(execResult.Err).
			Msg("update step failed")
		return o.recover(ctx, snapshot, execResult.Err)
	}

	// Phase 5: end-to-end verification
	timer = metrics.NewTimer()
	verifyResult := o.Verifier.Verify(ctx)
	timer.ObserveDuration(metrics.PhaseDuration.WithLabelValues("verify"))

	if verifyResult.Failed {
		err := types.ErrVerificationFailed
		logger.Error().
			Str("check", verifyResult.FailedCheck).
			Msg("verification failed after update")
		return o.recover(ctx, snapshot, err)
	}

	logger.Info().
		Strs("updated", plan.Names()).
		Msg("update complete and verified")
	return types.OutcomeSuccess, nil
}

// recover decides the failure path. With a snapshot, the rollback
// controller owns the outcome. Without one there is nothing to restore:
// the failure is surfaced as-is and no rollback is claimed.
func (o *Orchestrator) recover(ctx context.Context, snapshot *types.BackupSnapshot, cause error) (types.RunOutcome, error) {
	if snapshot == nil {
		o.Logger.Error().
			Err(cause).
			Msg("no backup was taken; failure surfaced without rollback")
		return types.OutcomeFailed, cause
	}

	timer := metrics.NewTimer()
	outcome := o.Rollback.Rollback(ctx, snapshot)
	timer.ObserveDuration(metrics.PhaseDuration.WithLabelValues("rollback"))

	return outcome, cause
}
