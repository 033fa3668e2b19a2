package rollback

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/drvig/updns/pkg/environment"
	"github.com/drvig/updns/pkg/runtime"
	"github.com/drvig/updns/pkg/types"
	"github.com/drvig/updns/pkg/verify"
)

// Restorer re-applies a backup snapshot
type Restorer interface {
	Restore(snapshot *types.BackupSnapshot) error
}

// Smoker runs the reduced post-rollback check set
type Smoker interface {
	Smoke(ctx context.Context) verify.Result
}

// Controller recovers from a failed update by restoring the backup
// snapshot. Recovery is full-stop/full-start: every managed component is
// stopped, state is restored, every component is started again. Partial
// states between interdependent components are not safe to reason about,
// so there is no per-component rollback.
type Controller struct {
	rt       runtime.Client
	restorer Restorer
	smoker   Smoker
	env      *environment.Environment
	logger   zerolog.Logger
}

// New creates a rollback controller
func New(rt runtime.Client, restorer Restorer, smoker Smoker, env *environment.Environment, logger zerolog.Logger) *Controller {
	return &Controller{
		rt:       rt,
		restorer: restorer,
		smoker:   smoker,
		env:      env,
		logger:   logger,
	}
}

// Rollback restores the snapshot and reports the run's terminal outcome.
// With no snapshot there is nothing to restore: the controller reports
// the unrecoverable state immediately rather than attempting best-effort
// partial recovery. Restore failures are terminal and never retried.
func (c *Controller) Rollback(ctx context.Context, snapshot *types.BackupSnapshot) types.RunOutcome {
	if snapshot == nil {
		c.logger.Error().Msg("no backup available, cannot roll back")
		return types.OutcomeFailedRollbackFailed
	}

	logger := c.logger.With().Str("snapshot", snapshot.ID).Logger()
	logger.Warn().Str("dir", snapshot.Dir).Msg("rolling back to backup snapshot")

	// Stop the whole stack, frontend first
	comps := c.env.ByRank()
	for i := len(comps) - 1; i >= 0; i-- {
		comp := comps[i]
		if err := c.rt.Stop(ctx, comp.Container, comp.StopTimeout); err != nil {
			logger.Error().Str("component", comp.Name).Err(err).Msg("stop failed during rollback")
			return types.OutcomeFailedRollbackFailed
		}
	}

	if err := c.restorer.Restore(snapshot); err != nil {
		logger.Error().Err(err).Msg("restore failed, system state is indeterminate")
		return types.OutcomeFailedRollbackFailed
	}

	for _, comp := range comps {
		if err := c.rt.Start(ctx, comp.Container, comp.Image); err != nil {
			logger.Error().Str("component", comp.Name).Err(err).Msg("start failed after restore")
			return types.OutcomeFailedRollbackFailed
		}
	}

	// Reduced check set: did the restored stack come back up and serve
	result := c.smoker.Smoke(ctx)
	if result.Failed {
		logger.Error().
			Str("check", result.FailedCheck).
			Msg("smoke test failed after restore")
		return types.OutcomeFailedRollbackFailed
	}

	logger.Info().Msg("rollback complete, restored state verified")
	return types.OutcomeFailedRolledBack
}
