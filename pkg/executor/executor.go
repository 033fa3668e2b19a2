package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/drvig/updns/pkg/environment"
	"github.com/drvig/updns/pkg/health"
	"github.com/drvig/updns/pkg/runtime"
	"github.com/drvig/updns/pkg/types"
)

// StepState is the state of one plan entry inside the executor
type StepState string

const (
	StepPending       StepState = "pending"
	StepApplying      StepState = "applying"
	StepHealthPolling StepState = "health-polling"
	StepHealthy       StepState = "healthy"
	StepUnhealthy     StepState = "unhealthy"
)

// StepResult records how far one plan entry got
type StepResult struct {
	Component string
	State     StepState
	Attempts  int
	Detail    string
}

// Result is the outcome of executing a plan. Failed is nil when every
// entry reached Healthy; otherwise it names the entry the run halted on.
type Result struct {
	Steps  []StepResult
	Failed *types.ComponentIdentity
	Err    error
}

// CheckerFactory builds a component's declared health probe. Injected so
// tests drive the state machine with canned probes.
type CheckerFactory func(types.Component) (health.Checker, health.Budget, error)

// Executor applies an update plan one entry at a time, in plan order.
// Each entry walks Pending, Applying, HealthPolling, then Healthy or
// Unhealthy. The first Unhealthy entry halts the run: a component
// restarting can transiently break the chain behind it, so pressing on
// past a failure would stack unknowns on unknowns.
type Executor struct {
	rt       runtime.Client
	env      *environment.Environment
	checkers CheckerFactory
	logger   zerolog.Logger
}

// New creates an executor
func New(rt runtime.Client, env *environment.Environment, checkers CheckerFactory, logger zerolog.Logger) *Executor {
	return &Executor{
		rt:       rt,
		env:      env,
		checkers: checkers,
		logger:   logger,
	}
}

// Execute applies the plan sequentially. No concurrency between entries;
// the plan order is the dependency order.
func (e *Executor) Execute(ctx context.Context, plan types.UpdatePlan) Result {
	result := Result{}

	for i := range plan.Entries {
		entry := plan.Entries[i]
		step := e.apply(ctx, entry)
		result.Steps = append(result.Steps, step)

		if step.State != StepHealthy {
			result.Failed = &plan.Entries[i]
			if step.State == StepUnhealthy {
				result.Err = fmt.Errorf("%w: %s after %d attempts: %s",
					types.ErrStepUnhealthy, entry.Name, step.Attempts, step.Detail)
			} else {
				result.Err = fmt.Errorf("%w: %s: %s",
					types.ErrStepApplyFailed, entry.Name, step.Detail)
			}

			e.logger.Error().
				Str("component", entry.Name).
				Str("state", string(step.State)).
				Msg("update halted, later plan entries not applied")
			return result
		}
	}

	return result
}

// apply runs one plan entry through the step state machine
func (e *Executor) apply(ctx context.Context, entry types.ComponentIdentity) StepResult {
	step := StepResult{Component: entry.Name, State: StepPending}
	logger := e.logger.With().Str("component", entry.Name).Logger()

	comp, ok := e.env.Component(entry.Name)
	if !ok {
		step.Detail = "component not declared"
		return step
	}

	checker, budget, err := e.checkers(comp)
	if err != nil {
		step.Detail = err.Error()
		return step
	}

	step.State = StepApplying
	logger.Info().
		Str("from", entry.RunningDigest).
		Str("to", entry.LatestDigest).
		Msg("applying update")

	if err := e.rt.Stop(ctx, comp.Container, comp.StopTimeout); err != nil {
		step.Detail = fmt.Sprintf("stop failed: %v", err)
		return step
	}
	if err := e.rt.Start(ctx, comp.Container, comp.Image); err != nil {
		step.Detail = fmt.Sprintf("start failed: %v", err)
		return step
	}

	step.State = StepHealthPolling
	logger.Info().
		Int("budget", budget.Attempts).
		Dur("interval", budget.Interval).
		Msg("polling health")

	probe, attempts, healthy := health.Poll(ctx, checker, budget, logger)
	step.Attempts = attempts
	step.Detail = probe.Message

	if !healthy {
		step.State = StepUnhealthy
		return step
	}

	step.State = StepHealthy
	logger.Info().Int("attempts", attempts).Msg("component healthy on new artifact")
	return step
}
