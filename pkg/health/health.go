package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CheckType represents the type of health probe
type CheckType string

const (
	CheckTypeExec  CheckType = "exec"
	CheckTypeTCP   CheckType = "tcp"
	CheckTypeDNS   CheckType = "dns"
	CheckTypeRedis CheckType = "redis"
)

// Result represents the outcome of a single probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface all health probes implement
type Checker interface {
	// Check performs the probe and returns the result
	Check(ctx context.Context) Result

	// Type returns the probe type
	Type() CheckType
}

// Budget bounds a health poll: at most Attempts probes, Interval apart.
// There is no unbounded wait; a drained budget is a terminal answer.
type Budget struct {
	Attempts int
	Interval time.Duration
}

// Poll probes until the first healthy result or the budget drains.
// Returns the last result, the number of attempts spent, and whether the
// component came up healthy.
func Poll(ctx context.Context, checker Checker, budget Budget, logger zerolog.Logger) (Result, int, bool) {
	attempts := budget.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var last Result
	for i := 1; i <= attempts; i++ {
		last = checker.Check(ctx)
		if last.Healthy {
			logger.Debug().
				Int("attempt", i).
				Str("probe", string(checker.Type())).
				Msg("probe healthy")
			return last, i, true
		}

		logger.Debug().
			Int("attempt", i).
			Int("budget", attempts).
			Str("probe", string(checker.Type())).
			Str("detail", last.Message).
			Msg("probe not healthy yet")

		if i == attempts {
			break
		}

		select {
		case <-time.After(budget.Interval):
		case <-ctx.Done():
			last.Message = ctx.Err().Error()
			return last, i, false
		}
	}

	return last, attempts, false
}
