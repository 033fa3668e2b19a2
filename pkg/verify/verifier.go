package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"

	"github.com/drvig/updns/pkg/environment"
	"github.com/drvig/updns/pkg/health"
	"github.com/drvig/updns/pkg/metrics"
	"github.com/drvig/updns/pkg/types"
)

// Named sub-checks. All but the latency sample gate the verdict.
const (
	CheckComponents = "components-healthy"
	CheckResolution = "resolution"
	CheckBlocking   = "blocking"
	CheckLatency    = "latency-sample"
)

// CheckResult is the outcome of one named sub-check
type CheckResult struct {
	Name   string
	Passed bool
	Detail string
}

// Result is the verifier's verdict. Failed is true when any gating check
// failed; FailedCheck names the first one.
type Result struct {
	Checks      []CheckResult
	Failed      bool
	FailedCheck string
	Latency     time.Duration
}

// ProbeFactory builds a component's declared health probe
type ProbeFactory func(types.Component) (health.Checker, health.Budget, error)

// Verifier checks that the deployed stack produces correct externally
// observable behavior, not merely that processes are up: a functional
// query must resolve through the whole chain and a known-blocked domain
// must come back with the nullroute sentinel.
type Verifier struct {
	env      *environment.Environment
	probes   ProbeFactory
	exchange health.Exchanger
	logger   zerolog.Logger
}

// New creates a verifier. exchange defaults to a UDP DNS client when nil.
func New(env *environment.Environment, probes ProbeFactory, exchange health.Exchanger, logger zerolog.Logger) *Verifier {
	if exchange == nil {
		exchange = &dns.Client{Timeout: 5 * time.Second}
	}
	return &Verifier{
		env:      env,
		probes:   probes,
		exchange: exchange,
		logger:   logger,
	}
}

// Verify runs the full check set: component health, functional
// resolution, blocked-domain sentinel, and an informational latency
// sample. The latency sample never gates the verdict; absolute latency
// depends on the environment.
func (v *Verifier) Verify(ctx context.Context) Result {
	result := Result{}

	v.runCheck(ctx, &result, CheckComponents, v.checkComponents)
	v.runCheck(ctx, &result, CheckResolution, v.checkResolution(&result))
	v.runCheck(ctx, &result, CheckBlocking, v.checkBlocking)

	latency := CheckResult{Name: CheckLatency, Passed: true}
	if result.Latency > 0 {
		latency.Detail = fmt.Sprintf("resolution latency %v", result.Latency)
		metrics.ResolutionLatency.Observe(result.Latency.Seconds())
	} else {
		latency.Detail = "no latency sample taken"
	}
	result.Checks = append(result.Checks, latency)

	return result
}

// Smoke runs only the component-health and functional-resolution checks.
// Used after a rollback to confirm the restored state serves again; the
// blocking check is part of full verification only.
func (v *Verifier) Smoke(ctx context.Context) Result {
	result := Result{}

	v.runCheck(ctx, &result, CheckComponents, v.checkComponents)
	v.runCheck(ctx, &result, CheckResolution, v.checkResolution(&result))

	return result
}

type checkFunc func(ctx context.Context) (string, error)

func (v *Verifier) runCheck(ctx context.Context, result *Result, name string, fn checkFunc) {
	if result.Failed {
		// First failure decides the verdict; later checks would probe a
		// system already known bad
		return
	}

	detail, err := fn(ctx)
	check := CheckResult{Name: name, Passed: err == nil, Detail: detail}
	if err != nil {
		check.Detail = err.Error()
		result.Failed = true
		result.FailedCheck = name
		v.logger.Error().Str("check", name).Err(err).Msg("verification check failed")
	} else {
		v.logger.Info().Str("check", name).Str("detail", detail).Msg("verification check passed")
	}

	result.Checks = append(result.Checks, check)
}

// checkComponents polls every component's declared probe within its
// budget. Budgets matter here: after a rollback restart, components get
// the same startup grace they get during updates.
func (v *Verifier) checkComponents(ctx context.Context) (string, error) {
	for _, comp := range v.env.ByRank() {
		checker, budget, err := v.probes(comp)
		if err != nil {
			return "", err
		}

		probe, attempts, healthy := health.Poll(ctx, checker, budget,
			v.logger.With().Str("component", comp.Name).Logger())
		if !healthy {
			return "", fmt.Errorf("component %s unhealthy after %d attempts: %s",
				comp.Name, attempts, probe.Message)
		}
	}

	return fmt.Sprintf("all %d components healthy", len(v.env.Components)), nil
}

// checkResolution issues a functional query through the stack entry point
// and records its round-trip time as the latency sample
func (v *Verifier) checkResolution(result *Result) checkFunc {
	return func(ctx context.Context) (string, error) {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(v.env.TestDomain), dns.TypeA)
		msg.RecursionDesired = true

		resp, rtt, err := v.exchange.ExchangeContext(ctx, msg, v.env.Entrypoint)
		if err != nil {
			return "", fmt.Errorf("query for %s failed: %w", v.env.TestDomain, err)
		}
		if resp.Rcode != dns.RcodeSuccess {
			return "", fmt.Errorf("query for %s returned %s", v.env.TestDomain, dns.RcodeToString[resp.Rcode])
		}
		if len(resp.Answer) == 0 {
			return "", fmt.Errorf("query for %s returned no answers", v.env.TestDomain)
		}

		result.Latency = rtt
		return fmt.Sprintf("%s resolved in %v", v.env.TestDomain, rtt), nil
	}
}

// checkBlocking queries a known-ad domain and requires the nullroute
// sentinel answer. An upstream answer leaking through means the blocker
// is not actually filtering.
func (v *Verifier) checkBlocking(ctx context.Context) (string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(v.env.BlockedDomain), dns.TypeA)
	msg.RecursionDesired = true

	resp, _, err := v.exchange.ExchangeContext(ctx, msg, v.env.Entrypoint)
	if err != nil {
		return "", fmt.Errorf("query for %s failed: %w", v.env.BlockedDomain, err)
	}

	if v.env.Nullroute == "" {
		if resp.Rcode == dns.RcodeNameError {
			return fmt.Sprintf("%s blocked with NXDOMAIN", v.env.BlockedDomain), nil
		}
		return "", fmt.Errorf("%s not blocked: rcode %s", v.env.BlockedDomain, dns.RcodeToString[resp.Rcode])
	}

	for _, rr := range resp.Answer {
		switch a := rr.(type) {
		case *dns.A:
			if a.A.String() == v.env.Nullroute {
				return fmt.Sprintf("%s answered with nullroute %s", v.env.BlockedDomain, v.env.Nullroute), nil
			}
		case *dns.AAAA:
			if a.AAAA.String() == v.env.Nullroute {
				return fmt.Sprintf("%s answered with nullroute %s", v.env.BlockedDomain, v.env.Nullroute), nil
			}
		}
	}

	return "", fmt.Errorf("%s not blocked: no %s answer", v.env.BlockedDomain, v.env.Nullroute)
}
