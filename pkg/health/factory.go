package health

import (
	"fmt"
	"time"

	"github.com/drvig/updns/pkg/runtime"
	"github.com/drvig/updns/pkg/types"
)

// DefaultProbeTimeout bounds a single probe invocation when the component
// declaration leaves the timeout unset
const DefaultProbeTimeout = 5 * time.Second

// ForComponent builds the declared health probe for a component. Probe
// choice and budget come from the component declaration, never from the
// component's type. Timeout defaulting is centralized here so individual
// checkers stay plain values.
func ForComponent(comp types.Component, rt runtime.Client) (Checker, Budget, error) {
	budget := Budget{
		Attempts: comp.Probe.Attempts,
		Interval: comp.Probe.Interval,
	}

	timeout := comp.Probe.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	switch comp.Probe.Type {
	case types.ProbeTypeExec:
		checker := NewExecChecker(rt, comp.Container, comp.Probe.Command).
			WithTimeout(timeout).
			WithExpect(comp.Probe.Expect)
		return checker, budget, nil

	case types.ProbeTypeTCP:
		return &TCPChecker{Address: comp.Probe.Address, Timeout: timeout}, budget, nil

	case types.ProbeTypeDNS:
		return NewDNSChecker(comp.Probe.Address, comp.Probe.Domain).WithTimeout(timeout), budget, nil

	case types.ProbeTypeRedis:
		return NewRedisChecker(comp.Probe.Address).WithTimeout(timeout), budget, nil

	default:
		return nil, Budget{}, fmt.Errorf("component %s: unknown probe type %q", comp.Name, comp.Probe.Type)
	}
}
