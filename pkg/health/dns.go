package health

import (
	"context"
	"fmt"
	"time"

	"github.com/miekg/dns"
)

// Exchanger sends one DNS query and returns the response and round-trip
// time. *dns.Client satisfies it; tests substitute a canned responder.
type Exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error)
}

// DNSChecker probes a resolver with a functional query: the answer must
// come back NOERROR with at least one record. A resolver that accepts
// connections but cannot resolve is not healthy.
type DNSChecker struct {
	// Address is the resolver address (host:port)
	Address string

	// Domain is the name to resolve
	Domain string

	// Timeout bounds the query
	Timeout time.Duration

	// Exchange performs the query; defaults to a UDP dns.Client
	Exchange Exchanger
}

// NewDNSChecker creates a DNS functional-query checker
func NewDNSChecker(address, domain string) *DNSChecker {
	return &DNSChecker{
		Address:  address,
		Domain:   domain,
		Timeout:  5 * time.Second,
		Exchange: &dns.Client{Timeout: 5 * time.Second},
	}
}

// Check performs the DNS health check
func (d *DNSChecker) Check(ctx context.Context) Result {
	start := time.Now()

	queryCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(d.Domain), dns.TypeA)
	msg.RecursionDesired = true

	resp, rtt, err := d.Exchange.ExchangeContext(queryCtx, msg, d.Address)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("query failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if resp.Rcode != dns.RcodeSuccess {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("rcode %s for %s", dns.RcodeToString[resp.Rcode], d.Domain),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if len(resp.Answer) == 0 {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("empty answer for %s", d.Domain),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("resolved %s in %v", d.Domain, rtt),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (d *DNSChecker) Type() CheckType {
	return CheckTypeDNS
}

// WithTimeout sets the query timeout
func (d *DNSChecker) WithTimeout(timeout time.Duration) *DNSChecker {
	d.Timeout = timeout
	if c, ok := d.Exchange.(*dns.Client); ok {
		c.Timeout = timeout
	}
	return d
}
