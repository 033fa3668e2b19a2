package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker probes a component by dialing a TCP address. Reachability is
// the whole check; whatever accepts the connection counts as alive.
// Timeout defaulting happens in ForComponent, so a zero value here means
// the dial only honors the context.
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	result := Result{CheckedAt: start}

	dialer := net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		result.Message = fmt.Sprintf("dial %s failed: %v", t.Address, err)
		result.Duration = time.Since(start)
		return result
	}
	conn.Close()

	result.Healthy = true
	result.Message = fmt.Sprintf("%s accepting connections", t.Address)
	result.Duration = time.Since(start)
	return result
}

func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}
