package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChecker probes the shared cache with a PING. Reachability is the
// contract here; the cache holds no state worth a functional query.
type RedisChecker struct {
	// Address is the cache address (host:port)
	Address string

	// Timeout bounds the ping
	Timeout time.Duration
}

// NewRedisChecker creates a cache reachability checker
func NewRedisChecker(address string) *RedisChecker {
	return &RedisChecker{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// Check performs the cache ping
func (r *RedisChecker) Check(ctx context.Context) Result {
	start := time.Now()

	client := redis.NewClient(&redis.Options{
		Addr:        r.Address,
		DialTimeout: r.Timeout,
		ReadTimeout: r.Timeout,
	})
	defer client.Close()

	pingCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("ping failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("cache at %s responded to ping", r.Address),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (r *RedisChecker) Type() CheckType {
	return CheckTypeRedis
}

// WithTimeout sets the ping timeout
func (r *RedisChecker) WithTimeout(timeout time.Duration) *RedisChecker {
	r.Timeout = timeout
	return r
}
