// Package ratelimit throttles requests per key.
//
// MemoryLimiter keeps a token bucket per key in process and suits a single
// replica. RedisLimiter counts fixed windows in Redis so every replica shares
// one budget.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. The key is opaque;
	// callers build it (e.g. "login:<ip>", "write:<user id>"). An error means
	// the limiter itself failed and callers fail open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases resources (cleanup goroutines, connections).
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
