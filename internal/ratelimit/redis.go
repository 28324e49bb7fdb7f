package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements Limiter as a fixed window counter in Redis: at
// most limit requests per key per window, shared by every replica.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	owned  bool
}

// NewRedisLimiter wraps an existing client. Close does not close client.
func NewRedisLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// DialRedisLimiter parses url (redis://...), pings the server and returns a
// limiter that owns the connection.
func DialRedisLimiter(ctx context.Context, url, prefix string, limit int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: redis ping: %w", err)
	}
	l := NewRedisLimiter(client, prefix, limit, window)
	l.owned = true
	return l, nil
}

// Allow increments the counter for key in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := time.Now().UnixMilli() / l.window.Milliseconds()
	k := l.prefix + ":" + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.PExpire(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	return incr.Val() <= l.limit, nil
}

// Close closes the client when the limiter dialed it.
func (l *RedisLimiter) Close() error {
	if l.owned {
		return l.client.Close()
	}
	return nil
}
