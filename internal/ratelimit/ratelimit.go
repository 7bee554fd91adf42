// Package ratelimit counts attempts per key in fixed windows.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Limiter records one attempt for key and reports whether it is within
// the limit for the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type memory struct {
	limit  int
	window time.Duration
	hits   *cache.Cache
}

// NewMemory keeps counters in process memory. Counters of different
// replicas are independent.
func NewMemory(limit int, window time.Duration) Limiter {
	return &memory{limit: limit, window: window, hits: cache.New(window, 2*window)}
}

func (m *memory) Allow(_ context.Context, key string) (bool, error) {
	if err := m.hits.Add(key, 1, m.window); err == nil {
		return m.limit >= 1, nil
	}
	n, err := m.hits.IncrementInt(key, 1)
	if err != nil {
		// expired between Add and Increment
		m.hits.Set(key, 1, m.window)
		return m.limit >= 1, nil
	}
	return n <= m.limit, nil
}

// hitScript increments the counter and gives it a TTL when it has none,
// so a counter can never outlive its window.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

type redisLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedis shares counters through Redis, so the limit holds across
// replicas.
func NewRedis(client redis.UniversalClient, prefix string, limit int, window time.Duration) Limiter {
	return &redisLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

func (r *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := hitScript.Run(ctx, r.client, []string{r.prefix + key}, r.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("ratelimit: hit: %w", err)
	}
	return n <= int64(r.limit), nil
}
