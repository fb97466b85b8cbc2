package apikeyinfra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// RedisRateLimiter keeps one counter per key per wall-clock minute.
type RedisRateLimiter struct {
	client *redis.Client
	clock  kernel.Clock
}

func NewRedisRateLimiter(client *redis.Client, clock kernel.Clock) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, clock: clock}
}

var _ apikey.RateLimiter = (*RedisRateLimiter)(nil)

func (l *RedisRateLimiter) Allow(ctx context.Context, keyID string, perMinute int) (bool, error) {
	window := l.clock.Now().Unix() / 60
	key := fmt.Sprintf("ratelimit:apikey:%s:%d", keyID, window)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errx.Wrap(err, "rate limit check failed", errx.TypeUnavailable).
			WithDetail("key_id", keyID)
	}
	return incr.Val() <= int64(perMinute), nil
}

// MemoryRateLimiter is the single-process equivalent of RedisRateLimiter.
type MemoryRateLimiter struct {
	mu     sync.Mutex
	clock  kernel.Clock
	counts map[string]windowCount
}

type windowCount struct {
	window int64
	count  int
}

func NewMemoryRateLimiter(clock kernel.Clock) *MemoryRateLimiter {
	return &MemoryRateLimiter{clock: clock, counts: make(map[string]windowCount)}
}

var _ apikey.RateLimiter = (*MemoryRateLimiter)(nil)

func (l *MemoryRateLimiter) Allow(_ context.Context, keyID string, perMinute int) (bool, error) {
	window := l.clock.Now().Unix() / 60

	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.counts[keyID]
	if c.window != window {
		c = windowCount{window: window}
	}
	c.count++
	l.counts[keyID] = c
	return c.count <= perMinute, nil
}
