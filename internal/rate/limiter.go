// Package rate implements the fixed-window rate limiter shared by every
// authentication endpoint. Counters live in Redis with a TTL equal to the
// remaining window, so horizontally scaled instances share one budget.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable wraps Redis transport failures so callers can
// distinguish an outage from an exceeded budget.
var ErrCacheUnavailable = errors.New("rate: cache unavailable")

// Limiter counts requests per (actor, action) pair in fixed windows.
// The window is floor(now/window)*window; bursts straddling a window
// boundary are an accepted tradeoff of the fixed-window algorithm.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// New creates a Limiter. prefix namespaces all keys and may be empty.
func New(client redis.UniversalClient, prefix string) *Limiter {
	return &Limiter{
		redis:  client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow increments the counter for the current window and returns the
// post-increment count plus the absolute time at which the window resets.
// Callers compare count against their limit; the limiter itself never
// rejects.
func (l *Limiter) Allow(ctx context.Context, actor, action string, window time.Duration) (int64, time.Time, error) {
	now := l.now()
	period := int64(window / time.Second)
	if period <= 0 {
		period = 1
	}
	windowStart := now.Unix() / period * period
	resetAt := time.Unix(windowStart+period, 0)

	key := fmt.Sprintf("%srate_limit:%s:%s:%d", l.prefix, actor, action, windowStart)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	// First hit in the window creates the key; pin its TTL to the window
	// remainder. The window start is part of the key, so a lost EXPIRE can
	// at worst leave a stale counter behind, never extend a window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, resetAt.Sub(now)).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
	}

	return count, resetAt, nil
}
