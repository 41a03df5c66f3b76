// Package guard tracks consecutive failed logins per (identifier, IP) pair
// and locks the pair out once a threshold is reached. Keying on the pair
// rather than the identifier alone throttles single-IP spray attacks and
// distributed attacks on one account independently, without locking out
// legitimate users behind shared infrastructure.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by EnsureNotLocked once the failure budget for the
// pair is exhausted.
var ErrLocked = errors.New("guard: too many failed attempts")

// ErrCacheUnavailable wraps Redis transport failures.
var ErrCacheUnavailable = errors.New("guard: cache unavailable")

// Guard is the login-attempt counter. Safe for concurrent use.
type Guard struct {
	redis       redis.UniversalClient
	prefix      string
	maxAttempts int
	lockout     time.Duration
}

// New creates a Guard that locks a pair out for the lockout duration after
// maxAttempts consecutive failures.
func New(client redis.UniversalClient, prefix string, maxAttempts int, lockout time.Duration) *Guard {
	return &Guard{
		redis:       client,
		prefix:      prefix,
		maxAttempts: maxAttempts,
		lockout:     lockout,
	}
}

// Lockout reports the configured lockout window.
func (g *Guard) Lockout() time.Duration {
	return g.lockout
}

// Attempts returns the current failure count for the pair. A missing
// counter reads as zero and reveals nothing about account existence.
func (g *Guard) Attempts(ctx context.Context, identifier, ip string) (int64, error) {
	count, err := g.redis.Get(ctx, g.key(identifier, ip)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return count, nil
}

// EnsureNotLocked fails with ErrLocked when the pair has reached the
// failure threshold.
func (g *Guard) EnsureNotLocked(ctx context.Context, identifier, ip string) error {
	count, err := g.Attempts(ctx, identifier, ip)
	if err != nil {
		return err
	}
	if count >= int64(g.maxAttempts) {
		return ErrLocked
	}
	return nil
}

// RecordFailure increments the counter and re-arms its TTL, so every new
// failure extends the lockout window from now rather than from the first
// failure.
func (g *Guard) RecordFailure(ctx context.Context, identifier, ip string) error {
	key := g.key(identifier, ip)

	pipe := g.redis.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, g.lockout)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Reset deletes the counter. Called only after a fully successful
// authentication.
func (g *Guard) Reset(ctx context.Context, identifier, ip string) error {
	if err := g.redis.Del(ctx, g.key(identifier, ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (g *Guard) key(identifier, ip string) string {
	return fmt.Sprintf("%slogin_attempts:%s:%s", g.prefix, identifier, ip)
}
