// Package session records metadata about issued tokens and maintains the
// refresh-token blacklist.
//
// The registry is advisory: access tokens are stateless and remain valid by
// signature alone until they expire, so registry entries exist for audit and
// bulk invalidation bookkeeping, not authorization. The blacklist, by
// contrast, is authoritative for refresh tokens — a rotated refresh token is
// blacklisted for its remaining lifetime and can never be exchanged again.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheUnavailable wraps Redis transport failures.
var ErrCacheUnavailable = errors.New("session: cache unavailable")

// suffixLen is how many trailing token characters key a registry entry.
// Long enough to be unique in practice, short enough to never reconstruct
// the token from the key.
const suffixLen = 10

// TokenSuffix returns the trailing fragment of a token used as its registry
// and blacklist key.
func TokenSuffix(token string) string {
	if len(token) <= suffixLen {
		return token
	}
	return token[len(token)-suffixLen:]
}

// Record is the metadata stored per issued token.
type Record struct {
	UserID    int64     `json:"user_id"`
	IP        string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	Refreshed bool      `json:"refreshed,omitempty"`
}

// Registry stores session records and the refresh blacklist in Redis.
type Registry struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRegistry creates a Registry. prefix namespaces all keys.
func NewRegistry(client redis.UniversalClient, prefix string) *Registry {
	return &Registry{redis: client, prefix: prefix}
}

// Register stores the record keyed by the token's suffix with a TTL equal
// to the token's remaining lifetime.
func (r *Registry) Register(ctx context.Context, token string, rec Record, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := r.sessionKey(rec.UserID, TokenSuffix(token))
	if err := r.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// List returns the live records for a user. Entries that expire mid-scan
// are skipped.
func (r *Registry) List(ctx context.Context, userID int64) ([]Record, error) {
	keys, err := r.scanKeys(ctx, r.sessionPattern(userID))
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		data, err := r.redis.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// InvalidateAll deletes every registry entry for the user and returns how
// many were removed. Invoked on password change and reset.
func (r *Registry) InvalidateAll(ctx context.Context, userID int64) (int64, error) {
	keys, err := r.scanKeys(ctx, r.sessionPattern(userID))
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := r.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return deleted, nil
}

// Blacklist marks a refresh token's suffix as spent for the given TTL.
// A non-positive TTL means the token is already past its natural expiry
// and needs no entry.
func (r *Registry) Blacklist(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	key := r.blacklistKey(TokenSuffix(token))
	if err := r.redis.Set(ctx, key, userID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// IsBlacklisted reports whether the token's suffix has been spent.
func (r *Registry) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	n, err := r.redis.Exists(ctx, r.blacklistKey(TokenSuffix(token))).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return n > 0, nil
}

func (r *Registry) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := r.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (r *Registry) sessionKey(userID int64, suffix string) string {
	return fmt.Sprintf("%suser_session:%d:%s", r.prefix, userID, suffix)
}

func (r *Registry) sessionPattern(userID int64) string {
	return fmt.Sprintf("%suser_session:%d:*", r.prefix, userID)
}

func (r *Registry) blacklistKey(suffix string) string {
	return fmt.Sprintf("%stoken_blacklist:%s", r.prefix, suffix)
}
