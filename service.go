// Package auth implements the authentication and session-security layer of
// the platform: password and social login, two-factor verification, token
// refresh with rotation, registration, email verification, and password
// reset and change. State that must be shared between instances (rate
// windows, lockout counters, session records, the refresh blacklist) lives
// in Redis; user records live behind the UserStore interface.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kanenguyen264/library-management-sub001/internal/audit"
	"github.com/kanenguyen264/library-management-sub001/internal/guard"
	"github.com/kanenguyen264/library-management-sub001/internal/rate"
	"github.com/kanenguyen264/library-management-sub001/password"
	"github.com/kanenguyen264/library-management-sub001/session"
	"github.com/kanenguyen264/library-management-sub001/token"
)

// Service is the authentication orchestrator. Construct it with a Builder;
// the zero value is not usable. Safe for concurrent use.
type Service struct {
	cfg Config

	redis    redis.UniversalClient
	users    UserStore
	socials  SocialProfileStore
	notifier NotificationSink
	alerts   AlertSink

	codec    *token.Codec
	hasher   *password.Hasher
	limiter  *rate.Limiter
	guard    *guard.Guard
	sessions *session.Registry
	totp     *totpVerifier

	metrics *Metrics
	auditor *audit.Dispatcher
	logger  *slog.Logger
	now     func() time.Time
}

// RequestMeta carries the client context every flow records: the caller IP
// keys rate limits and lockouts, the user agent goes into session records
// and audit events.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// throttle charges one unit against the actor's fixed-window budget for the
// action and fails with a RateLimitError once the budget is exceeded.
func (s *Service) throttle(ctx context.Context, actor, action string, rl RateLimit) error {
	count, resetAt, err := s.limiter.Allow(ctx, actor, action, rl.Window)
	if err != nil {
		return err
	}
	if count > int64(rl.Limit) {
		return &RateLimitError{RetryAfter: resetAt.Sub(s.now())}
	}
	return nil
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	s.auditor.Emit(ctx, event)
}

// notify delivers a user notification best-effort. Delivery failures are
// logged and never fail the flow.
func (s *Service) notify(ctx context.Context, n Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.WarnContext(ctx, "notification delivery failed",
			slog.Int64("user_id", n.UserID),
			slog.String("kind", n.Kind),
			slog.Any("error", err),
		)
	}
}

// alert raises a security alert best-effort.
func (s *Service) alert(ctx context.Context, a Alert) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Alert(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("title", a.Title),
			slog.Any("error", err),
		)
	}
}

// bumpSideCounter increments a plain Redis counter used for abuse
// heuristics and returns the new value. The TTL is armed on first
// increment. Counter failures degrade to zero, heuristics must not take an
// outage down with them.
func (s *Service) bumpSideCounter(ctx context.Context, key string, ttl time.Duration) int64 {
	full := s.cfg.RedisPrefix + key
	count, err := s.redis.Incr(ctx, full).Result()
	if err != nil {
		s.logger.WarnContext(ctx, "side counter unavailable", slog.String("key", key), slog.Any("error", err))
		return 0
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, full, ttl).Err(); err != nil {
			s.logger.WarnContext(ctx, "side counter expire failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return count
}

func (s *Service) clearCounter(ctx context.Context, key string) {
	if err := s.redis.Del(ctx, s.cfg.RedisPrefix+key).Err(); err != nil {
		s.logger.WarnContext(ctx, "side counter delete failed", slog.String("key", key), slog.Any("error", err))
	}
}

// randomToken returns n bytes of entropy as a url-safe string.
func randomToken(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// issueTokens creates an access/refresh pair for the user and registers the
// access session.
func (s *Service) issueTokens(ctx context.Context, user *UserRecord, meta RequestMeta) (string, string, error) {
	access, err := s.codec.CreateAccess(user.ID, user.Username, user.Email, user.IsPremium, meta.IP)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.codec.CreateRefresh(user.ID)
	if err != nil {
		return "", "", err
	}

	rec := session.Record{
		UserID:    user.ID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		CreatedAt: s.now(),
	}
	if err := s.sessions.Register(ctx, access, rec, s.cfg.Token.AccessTTL); err != nil {
		// The registry is advisory; a write failure loses bookkeeping, not
		// the login.
		s.logger.WarnContext(ctx, "session registration failed",
			slog.Int64("user_id", user.ID),
			slog.Any("error", err),
		)
	} else {
		s.metrics.Inc(MetricSessionCreated)
	}

	return access, refresh, nil
}

// Sessions lists the live session records for a user.
func (s *Service) Sessions(ctx context.Context, userID int64) ([]session.Record, error) {
	return s.sessions.List(ctx, userID)
}

// InvalidateSessions removes every session record for a user and reports
// how many were removed.
func (s *Service) InvalidateSessions(ctx context.Context, userID int64) (int64, error) {
	deleted, err := s.sessions.InvalidateAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.metrics.Add(MetricSessionsInvalidated, uint64(deleted))
	return deleted, nil
}

// MetricsSnapshot copies the outcome counters.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// AuditDropped reports how many audit events were shed under backpressure.
func (s *Service) AuditDropped() uint64 {
	return s.auditor.Dropped()
}

// Close flushes the audit dispatcher. The Redis client and stores are owned
// by the caller and stay open.
func (s *Service) Close() {
	s.auditor.Close()
}
