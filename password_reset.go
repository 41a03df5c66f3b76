package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kanenguyen264/library-management-sub001/internal/audit"
	"github.com/redis/go-redis/v9"
)

const (
	invalidResetWindow         = time.Hour
	invalidResetAlertThreshold = 5
)

// RequestPasswordReset stores a fresh reset token on the account. The
// response never reveals whether the email is registered: unknown emails,
// capped emails, and stored tokens all return nil.
func (s *Service) RequestPasswordReset(ctx context.Context, email, ip string) error {
	if err := s.throttle(ctx, ip, "password_reset_request", s.cfg.RateLimits.ResetRequest); err != nil {
		return err
	}

	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return ErrInvalidInput
	}

	capKey := "reset_count:" + email
	if count := s.readCounter(ctx, capKey); count >= int64(s.cfg.RateLimits.PerEmailResetCap) {
		// Silently absorbed so the throttle state is as unobservable as
		// account existence.
		return nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}

	resetToken, err := randomToken(s.cfg.Tokens.Bytes)
	if err != nil {
		return err
	}
	if err := s.users.SetResetToken(ctx, user.ID, resetToken, s.now().Add(s.cfg.Tokens.ResetTTL)); err != nil {
		return err
	}
	s.bumpSideCounter(ctx, capKey, s.cfg.RateLimits.PerEmailResetWindow)

	s.metrics.Inc(MetricResetRequested)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventPasswordReset,
		UserID:    user.ID,
		IP:        ip,
		Success:   true,
		Details:   map[string]string{"stage": "requested"},
	})
	s.notify(ctx, Notification{
		UserID:  user.ID,
		Kind:    NotificationSecurity,
		Title:   "Password reset requested",
		Message: "A password reset was requested for your account. If this was not you, you can ignore this message.",
	})

	return nil
}

// ResetPassword consumes a reset token and replaces the password. All
// existing sessions are invalidated. Unknown and expired tokens are both
// ErrNotFound.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword, ip string) error {
	if err := s.throttle(ctx, ip, "password_reset", s.cfg.RateLimits.ResetPerform); err != nil {
		return err
	}
	if err := s.cfg.Policy.CheckPassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return s.invalidResetToken(ctx, ip, "unknown token")
		}
		return err
	}
	if user.ResetExpires == nil || s.now().After(*user.ResetExpires) {
		return s.invalidResetToken(ctx, ip, "expired token")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	// UpdatePasswordHash also clears the reset token, making it single-use.
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}

	if _, err := s.InvalidateSessions(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "session invalidation after reset failed",
			slog.Int64("user_id", user.ID), slog.Any("error", err))
	}

	s.metrics.Inc(MetricResetSuccess)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventPasswordReset,
		UserID:    user.ID,
		IP:        ip,
		Success:   true,
		Details:   map[string]string{"stage": "completed"},
	})
	s.notify(ctx, Notification{
		UserID:  user.ID,
		Kind:    NotificationSecurity,
		Title:   "Password changed",
		Message: "Your password was reset. All active sessions have been signed out.",
	})

	return nil
}

// invalidResetToken records the failed attempt, tracks probing per IP, and
// returns the uniform ErrNotFound.
func (s *Service) invalidResetToken(ctx context.Context, ip, reason string) error {
	count := s.bumpSideCounter(ctx, "invalid_reset:"+ip, invalidResetWindow)
	if count > invalidResetAlertThreshold {
		s.alert(ctx, Alert{
			Title:    "Password reset token probing",
			Message:  fmt.Sprintf("%d invalid reset tokens from %s in the last hour", count, ip),
			Severity: SeverityWarning,
			Tags:     []string{"password_reset", "probing"},
		})
	}
	s.metrics.Inc(MetricResetFailure)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventPasswordReset,
		IP:        ip,
		Error:     reason,
	})
	return ErrNotFound
}

// readCounter reads a side counter without charging it. Missing keys and
// cache outages both read as zero.
func (s *Service) readCounter(ctx context.Context, key string) int64 {
	count, err := s.redis.Get(ctx, s.cfg.RedisPrefix+key).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WarnContext(ctx, "side counter unavailable", slog.String("key", key), slog.Any("error", err))
		}
		return 0
	}
	return count
}
