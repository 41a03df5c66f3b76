package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kanenguyen264/library-management-sub001/internal/audit"
)

const (
	passwordChangeFailWindow          = time.Hour
	passwordChangeFailNotifyThreshold = 3
)

// ChangePassword replaces the password of an authenticated user after
// re-verifying the current one. All existing sessions are invalidated so a
// stolen token does not survive the change.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword, ip string) error {
	if err := s.throttle(ctx, ip, "password_change", s.cfg.RateLimits.PasswordChange); err != nil {
		return err
	}
	if err := s.cfg.Policy.CheckPassword(newPassword); err != nil {
		return err
	}
	if newPassword == currentPassword {
		return ErrPasswordReuse
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}

	failKey := fmt.Sprintf("password_change_fail:%d", user.ID)

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		count := s.bumpSideCounter(ctx, failKey, passwordChangeFailWindow)
		if count >= passwordChangeFailNotifyThreshold {
			s.notify(ctx, Notification{
				UserID:  user.ID,
				Kind:    NotificationSecurity,
				Title:   "Password change attempts",
				Message: "Someone repeatedly tried to change your password with a wrong current password.",
			})
		}
		s.metrics.Inc(MetricPasswordChangeFailure)
		s.emitAudit(ctx, audit.Event{
			EventType: audit.EventPasswordChange,
			UserID:    user.ID,
			IP:        ip,
			Error:     "wrong current password",
		})
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}

	if _, err := s.InvalidateSessions(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "session invalidation after password change failed",
			slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	s.clearCounter(ctx, failKey)

	s.metrics.Inc(MetricPasswordChangeSuccess)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventPasswordChange,
		UserID:    user.ID,
		IP:        ip,
		Success:   true,
	})
	s.notify(ctx, Notification{
		UserID:  user.ID,
		Kind:    NotificationSecurity,
		Title:   "Password changed",
		Message: "Your password was changed. All active sessions have been signed out.",
	})

	return nil
}
