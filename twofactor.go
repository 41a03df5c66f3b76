package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kanenguyen264/library-management-sub001/internal/audit"
	"github.com/kanenguyen264/library-management-sub001/token"
)

const (
	twoFactorFailWindow         = 5 * time.Minute
	twoFactorFailAlertThreshold = 3
)

// VerifyTwoFactor completes a login that Authenticate deferred to a
// two-factor challenge. tempToken is the short-lived token from the
// challenge result; code is the authenticator app code.
func (s *Service) VerifyTwoFactor(ctx context.Context, tempToken, code string, meta RequestMeta) (*AuthResult, error) {
	if err := s.throttle(ctx, meta.IP, "2fa_verify", s.cfg.RateLimits.TwoFactor); err != nil {
		if errors.Is(err, ErrRateLimited) {
			s.emitAudit(ctx, audit.Event{
				EventType: audit.EventRateLimited,
				IP:        meta.IP,
				UserAgent: meta.UserAgent,
				Details:   map[string]string{"action": "2fa_verify"},
			})
		}
		return nil, err
	}

	claims, err := s.codec.Decode(tempToken, token.KindTwoFactorTemp)
	if err != nil {
		s.metrics.Inc(MetricTwoFactorFailure)
		s.emitAudit(ctx, audit.Event{
			EventType: audit.EventTwoFactor,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			Error:     err.Error(),
		})
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrTokenInvalid
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	// A temp token only means anything for an account that still has an
	// active two-factor enrollment.
	if !user.IsActive || !user.TwoFactorEnabled || user.TwoFactorSecret == "" {
		return nil, ErrTokenInvalid
	}

	failKey := fmt.Sprintf("2fa_fail:%d", user.ID)

	if !s.totp.VerifyCode(user.TwoFactorSecret, code, s.now()) {
		count := s.bumpSideCounter(ctx, failKey, twoFactorFailWindow)
		if count >= twoFactorFailAlertThreshold {
			s.alert(ctx, Alert{
				Title:    "Repeated bad two-factor codes",
				Message:  fmt.Sprintf("user %d failed two-factor verification %d times from %s", user.ID, count, meta.IP),
				Severity: SeverityWarning,
				Tags:     []string{"two_factor"},
			})
		}
		s.metrics.Inc(MetricTwoFactorFailure)
		s.emitAudit(ctx, audit.Event{
			EventType: audit.EventTwoFactor,
			UserID:    user.ID,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			Error:     "invalid code",
		})
		return nil, ErrInvalidCode
	}

	s.clearCounter(ctx, failKey)
	s.finishLogin(ctx, user)

	access, refresh, err := s.issueTokens(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricTwoFactorSuccess)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventTwoFactor,
		UserID:    user.ID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
	})

	return &AuthResult{
		User:         NewUserView(user),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
