package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kanenguyen264/library-management-sub001/internal/audit"
	"github.com/kanenguyen264/library-management-sub001/internal/guard"
)

// Authenticate verifies an identifier/password pair and issues tokens.
// The identifier is an email when it contains '@', a username otherwise.
//
// When the account has two-factor enabled the result carries
// TwoFactorRequired and a short-lived temp token instead of the pair; the
// login completes in VerifyTwoFactor.
func (s *Service) Authenticate(ctx context.Context, identifier, pw string, meta RequestMeta) (*AuthResult, error) {
	if err := s.throttle(ctx, meta.IP, "login", s.cfg.RateLimits.Login); err != nil {
		if errors.Is(err, ErrRateLimited) {
			s.metrics.Inc(MetricLoginRateLimited)
			s.emitAudit(ctx, audit.Event{
				EventType: audit.EventRateLimited,
				IP:        meta.IP,
				UserAgent: meta.UserAgent,
				Details:   map[string]string{"action": "login"},
			})
		}
		return nil, err
	}

	if err := s.guard.EnsureNotLocked(ctx, identifier, meta.IP); err != nil {
		if errors.Is(err, guard.ErrLocked) {
			s.metrics.Inc(MetricLoginLockout)
			s.alert(ctx, Alert{
				Title:    "Login lockout triggered",
				Message:  fmt.Sprintf("identifier %q locked out from %s after repeated failures", identifier, meta.IP),
				Severity: SeverityWarning,
				Tags:     []string{"login", "lockout"},
			})
			s.emitAudit(ctx, audit.Event{
				EventType: audit.EventAuthFailure,
				IP:        meta.IP,
				UserAgent: meta.UserAgent,
				Error:     "locked out",
			})
			return nil, &RateLimitError{RetryAfter: s.guard.Lockout()}
		}
		return nil, err
	}

	user, err := s.lookupByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn a hash computation so an unknown identifier costs the
			// same as a wrong password.
			s.hasher.DummyVerify(pw)
			s.recordLoginFailure(ctx, identifier, meta, 0, "unknown identifier")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		s.recordLoginFailure(ctx, identifier, meta, user.ID, "account disabled")
		return nil, ErrAccountDisabled
	}

	if !s.hasher.Verify(pw, user.PasswordHash) {
		s.recordLoginFailure(ctx, identifier, meta, user.ID, "wrong password")
		return nil, ErrInvalidCredentials
	}

	if err := s.guard.Reset(ctx, identifier, meta.IP); err != nil {
		s.logger.WarnContext(ctx, "lockout counter reset failed",
			slog.Int64("user_id", user.ID), slog.Any("error", err))
	}

	if user.TwoFactorEnabled && user.TwoFactorSecret != "" {
		temp, err := s.codec.CreateTwoFactorTemp(user.ID)
		if err != nil {
			return nil, err
		}
		s.metrics.Inc(MetricTwoFactorChallenge)
		s.emitAudit(ctx, audit.Event{
			EventType: audit.EventAuthSuccess,
			UserID:    user.ID,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			Success:   true,
			Details:   map[string]string{"stage": "two_factor_pending"},
		})
		return &AuthResult{
			User:              NewUserView(user),
			TwoFactorRequired: true,
			TwoFactorToken:    temp,
		}, nil
	}

	s.finishLogin(ctx, user)
	s.maybeUpgradeHash(ctx, user, pw)

	access, refresh, err := s.issueTokens(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricLoginSuccess)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventAuthSuccess,
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

func (s *Service) lookupByIdentifier(ctx context.Context, identifier string) (*UserRecord, error) {
	if strings.Contains(identifier, "@") {
		return s.users.GetByEmail(ctx, identifier)
	}
	return s.users.GetByUsername(ctx, identifier)
}

func (s *Service) recordLoginFailure(ctx context.Context, identifier string, meta RequestMeta, userID int64, reason string) {
	if err := s.guard.RecordFailure(ctx, identifier, meta.IP); err != nil {
		s.logger.WarnContext(ctx, "lockout counter update failed",
			slog.String("identifier", identifier), slog.Any("error", err))
	}
	s.metrics.Inc(MetricLoginFailure)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventAuthFailure,
		UserID:    userID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Error:     reason,
	})
}

// finishLogin stamps the last-login time, best-effort.
func (s *Service) finishLogin(ctx context.Context, user *UserRecord) {
	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.WarnContext(ctx, "last-login update failed",
			slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
}

// maybeUpgradeHash transparently re-hashes the verified password when the
// stored hash was produced under weaker cost parameters. Best-effort; only
// password login still holds the plaintext needed for the upgrade.
func (s *Service) maybeUpgradeHash(ctx context.Context, user *UserRecord, pw string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	upgraded, err := s.hasher.Hash(pw)
	if err == nil {
		err = s.users.UpdatePasswordHash(ctx, user.ID, upgraded)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "hash parameter upgrade failed",
			slog.Int64("user_id", user.ID), slog.Any("error", err))
		return
	}
	user.PasswordHash = upgraded
}
