package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kanenguyen264/library-management-sub001/internal/audit"
	"github.com/kanenguyen264/library-management-sub001/token"
)

// failedRefreshWindow bounds the per-IP bad-refresh heuristic counter.
const failedRefreshWindow = time.Hour

// failedRefreshAlertThreshold is how many bad refresh tokens from one IP in
// the window trigger a probing alert.
const failedRefreshAlertThreshold = 5

// Refresh exchanges a valid refresh token for a fresh access/refresh pair.
// The presented token is blacklisted for its remaining lifetime before the
// new pair is issued, so each refresh token is exchangeable exactly once
// and replaying a rotated token fails with ErrTokenInvalid.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*AuthResult, error) {
	if err := s.throttle(ctx, meta.IP, "token_refresh", s.cfg.RateLimits.Refresh); err != nil {
		if errors.Is(err, ErrRateLimited) {
			s.metrics.Inc(MetricRefreshRateLimited)
			s.emitAudit(ctx, audit.Event{
				EventType: audit.EventRateLimited,
				IP:        meta.IP,
				UserAgent: meta.UserAgent,
				Details:   map[string]string{"action": "token_refresh"},
			})
		}
		return nil, err
	}

	claims, err := s.codec.Decode(refreshToken, token.KindRefresh)
	if err != nil {
		s.recordRefreshProbe(ctx, meta, err.Error())
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		s.recordRefreshProbe(ctx, meta, "bad subject")
		return nil, ErrTokenInvalid
	}

	spent, err := s.sessions.IsBlacklisted(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if spent {
		s.metrics.Inc(MetricRefreshReuseBlocked)
		s.alert(ctx, Alert{
			Title:    "Rotated refresh token replayed",
			Message:  fmt.Sprintf("user %d presented an already-exchanged refresh token from %s", userID, meta.IP),
			Severity: SeverityCritical,
			Tags:     []string{"refresh", "token_reuse"},
		})
		s.emitAudit(ctx, audit.Event{
			EventType: audit.EventTokenRefresh,
			UserID:    userID,
			IP:        meta.IP,
			UserAgent: meta.UserAgent,
			Error:     "blacklisted token",
		})
		return nil, ErrTokenInvalid
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.refreshFailure(ctx, userID, meta, "unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		s.refreshFailure(ctx, userID, meta, "account disabled")
		return nil, ErrInvalidCredentials
	}

	// Spend the presented token before issuing its replacement; crashing
	// between the two steps loses a refresh, never doubles one.
	remaining := claims.ExpiresAt.Time.Sub(s.now())
	if err := s.sessions.Blacklist(ctx, refreshToken, userID, remaining); err != nil {
		return nil, err
	}

	access, refresh, err := s.issueTokens(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastActive(ctx, user.ID, s.now()); err != nil {
		s.logger.WarnContext(ctx, "last-active update failed",
			slog.Int64("user_id", user.ID), slog.Any("error", err))
	}

	s.metrics.Inc(MetricRefreshSuccess)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventTokenRefresh,
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

// recordRefreshProbe tracks undecodable refresh tokens per IP and alerts
// when one address keeps presenting garbage.
func (s *Service) recordRefreshProbe(ctx context.Context, meta RequestMeta, reason string) {
	count := s.bumpSideCounter(ctx, "failed_refresh:"+meta.IP, failedRefreshWindow)
	if count > failedRefreshAlertThreshold {
		s.alert(ctx, Alert{
			Title:    "Refresh token probing",
			Message:  fmt.Sprintf("%d invalid refresh tokens from %s in the last hour", count, meta.IP),
			Severity: SeverityWarning,
			Tags:     []string{"refresh", "probing"},
		})
	}
	s.metrics.Inc(MetricRefreshFailure)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventTokenRefresh,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Error:     reason,
	})
}

func (s *Service) refreshFailure(ctx context.Context, userID int64, meta RequestMeta, reason string) {
	s.metrics.Inc(MetricRefreshFailure)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventTokenRefresh,
		UserID:    userID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Error:     reason,
	})
}
