package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/kanenguyen264/library-management-sub001/internal/audit"
)

// SocialAuth signs a user in through an external identity provider. The
// provider payload has already been exchanged and validated upstream; this
// flow links or creates the local account and issues the token pair.
//
// Accounts created through a provider start with a verified email and an
// unguessable random password, so password login stays closed until the
// user sets one through the reset flow.
func (s *Service) SocialAuth(ctx context.Context, provider string, input SocialAuthInput, meta RequestMeta) (*AuthResult, error) {
	if s.socials == nil {
		return nil, errors.New("auth: social profile store not configured")
	}

	if err := s.throttle(ctx, meta.IP, "social_auth", s.cfg.RateLimits.SocialAuth); err != nil {
		if errors.Is(err, ErrRateLimited) {
			s.emitAudit(ctx, audit.Event{
				EventType: audit.EventRateLimited,
				IP:        meta.IP,
				UserAgent: meta.UserAgent,
				Details:   map[string]string{"action": "social_auth", "provider": provider},
			})
		}
		return nil, err
	}

	provider = strings.ToLower(strings.TrimSpace(provider))
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if provider == "" || input.ProviderID == "" || email == "" {
		return nil, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidInput
	}

	user, err := s.resolveSocialUser(ctx, provider, input, email, meta)
	if err != nil {
		if errors.Is(err, ErrAccountDisabled) {
			s.metrics.Inc(MetricSocialLoginFailure)
			s.emitAudit(ctx, audit.Event{
				EventType: audit.EventSocialLogin,
				IP:        meta.IP,
				UserAgent: meta.UserAgent,
				Error:     "account disabled",
				Details:   map[string]string{"provider": provider},
			})
		}
		return nil, err
	}

	s.finishLogin(ctx, user)

	access, refresh, err := s.issueTokens(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricSocialLoginSuccess)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventSocialLogin,
		UserID:    user.ID,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		Success:   true,
		Details:   map[string]string{"provider": provider},
	})

	return &AuthResult{
		User:         NewUserView(user),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// resolveSocialUser finds or creates the local account for a provider
// identity: an existing link wins, then an email match gets linked, and
// finally a new account is provisioned.
func (s *Service) resolveSocialUser(ctx context.Context, provider string, input SocialAuthInput, email string, meta RequestMeta) (*UserRecord, error) {
	profile, err := s.socials.GetByProviderID(ctx, provider, input.ProviderID)
	switch {
	case err == nil:
		return s.refreshLinkedProfile(ctx, profile, input, meta)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrUserNotFound):
		user, err = s.provisionSocialUser(ctx, input, email)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if _, err := s.socials.Create(ctx, CreateSocialProfileInput{
		UserID:       user.ID,
		Provider:     provider,
		ProviderID:   input.ProviderID,
		AccessToken:  input.AccessToken,
		RefreshToken: input.RefreshToken,
		ExpiresAt:    input.ExpiresAt,
		LastIP:       meta.IP,
	}); err != nil {
		return nil, err
	}

	return user, nil
}

// refreshLinkedProfile handles the returning-user path: reload the account,
// roll the stored provider tokens forward, and backfill the avatar if the
// account never had one.
func (s *Service) refreshLinkedProfile(ctx context.Context, profile *SocialProfile, input SocialAuthInput, meta RequestMeta) (*UserRecord, error) {
	user, err := s.users.GetByID(ctx, profile.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrAccountDisabled
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if err := s.socials.Touch(ctx, profile.ID, SocialProfileUpdate{
		AccessToken:  input.AccessToken,
		RefreshToken: input.RefreshToken,
		ExpiresAt:    input.ExpiresAt,
		LastIP:       meta.IP,
	}); err != nil {
		s.logger.WarnContext(ctx, "social profile refresh failed",
			slog.Int64("user_id", user.ID), slog.Any("error", err))
	}

	if user.AvatarURL == "" && input.AvatarURL != "" {
		if err := s.users.UpdateAvatar(ctx, user.ID, input.AvatarURL); err != nil {
			s.logger.WarnContext(ctx, "avatar backfill failed",
				slog.Int64("user_id", user.ID), slog.Any("error", err))
		} else {
			user.AvatarURL = input.AvatarURL
		}
	}

	return user, nil
}

// provisionSocialUser creates an account for a first-time provider identity
// with no matching email.
func (s *Service) provisionSocialUser(ctx context.Context, input SocialAuthInput, email string) (*UserRecord, error) {
	username, err := s.uniqueUsername(ctx, input.Username, email)
	if err != nil {
		return nil, err
	}

	// The account has no usable password until the user sets one; the
	// random filler only exists so the record is never passwordless.
	filler, err := randomToken(16)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(filler)
	if err != nil {
		return nil, err
	}

	return s.users.Create(ctx, CreateUserInput{
		Username:        username,
		Email:           email,
		PasswordHash:    hash,
		DisplayName:     input.DisplayName,
		AvatarURL:       input.AvatarURL,
		IsActive:        true,
		IsEmailVerified: true,
	})
}

// uniqueUsername derives a free username from the provider payload or the
// email local part, appending a numeric suffix on collisions.
func (s *Service) uniqueUsername(ctx context.Context, preferred, email string) (string, error) {
	base := strings.TrimSpace(preferred)
	if base == "" {
		base, _, _ = strings.Cut(email, "@")
	}
	base = sanitizeUsername(base)
	if base == "" {
		base = "reader"
	}

	candidate := base
	for i := 1; ; i++ {
		_, err := s.users.GetByUsername(ctx, candidate)
		if errors.Is(err, ErrUserNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
}

func sanitizeUsername(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	return b.String()
}
