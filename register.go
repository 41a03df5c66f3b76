package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/kanenguyen264/library-management-sub001/internal/audit"
)

// Register creates a new account. The account starts active with an
// unverified email; a fresh verification token with a 72 hour expiry (by
// default) is stored on the record for the mail pipeline to pick up.
func (s *Service) Register(ctx context.Context, input RegisterInput, ip string) (*UserView, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if username == "" || email == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidInput
	}

	// Conflicts surface before the policy verdict.
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		s.metrics.Inc(MetricRegisterConflict)
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		s.metrics.Inc(MetricRegisterConflict)
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	if err := s.cfg.Policy.CheckPassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}
	verification, err := randomToken(s.cfg.Tokens.Bytes)
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(s.cfg.Tokens.VerificationTTL)

	user, err := s.users.Create(ctx, CreateUserInput{
		Username:            username,
		Email:               email,
		PasswordHash:        hash,
		DisplayName:         input.DisplayName,
		IsActive:            true,
		IsEmailVerified:     false,
		VerificationToken:   verification,
		VerificationExpires: &expires,
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricRegisterSuccess)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventRegistration,
		UserID:    user.ID,
		IP:        ip,
		Success:   true,
	})
	s.notify(ctx, Notification{
		UserID:  user.ID,
		Kind:    NotificationAccount,
		Title:   "Welcome",
		Message: "Your account was created. Check your inbox to verify your email address.",
	})

	return NewUserView(user), nil
}

// VerifyEmail consumes a verification token. Unknown and expired tokens are
// both ErrNotFound; the token is opaque, so there is no expired-vs-invalid
// distinction to leak.
func (s *Service) VerifyEmail(ctx context.Context, verificationToken, ip string) (*UserView, error) {
	if err := s.throttle(ctx, ip, "verify_email", s.cfg.RateLimits.EmailVerify); err != nil {
		return nil, err
	}

	user, err := s.users.GetByVerificationToken(ctx, verificationToken)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, s.emailVerificationFailure(ctx, ip, "unknown token")
		}
		return nil, err
	}
	if user.VerificationExpires == nil || s.now().After(*user.VerificationExpires) {
		return nil, s.emailVerificationFailure(ctx, ip, "expired token")
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return nil, err
	}
	user.IsEmailVerified = true
	user.VerificationToken = ""
	user.VerificationExpires = nil

	s.metrics.Inc(MetricEmailVerified)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventEmailVerification,
		UserID:    user.ID,
		IP:        ip,
		Success:   true,
	})
	s.notify(ctx, Notification{
		UserID:  user.ID,
		Kind:    NotificationAccount,
		Title:   "Email verified",
		Message: "Your email address has been verified.",
	})

	return NewUserView(user), nil
}

// emailVerificationFailure records the failure and returns the uniform
// ErrNotFound.
func (s *Service) emailVerificationFailure(ctx context.Context, ip, reason string) error {
	s.metrics.Inc(MetricEmailVerificationFailure)
	s.emitAudit(ctx, audit.Event{
		EventType: audit.EventEmailVerification,
		IP:        ip,
		Error:     reason,
	})
	return ErrNotFound
}
