package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/kanenguyen264/library-management-sub001/password"
	"github.com/kanenguyen264/library-management-sub001/token"
)

// Config is the full tuning surface of the service. Start from
// DefaultConfig and override what differs; Build validates the result.
type Config struct {
	Token      token.Config
	Password   password.Config
	Policy     PolicyConfig
	RateLimits RateLimitConfig
	Lockout    LockoutConfig
	TwoFactor  TwoFactorConfig
	Tokens     OpaqueTokenConfig
	Audit      AuditConfig
	Metrics    MetricsConfig

	// RedisPrefix namespaces every cache key the service writes.
	RedisPrefix string
}

// RateLimit is one fixed-window budget.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig carries the per-endpoint budgets.
type RateLimitConfig struct {
	Login          RateLimit
	Refresh        RateLimit
	TwoFactor      RateLimit
	EmailVerify    RateLimit
	ResetRequest   RateLimit
	ResetPerform   RateLimit
	PasswordChange RateLimit
	SocialAuth     RateLimit

	// PerEmailResetCap bounds reset requests per target email inside
	// PerEmailResetWindow; past the cap requests silently no-op so the
	// response shape never leaks the throttle state.
	PerEmailResetCap    int
	PerEmailResetWindow time.Duration
}

// LockoutConfig tunes the login-attempt guard.
type LockoutConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// TwoFactorConfig tunes TOTP verification.
type TwoFactorConfig struct {
	Digits    int
	Period    int
	Skew      int
	Algorithm string
}

// OpaqueTokenConfig tunes the random (non-JWT) tokens stored on the user
// record: email verification and password reset.
type OpaqueTokenConfig struct {
	// Bytes of entropy per token before url-safe encoding.
	Bytes           int
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the outcome counters.
type MetricsConfig struct {
	Enabled bool
}

// PolicyConfig is the password strength policy.
type PolicyConfig struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
	// ForbidCommon rejects passwords containing well-known guessable
	// sequences regardless of the other rules.
	ForbidCommon bool
}

// DefaultConfig returns the production defaults. The token secret must
// still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		Token: token.Config{
			SigningMethod: token.MethodHS256,
			AccessTTL:     30 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			TwoFactorTTL:  5 * time.Minute,
		},
		Password: password.DefaultConfig(),
		Policy: PolicyConfig{
			MinLength:        8,
			RequireUppercase: true,
			RequireLowercase: true,
			RequireDigit:     true,
			RequireSpecial:   true,
			ForbidCommon:     true,
		},
		RateLimits: RateLimitConfig{
			Login:          RateLimit{Limit: 20, Window: time.Minute},
			Refresh:        RateLimit{Limit: 30, Window: time.Minute},
			TwoFactor:      RateLimit{Limit: 5, Window: time.Minute},
			EmailVerify:    RateLimit{Limit: 10, Window: 5 * time.Minute},
			ResetRequest:   RateLimit{Limit: 3, Window: time.Hour},
			ResetPerform:   RateLimit{Limit: 5, Window: 5 * time.Minute},
			PasswordChange: RateLimit{Limit: 3, Window: time.Hour},
			SocialAuth:     RateLimit{Limit: 10, Window: time.Minute},

			PerEmailResetCap:    3,
			PerEmailResetWindow: 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Window:      15 * time.Minute,
		},
		TwoFactor: TwoFactorConfig{
			Digits:    6,
			Period:    30,
			Skew:      1,
			Algorithm: "SHA1",
		},
		Tokens: OpaqueTokenConfig{
			Bytes:           32,
			VerificationTTL: 72 * time.Hour,
			ResetTTL:        24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Validate rejects configurations the service cannot run with. Token and
// password parameters are validated by their own constructors.
func (c *Config) Validate() error {
	limits := []struct {
		name string
		rl   RateLimit
	}{
		{"login", c.RateLimits.Login},
		{"refresh", c.RateLimits.Refresh},
		{"two-factor", c.RateLimits.TwoFactor},
		{"email-verify", c.RateLimits.EmailVerify},
		{"reset-request", c.RateLimits.ResetRequest},
		{"reset-perform", c.RateLimits.ResetPerform},
		{"password-change", c.RateLimits.PasswordChange},
		{"social-auth", c.RateLimits.SocialAuth},
	}
	for _, l := range limits {
		if l.rl.Limit <= 0 || l.rl.Window <= 0 {
			return fmt.Errorf("config: %s rate limit must have positive limit and window", l.name)
		}
	}

	if c.RateLimits.PerEmailResetCap <= 0 || c.RateLimits.PerEmailResetWindow <= 0 {
		return errors.New("config: per-email reset cap must be positive")
	}
	if c.Lockout.MaxAttempts <= 0 || c.Lockout.Window <= 0 {
		return errors.New("config: lockout requires positive attempts and window")
	}
	if c.TwoFactor.Digits < 6 || c.TwoFactor.Digits > 8 {
		return errors.New("config: two-factor digits must be 6..8")
	}
	if c.TwoFactor.Period <= 0 || c.TwoFactor.Skew < 0 {
		return errors.New("config: two-factor period must be positive and skew non-negative")
	}
	if c.Tokens.Bytes < 16 {
		return errors.New("config: opaque tokens need at least 16 bytes of entropy")
	}
	if c.Tokens.VerificationTTL <= 0 || c.Tokens.ResetTTL <= 0 {
		return errors.New("config: opaque token TTLs must be positive")
	}
	if c.Policy.MinLength < 8 {
		return errors.New("config: password policy minimum length must be >= 8")
	}
	return nil
}
