package auth

import (
	"context"
	"time"
)

// UserRecord is the credential-bearing subset of a platform user, owned by
// the external user store. The service mutates it only through the
// UserStore methods below.
type UserRecord struct {
	ID          int64
	Username    string
	Email       string
	DisplayName string
	AvatarURL   string

	PasswordHash string

	IsActive        bool
	IsEmailVerified bool
	IsPremium       bool
	PremiumUntil    *time.Time

	TwoFactorEnabled bool
	// TwoFactorSecret is the base32-encoded TOTP secret, empty when 2FA is
	// not enrolled.
	TwoFactorSecret string

	VerificationToken   string
	VerificationExpires *time.Time

	ResetToken   string
	ResetExpires *time.Time

	LastLoginAt  *time.Time
	LastActiveAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// CreateUserInput is the record subset the service supplies when creating
// an account.
type CreateUserInput struct {
	Username     string
	Email        string
	PasswordHash string
	DisplayName  string
	AvatarURL    string

	IsActive        bool
	IsEmailVerified bool

	VerificationToken   string
	VerificationExpires *time.Time
}

// UserStore is the user-record collaborator. Lookups return
// ErrUserNotFound when nothing matches; username and email lookups are
// case-insensitive. All mutation failures propagate to the caller.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*UserRecord, error)
	GetByUsername(ctx context.Context, username string) (*UserRecord, error)
	GetByEmail(ctx context.Context, email string) (*UserRecord, error)
	GetByVerificationToken(ctx context.Context, verificationToken string) (*UserRecord, error)
	GetByResetToken(ctx context.Context, resetToken string) (*UserRecord, error)

	Create(ctx context.Context, input CreateUserInput) (*UserRecord, error)

	// UpdatePasswordHash replaces the hash and clears any reset token.
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	// SetResetToken stores a reset token with its expiry.
	SetResetToken(ctx context.Context, id int64, resetToken string, expires time.Time) error
	// MarkEmailVerified sets the verified flag and clears the
	// verification token.
	MarkEmailVerified(ctx context.Context, id int64) error
	UpdateAvatar(ctx context.Context, id int64, avatarURL string) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	UpdateLastActive(ctx context.Context, id int64, at time.Time) error
}

// SocialProfile links a platform user to an external identity provider.
type SocialProfile struct {
	ID         int64
	UserID     int64
	Provider   string
	ProviderID string

	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time

	LastIP     string
	LastUsedAt time.Time
}

// CreateSocialProfileInput creates a provider link for an existing user.
type CreateSocialProfileInput struct {
	UserID     int64
	Provider   string
	ProviderID string

	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time

	LastIP string
}

// SocialProfileUpdate refreshes provider tokens on an existing link.
type SocialProfileUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	LastIP       string
}

// SocialProfileStore is the social-identity collaborator. GetByProviderID
// returns ErrNotFound when no link exists.
type SocialProfileStore interface {
	GetByProviderID(ctx context.Context, provider, providerID string) (*SocialProfile, error)
	Create(ctx context.Context, input CreateSocialProfileInput) (*SocialProfile, error)
	Touch(ctx context.Context, id int64, update SocialProfileUpdate) error
}

// Notification kinds mirror the platform's notification center categories.
const (
	NotificationSecurity = "SECURITY"
	NotificationAccount  = "ACCOUNT"
)

// Notification is a best-effort message to a user.
type Notification struct {
	UserID  int64
	Kind    string
	Title   string
	Message string
}

// NotificationSink delivers notifications. Failures are logged and
// swallowed; a notification outage never fails an auth flow.
type NotificationSink interface {
	Notify(ctx context.Context, n Notification) error
}

// Severity grades alerts.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a best-effort security signal (brute-force lockout, refresh
// token probing, repeated bad two-factor codes).
type Alert struct {
	Title    string
	Message  string
	Severity Severity
	Tags     []string
}

// AlertSink delivers alerts. Failures are logged and swallowed.
type AlertSink interface {
	Alert(ctx context.Context, a Alert) error
}

// UserView is the caller-facing projection of a user record. It never
// carries credential material.
type UserView struct {
	ID              int64      `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name,omitempty"`
	AvatarURL       string     `json:"avatar,omitempty"`
	IsActive        bool       `json:"is_active"`
	IsEmailVerified bool       `json:"is_verified"`
	IsPremium       bool       `json:"is_premium"`
	PremiumUntil    *time.Time `json:"premium_until,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	LastLoginAt     *time.Time `json:"last_login,omitempty"`
}

// NewUserView projects a record into its caller-facing shape.
func NewUserView(u *UserRecord) *UserView {
	return &UserView{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		AvatarURL:       u.AvatarURL,
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		IsPremium:       u.IsPremium,
		PremiumUntil:    u.PremiumUntil,
		CreatedAt:       u.CreatedAt,
		LastLoginAt:     u.LastLoginAt,
	}
}

// AuthResult is returned by the token-issuing operations. When the account
// has two-factor enabled, Authenticate returns TwoFactorRequired with only
// the temp token set; the pair is issued by VerifyTwoFactor.
type AuthResult struct {
	User         *UserView
	AccessToken  string
	RefreshToken string

	TwoFactorRequired bool
	TwoFactorToken    string
}

// RegisterInput is the registration request.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// SocialAuthInput is the provider payload for social login. ProviderID and
// Email are required.
type SocialAuthInput struct {
	ProviderID  string
	Email       string
	Username    string
	DisplayName string
	AvatarURL   string

	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}
