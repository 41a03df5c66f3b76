// Package postgres is the reference UserStore and SocialProfileStore
// implementation over a pgx connection pool.
//
// Expected schema: a users table with the columns read in scanUser and a
// social_profiles table with the columns read in scanProfile. Username and
// email comparisons go through LOWER() so lookups are case-insensitive
// regardless of collation.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	auth "github.com/kanenguyen264/library-management-sub001"
)

// Store implements auth.UserStore. Socials returns the companion
// auth.SocialProfileStore over the same pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ auth.UserStore = (*Store)(nil)

// New wraps an existing pool. The pool stays owned by the caller.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Socials returns the social-profile store sharing this store's pool.
func (s *Store) Socials() *SocialStore {
	return &SocialStore{pool: s.pool}
}

const userColumns = `
	id, username, email, display_name, avatar_url, password_hash,
	is_active, is_email_verified, is_premium, premium_until,
	two_factor_enabled, two_factor_secret,
	verification_token, verification_expires,
	reset_token, reset_expires,
	last_login_at, last_active_at, created_at, updated_at`

func (s *Store) GetByID(ctx context.Context, id int64) (*auth.UserRecord, error) {
	return s.getUser(ctx, `SELECT`+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*auth.UserRecord, error) {
	return s.getUser(ctx, `SELECT`+userColumns+` FROM users WHERE LOWER(username) = LOWER($1)`, username)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*auth.UserRecord, error) {
	return s.getUser(ctx, `SELECT`+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)
}

func (s *Store) GetByVerificationToken(ctx context.Context, verificationToken string) (*auth.UserRecord, error) {
	return s.getUser(ctx, `SELECT`+userColumns+` FROM users WHERE verification_token = $1`, verificationToken)
}

func (s *Store) GetByResetToken(ctx context.Context, resetToken string) (*auth.UserRecord, error) {
	return s.getUser(ctx, `SELECT`+userColumns+` FROM users WHERE reset_token = $1`, resetToken)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*auth.UserRecord, error) {
	row := s.pool.QueryRow(ctx, query, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (*auth.UserRecord, error) {
	var (
		u           auth.UserRecord
		displayName *string
		avatarURL   *string
		secret      *string
		verifTok    *string
		resetTok    *string
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &displayName, &avatarURL, &u.PasswordHash,
		&u.IsActive, &u.IsEmailVerified, &u.IsPremium, &u.PremiumUntil,
		&u.TwoFactorEnabled, &secret,
		&verifTok, &u.VerificationExpires,
		&resetTok, &u.ResetExpires,
		&u.LastLoginAt, &u.LastActiveAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.DisplayName = deref(displayName)
	u.AvatarURL = deref(avatarURL)
	u.TwoFactorSecret = deref(secret)
	u.VerificationToken = deref(verifTok)
	u.ResetToken = deref(resetTok)
	return &u, nil
}

func (s *Store) Create(ctx context.Context, input auth.CreateUserInput) (*auth.UserRecord, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (
			username, email, password_hash, display_name, avatar_url,
			is_active, is_email_verified,
			verification_token, verification_expires, created_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, NOW())
		RETURNING`+userColumns,
		input.Username, input.Email, input.PasswordHash, input.DisplayName, input.AvatarURL,
		input.IsActive, input.IsEmailVerified,
		input.VerificationToken, input.VerificationExpires,
	)
	return scanUser(row)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return s.execOne(ctx, `
		UPDATE users
		SET password_hash = $2, reset_token = NULL, reset_expires = NULL, updated_at = NOW()
		WHERE id = $1`, id, hash)
}

func (s *Store) SetResetToken(ctx context.Context, id int64, resetToken string, expires time.Time) error {
	return s.execOne(ctx, `
		UPDATE users
		SET reset_token = $2, reset_expires = $3, updated_at = NOW()
		WHERE id = $1`, id, resetToken, expires)
}

func (s *Store) MarkEmailVerified(ctx context.Context, id int64) error {
	return s.execOne(ctx, `
		UPDATE users
		SET is_email_verified = TRUE, verification_token = NULL, verification_expires = NULL,
		    updated_at = NOW()
		WHERE id = $1`, id)
}

func (s *Store) UpdateAvatar(ctx context.Context, id int64, avatarURL string) error {
	return s.execOne(ctx, `UPDATE users SET avatar_url = $2, updated_at = NOW() WHERE id = $1`, id, avatarURL)
}

func (s *Store) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return s.execOne(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
}

func (s *Store) UpdateLastActive(ctx context.Context, id int64, at time.Time) error {
	return s.execOne(ctx, `UPDATE users SET last_active_at = $2 WHERE id = $1`, id, at)
}

func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// SocialStore implements auth.SocialProfileStore.
type SocialStore struct {
	pool *pgxpool.Pool
}

var _ auth.SocialProfileStore = (*SocialStore)(nil)

const profileColumns = `
	id, user_id, provider, provider_id,
	access_token, refresh_token, token_expires_at,
	last_ip, last_used_at`

func (s *SocialStore) GetByProviderID(ctx context.Context, provider, providerID string) (*auth.SocialProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+profileColumns+` FROM social_profiles WHERE provider = $1 AND provider_id = $2`,
		provider, providerID,
	)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return profile, nil
}

func scanProfile(row pgx.Row) (*auth.SocialProfile, error) {
	var (
		p            auth.SocialProfile
		accessToken  *string
		refreshToken *string
		lastIP       *string
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.Provider, &p.ProviderID,
		&accessToken, &refreshToken, &p.ExpiresAt,
		&lastIP, &p.LastUsedAt,
	)
	if err != nil {
		return nil, err
	}
	p.AccessToken = deref(accessToken)
	p.RefreshToken = deref(refreshToken)
	p.LastIP = deref(lastIP)
	return &p, nil
}

func (s *SocialStore) Create(ctx context.Context, input auth.CreateSocialProfileInput) (*auth.SocialProfile, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO social_profiles (
			user_id, provider, provider_id,
			access_token, refresh_token, token_expires_at,
			last_ip, last_used_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), NOW())
		RETURNING`+profileColumns,
		input.UserID, input.Provider, input.ProviderID,
		input.AccessToken, input.RefreshToken, input.ExpiresAt,
		input.LastIP,
	)
	return scanProfile(row)
}

func (s *SocialStore) Touch(ctx context.Context, id int64, update auth.SocialProfileUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE social_profiles
		SET access_token = NULLIF($2, ''), refresh_token = NULLIF($3, ''),
		    token_expires_at = $4, last_ip = NULLIF($5, ''), last_used_at = NOW()
		WHERE id = $1`,
		id, update.AccessToken, update.RefreshToken, update.ExpiresAt, update.LastIP,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
