package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kanenguyen264/library-management-sub001/password"
)

func TestAuthenticateSuccessIssuesPair(t *testing.T) {
	env := newTestService(t, testConfig())
	seeded := env.seedUser(t, "alice", "alice@example.com", "Str0ng#Secret")

	result, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if result.TwoFactorRequired {
		t.Fatal("expected no two-factor challenge")
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if result.User == nil || result.User.ID != seeded.ID {
		t.Fatalf("expected user view for id %d, got %+v", seeded.ID, result.User)
	}

	if updated := env.users.get(seeded.ID); updated.LastLoginAt == nil {
		t.Fatal("expected last-login timestamp to be set")
	}
	if got := env.svc.metrics.Value(MetricLoginSuccess); got != 1 {
		t.Fatalf("expected 1 login success, got %d", got)
	}
}

func TestAuthenticateByEmail(t *testing.T) {
	env := newTestService(t, testConfig())
	env.seedUser(t, "alice", "alice@example.com", "Str0ng#Secret")

	if _, err := env.svc.Authenticate(context.Background(), "alice@example.com", "Str0ng#Secret", testMeta); err != nil {
		t.Fatalf("Authenticate by email failed: %v", err)
	}
}

func TestAuthenticateUnknownAndWrongPasswordIndistinguishable(t *testing.T) {
	env := newTestService(t, testConfig())
	env.seedUser(t, "alice", "alice@example.com", "Str0ng#Secret")

	_, errUnknown := env.svc.Authenticate(context.Background(), "nobody", "Str0ng#Secret", testMeta)
	_, errWrong := env.svc.Authenticate(context.Background(), "alice", "wrong-password", testMeta)

	if !errors.Is(errUnknown, ErrInvalidCredentials) {
		t.Fatalf("unknown user: want ErrInvalidCredentials, got %v", errUnknown)
	}
	if !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("wrong password: want ErrInvalidCredentials, got %v", errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("error messages differ: %q vs %q", errUnknown, errWrong)
	}
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	env := newTestService(t, testConfig())
	u := env.seedUser(t, "alice", "alice@example.com", "Str0ng#Secret")
	if err := env.users.mutate(u.ID, func(r *UserRecord) { r.IsActive = false }); err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	_, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta)
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("want ErrAccountDisabled, got %v", err)
	}
}

func TestAuthenticateLockoutAfterMaxAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.Lockout.MaxAttempts = 3
	env := newTestService(t, cfg)
	env.seedUser(t, "alice", "alice@example.com", "Str0ng#Secret")

	for i := 0; i < 3; i++ {
		if _, err := env.svc.Authenticate(context.Background(), "alice", "wrong", testMeta); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: want ErrInvalidCredentials, got %v", i, err)
		}
	}

	// Even the correct password is rejected while locked out.
	_, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want lockout as ErrRateLimited, got %v", err)
	}
	if got := RetryAfter(err); got != cfg.Lockout.Window {
		t.Fatalf("want retry-after %v, got %v", cfg.Lockout.Window, got)
	}
	if env.alerts.count() == 0 {
		t.Fatal("expected a lockout alert")
	}
}

func TestAuthenticateLockoutClearsOnSuccess(t *testing.T) {
	cfg := testConfig()
	cfg.Lockout.MaxAttempts = 3
	env := newTestService(t, cfg)
	env.seedUser(t, "alice", "alice@example.com", "Str0ng#Secret")

	for i := 0; i < 2; i++ {
		_, _ = env.svc.Authenticate(context.Background(), "alice", "wrong", testMeta)
	}
	if _, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	// The counter is gone, so the budget starts over.
	for i := 0; i < 2; i++ {
		_, _ = env.svc.Authenticate(context.Background(), "alice", "wrong", testMeta)
	}
	if _, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta); err != nil {
		t.Fatalf("Authenticate after reset failed: %v", err)
	}
}

func TestAuthenticateRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimits.Login = RateLimit{Limit: 2, Window: time.Minute}
	cfg.Lockout.MaxAttempts = 100
	env := newTestService(t, cfg)
	env.seedUser(t, "alice", "alice@example.com", "Str0ng#Secret")

	for i := 0; i < 2; i++ {
		if _, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta); err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}

	_, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	if got := RetryAfter(err); got <= 0 || got > time.Minute {
		t.Fatalf("retry-after out of range: %v", got)
	}
	if got := env.svc.metrics.Value(MetricLoginRateLimited); got != 1 {
		t.Fatalf("expected 1 rate-limited login, got %d", got)
	}
}

func TestAuthenticateRateLimitIsPerIP(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimits.Login = RateLimit{Limit: 1, Window: time.Minute}
	env := newTestService(t, cfg)
	env.seedUser(t, "alice", "alice@example.com", "Str0ng#Secret")

	if _, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if _, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("same IP: want ErrRateLimited, got %v", err)
	}

	other := RequestMeta{IP: "203.0.113.9", UserAgent: testMeta.UserAgent}
	if _, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", other); err != nil {
		t.Fatalf("different IP should have its own budget: %v", err)
	}
}

func TestAuthenticateTwoFactorChallenge(t *testing.T) {
	env := newTestService(t, testConfig())
	u := env.seedUser(t, "alice", "alice@example.com", "Str0ng#Secret")
	enrollTwoFactor(t, env, u.ID)

	result, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !result.TwoFactorRequired {
		t.Fatal("expected a two-factor challenge")
	}
	if result.TwoFactorToken == "" {
		t.Fatal("expected a temp token")
	}
	if result.AccessToken != "" || result.RefreshToken != "" {
		t.Fatal("expected no token pair before two-factor verification")
	}
}

func TestAuthenticateRegistersSession(t *testing.T) {
	env := newTestService(t, testConfig())
	u := env.seedUser(t, "alice", "alice@example.com", "Str0ng#Secret")

	if _, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	sessions, err := env.svc.Sessions(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session record, got %d", len(sessions))
	}
	if sessions[0].IP != testMeta.IP || sessions[0].UserAgent != testMeta.UserAgent {
		t.Fatalf("unexpected session metadata: %+v", sessions[0])
	}
}

func TestAuthenticateUpgradesOutdatedHash(t *testing.T) {
	cfg := testConfig()
	cfg.Password.Time = 2
	env := newTestService(t, cfg)

	// Seed with a hash produced under weaker parameters than the service's.
	weakCfg := testConfig().Password
	weakHasher := mustHasher(t, weakCfg)
	hash, err := weakHasher.Hash("Str0ng#Secret")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	u := env.users.add(UserRecord{
		Username: "alice", Email: "alice@example.com",
		PasswordHash: hash, IsActive: true,
	})

	if _, err := env.svc.Authenticate(context.Background(), "alice", "Str0ng#Secret", testMeta); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	upgraded := env.users.get(u.ID).PasswordHash
	if upgraded == hash {
		t.Fatal("expected the stored hash to be upgraded")
	}
	if !env.svc.hasher.Verify("Str0ng#Secret", upgraded) {
		t.Fatal("upgraded hash does not verify")
	}
	if env.svc.hasher.NeedsRehash(upgraded) {
		t.Fatal("upgraded hash still flagged as outdated")
	}
}

func mustHasher(t *testing.T, cfg password.Config) *password.Hasher {
	t.Helper()

	h, err := password.New(cfg)
	if err != nil {
		t.Fatalf("password.New failed: %v", err)
	}
	return h
}

// enrollTwoFactor stores a TOTP secret on the account.
func enrollTwoFactor(t *testing.T, env *testEnv, userID int64) string {
	t.Helper()

	_, secret, err := env.svc.totp.GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret failed: %v", err)
	}
	if err := env.users.mutate(userID, func(u *UserRecord) {
		u.TwoFactorEnabled = true
		u.TwoFactorSecret = secret
	}); err != nil {
		t.Fatalf("mutate failed: %v", err)
	}
	return secret
}
