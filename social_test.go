package auth

import (
	"context"
	"errors"
	"testing"
)

func googlePayload() SocialAuthInput {
	return SocialAuthInput{
		ProviderID:  "goog-12345",
		Email:       "reader@example.com",
		Username:    "reader",
		DisplayName: "Reader",
		AvatarURL:   "https://cdn.example.com/avatar.png",
		AccessToken: "ya29.first",
	}
}

func TestSocialAuthCreatesUserAndProfile(t *testing.T) {
	env := newTestService(t, testConfig())

	result, err := env.svc.SocialAuth(context.Background(), "google", googlePayload(), testMeta)
	if err != nil {
		t.Fatalf("SocialAuth failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}

	user := env.users.get(result.User.ID)
	if user == nil {
		t.Fatal("expected a created user")
	}
	if !user.IsEmailVerified {
		t.Fatal("provider-created accounts start verified")
	}
	if user.Username != "reader" {
		t.Fatalf("expected username %q, got %q", "reader", user.Username)
	}
	if user.PasswordHash == "" {
		t.Fatal("expected a random password hash")
	}

	profile, err := env.socials.GetByProviderID(context.Background(), "google", "goog-12345")
	if err != nil {
		t.Fatalf("expected a linked profile: %v", err)
	}
	if profile.UserID != user.ID {
		t.Fatalf("profile linked to %d, want %d", profile.UserID, user.ID)
	}
}

func TestSocialAuthLinksExistingEmail(t *testing.T) {
	env := newTestService(t, testConfig())
	u := env.seedUser(t, "reader", "reader@example.com", "Str0ng#Secret")

	result, err := env.svc.SocialAuth(context.Background(), "google", googlePayload(), testMeta)
	if err != nil {
		t.Fatalf("SocialAuth failed: %v", err)
	}
	if result.User.ID != u.ID {
		t.Fatalf("expected the existing user %d, got %d", u.ID, result.User.ID)
	}

	profile, err := env.socials.GetByProviderID(context.Background(), "google", "goog-12345")
	if err != nil || profile.UserID != u.ID {
		t.Fatalf("expected a link to user %d: profile=%+v err=%v", u.ID, profile, err)
	}
}

func TestSocialAuthReturningUserRefreshesProfile(t *testing.T) {
	env := newTestService(t, testConfig())

	first, err := env.svc.SocialAuth(context.Background(), "google", googlePayload(), testMeta)
	if err != nil {
		t.Fatalf("first SocialAuth failed: %v", err)
	}

	payload := googlePayload()
	payload.AccessToken = "ya29.second"
	second, err := env.svc.SocialAuth(context.Background(), "google", payload, testMeta)
	if err != nil {
		t.Fatalf("second SocialAuth failed: %v", err)
	}
	if second.User.ID != first.User.ID {
		t.Fatal("returning identity must map to the same user")
	}

	profile, err := env.socials.GetByProviderID(context.Background(), "google", "goog-12345")
	if err != nil {
		t.Fatalf("GetByProviderID failed: %v", err)
	}
	if profile.AccessToken != "ya29.second" {
		t.Fatalf("expected refreshed provider token, got %q", profile.AccessToken)
	}
}

func TestSocialAuthBackfillsAvatar(t *testing.T) {
	env := newTestService(t, testConfig())
	u := env.seedUser(t, "reader", "reader@example.com", "Str0ng#Secret")

	// Link first, then return with an avatar the account lacks.
	payload := googlePayload()
	payload.AvatarURL = ""
	if _, err := env.svc.SocialAuth(context.Background(), "google", payload, testMeta); err != nil {
		t.Fatalf("link failed: %v", err)
	}

	payload.AvatarURL = "https://cdn.example.com/avatar.png"
	if _, err := env.svc.SocialAuth(context.Background(), "google", payload, testMeta); err != nil {
		t.Fatalf("return visit failed: %v", err)
	}

	if got := env.users.get(u.ID).AvatarURL; got != payload.AvatarURL {
		t.Fatalf("expected backfilled avatar, got %q", got)
	}
}

func TestSocialAuthUsernameCollisionGetsSuffix(t *testing.T) {
	env := newTestService(t, testConfig())
	env.seedUser(t, "reader", "other@example.com", "Str0ng#Secret")

	result, err := env.svc.SocialAuth(context.Background(), "google", googlePayload(), testMeta)
	if err != nil {
		t.Fatalf("SocialAuth failed: %v", err)
	}
	if got := env.users.get(result.User.ID).Username; got != "reader1" {
		t.Fatalf("expected suffixed username reader1, got %q", got)
	}
}

func TestSocialAuthDisabledAccount(t *testing.T) {
	env := newTestService(t, testConfig())
	u := env.seedUser(t, "reader", "reader@example.com", "Str0ng#Secret")
	if err := env.users.mutate(u.ID, func(r *UserRecord) { r.IsActive = false }); err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	_, err := env.svc.SocialAuth(context.Background(), "google", googlePayload(), testMeta)
	if !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("want ErrAccountDisabled, got %v", err)
	}
}

func TestSocialAuthValidatesInput(t *testing.T) {
	env := newTestService(t, testConfig())

	missingID := googlePayload()
	missingID.ProviderID = ""
	if _, err := env.svc.SocialAuth(context.Background(), "google", missingID, testMeta); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing provider id: want ErrInvalidInput, got %v", err)
	}

	badEmail := googlePayload()
	badEmail.Email = "not an email"
	if _, err := env.svc.SocialAuth(context.Background(), "google", badEmail, testMeta); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email: want ErrInvalidInput, got %v", err)
	}
}
