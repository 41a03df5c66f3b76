package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kanenguyen264/library-management-sub001/password"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

// testConfig uses the cheapest argon2 parameters the hasher accepts so the
// suite stays fast.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password = password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
	return cfg
}

type fakeUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*UserRecord

	createErr error
	updateErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{nextID: 1, users: map[int64]*UserRecord{}}
}

func (f *fakeUserStore) add(u UserRecord) *UserRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == 0 {
		u.ID = f.nextID
	}
	if u.ID >= f.nextID {
		f.nextID = u.ID + 1
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	f.users[u.ID] = &u
	return &u
}

func (f *fakeUserStore) get(id int64) *UserRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	if u == nil {
		return nil
	}
	copied := *u
	return &copied
}

func (f *fakeUserStore) GetByID(_ context.Context, id int64) (*UserRecord, error) {
	if u := f.get(id); u != nil {
		return u, nil
	}
	return nil, ErrUserNotFound
}

func (f *fakeUserStore) findBy(match func(*UserRecord) bool) (*UserRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrUserNotFound
}

func (f *fakeUserStore) GetByUsername(_ context.Context, username string) (*UserRecord, error) {
	return f.findBy(func(u *UserRecord) bool {
		return strings.EqualFold(u.Username, username)
	})
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*UserRecord, error) {
	return f.findBy(func(u *UserRecord) bool {
		return strings.EqualFold(u.Email, email)
	})
}

func (f *fakeUserStore) GetByVerificationToken(_ context.Context, token string) (*UserRecord, error) {
	return f.findBy(func(u *UserRecord) bool {
		return token != "" && u.VerificationToken == token
	})
}

func (f *fakeUserStore) GetByResetToken(_ context.Context, token string) (*UserRecord, error) {
	return f.findBy(func(u *UserRecord) bool {
		return token != "" && u.ResetToken == token
	})
}

func (f *fakeUserStore) Create(_ context.Context, input CreateUserInput) (*UserRecord, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.add(UserRecord{
		Username:            input.Username,
		Email:               input.Email,
		PasswordHash:        input.PasswordHash,
		DisplayName:         input.DisplayName,
		AvatarURL:           input.AvatarURL,
		IsActive:            input.IsActive,
		IsEmailVerified:     input.IsEmailVerified,
		VerificationToken:   input.VerificationToken,
		VerificationExpires: input.VerificationExpires,
		CreatedAt:           time.Now(),
	}), nil
}

func (f *fakeUserStore) mutate(id int64, apply func(*UserRecord)) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[id]
	if u == nil {
		return ErrUserNotFound
	}
	apply(u)
	return nil
}

func (f *fakeUserStore) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	return f.mutate(id, func(u *UserRecord) {
		u.PasswordHash = hash
		u.ResetToken = ""
		u.ResetExpires = nil
	})
}

func (f *fakeUserStore) SetResetToken(_ context.Context, id int64, token string, expires time.Time) error {
	return f.mutate(id, func(u *UserRecord) {
		u.ResetToken = token
		u.ResetExpires = &expires
	})
}

func (f *fakeUserStore) MarkEmailVerified(_ context.Context, id int64) error {
	return f.mutate(id, func(u *UserRecord) {
		u.IsEmailVerified = true
		u.VerificationToken = ""
		u.VerificationExpires = nil
	})
}

func (f *fakeUserStore) UpdateAvatar(_ context.Context, id int64, avatarURL string) error {
	return f.mutate(id, func(u *UserRecord) { u.AvatarURL = avatarURL })
}

func (f *fakeUserStore) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	return f.mutate(id, func(u *UserRecord) { u.LastLoginAt = &at })
}

func (f *fakeUserStore) UpdateLastActive(_ context.Context, id int64, at time.Time) error {
	return f.mutate(id, func(u *UserRecord) { u.LastActiveAt = &at })
}

type fakeSocialStore struct {
	mu       sync.Mutex
	nextID   int64
	profiles map[string]*SocialProfile
}

func newFakeSocialStore() *fakeSocialStore {
	return &fakeSocialStore{nextID: 1, profiles: map[string]*SocialProfile{}}
}

func socialKey(provider, providerID string) string {
	return provider + "/" + providerID
}

func (f *fakeSocialStore) GetByProviderID(_ context.Context, provider, providerID string) (*SocialProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.profiles[socialKey(provider, providerID)]
	if p == nil {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeSocialStore) Create(_ context.Context, input CreateSocialProfileInput) (*SocialProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &SocialProfile{
		ID:           f.nextID,
		UserID:       input.UserID,
		Provider:     input.Provider,
		ProviderID:   input.ProviderID,
		AccessToken:  input.AccessToken,
		RefreshToken: input.RefreshToken,
		ExpiresAt:    input.ExpiresAt,
		LastIP:       input.LastIP,
		LastUsedAt:   time.Now(),
	}
	f.nextID++
	f.profiles[socialKey(input.Provider, input.ProviderID)] = p
	copied := *p
	return &copied, nil
}

func (f *fakeSocialStore) Touch(_ context.Context, id int64, update SocialProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.profiles {
		if p.ID == id {
			p.AccessToken = update.AccessToken
			p.RefreshToken = update.RefreshToken
			p.ExpiresAt = update.ExpiresAt
			p.LastIP = update.LastIP
			p.LastUsedAt = time.Now()
			return nil
		}
	}
	return ErrNotFound
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []Notification
	fail  bool
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("notifier down")
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

type recordingAlerts struct {
	mu     sync.Mutex
	raised []Alert
}

func (r *recordingAlerts) Alert(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raised = append(r.raised, a)
	return nil
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.raised)
}

type testEnv struct {
	svc      *Service
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	users    *fakeUserStore
	socials  *fakeSocialStore
	notifier *recordingNotifier
	alerts   *recordingAlerts
}

func newTestService(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	users := newFakeUserStore()
	socials := newFakeSocialStore()
	notifier := &recordingNotifier{}
	alerts := &recordingAlerts{}

	svc, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithSocialProfileStore(socials).
		WithNotifications(notifier).
		WithAlerts(alerts).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(svc.Close)

	return &testEnv{
		svc:      svc,
		mr:       mr,
		rdb:      rdb,
		users:    users,
		socials:  socials,
		notifier: notifier,
		alerts:   alerts,
	}
}

// seedUser creates an active verified account with the given password and
// returns the stored record.
func (e *testEnv) seedUser(t *testing.T, username, email, pw string) *UserRecord {
	t.Helper()

	hash, err := e.svc.hasher.Hash(pw)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	return e.users.add(UserRecord{
		Username:        username,
		Email:           email,
		PasswordHash:    hash,
		IsActive:        true,
		IsEmailVerified: true,
	})
}

var testMeta = RequestMeta{IP: "198.51.100.7", UserAgent: "test-agent/1.0"}
