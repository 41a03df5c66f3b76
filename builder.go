package auth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kanenguyen264/library-management-sub001/internal/audit"
	"github.com/kanenguyen264/library-management-sub001/internal/guard"
	"github.com/kanenguyen264/library-management-sub001/internal/rate"
	"github.com/kanenguyen264/library-management-sub001/password"
	"github.com/kanenguyen264/library-management-sub001/session"
	"github.com/kanenguyen264/library-management-sub001/token"
)

// Builder assembles a Service. Redis and a UserStore are mandatory;
// everything else has a working default.
type Builder struct {
	cfg       Config
	cfgSet    bool
	redis     redis.UniversalClient
	users     UserStore
	socials   SocialProfileStore
	notifier  NotificationSink
	alerts    AlertSink
	auditSink audit.Sink
	logger    *slog.Logger
	now       func() time.Time
}

// New starts a builder.
func New() *Builder {
	return &Builder{}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	b.cfgSet = true
	return b
}

// WithRedis sets the Redis client backing rate limits, lockouts, sessions
// and the refresh blacklist.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserStore sets the user-record collaborator.
func (b *Builder) WithUserStore(store UserStore) *Builder {
	b.users = store
	return b
}

// WithSocialProfileStore enables social login.
func (b *Builder) WithSocialProfileStore(store SocialProfileStore) *Builder {
	b.socials = store
	return b
}

// WithNotifications enables best-effort user notifications.
func (b *Builder) WithNotifications(sink NotificationSink) *Builder {
	b.notifier = sink
	return b
}

// WithAlerts enables best-effort security alerts.
func (b *Builder) WithAlerts(sink AlertSink) *Builder {
	b.alerts = sink
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the service together.
func (b *Builder) Build() (*Service, error) {
	if b.redis == nil {
		return nil, errors.New("auth: redis client is required")
	}
	if b.users == nil {
		return nil, errors.New("auth: user store is required")
	}

	cfg := b.cfg
	if !b.cfgSet {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(cfg.Token)
	if err != nil {
		return nil, err
	}
	hasher, err := password.New(cfg.Password)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	limiter := rate.New(b.redis, cfg.RedisPrefix).WithClock(now)
	attempts := guard.New(b.redis, cfg.RedisPrefix, cfg.Lockout.MaxAttempts, cfg.Lockout.Window)
	sessions := session.NewRegistry(b.redis, cfg.RedisPrefix)

	auditor := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	return &Service{
		cfg:      cfg,
		redis:    b.redis,
		users:    b.users,
		socials:  b.socials,
		notifier: b.notifier,
		alerts:   b.alerts,
		codec:    codec,
		hasher:   hasher,
		limiter:  limiter,
		guard:    attempts,
		sessions: sessions,
		totp:     newTOTPVerifier(cfg.TwoFactor),
		metrics:  NewMetrics(cfg.Metrics.Enabled),
		auditor:  auditor,
		logger:   logger,
		now:      now,
	}, nil
}
