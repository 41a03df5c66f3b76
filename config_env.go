package auth

import (
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/kanenguyen264/library-management-sub001/token"
)

// EnvConfig is the environment-derived deployment configuration: the
// service Config plus the connection settings the caller needs to build
// the collaborators around it.
type EnvConfig struct {
	Config Config

	RedisAddr     string
	RedisPassword string
	DatabaseURL   string
	SentryDSN     string
	ListenAddr    string
}

type envSpec struct {
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisPrefix   string `env:"REDIS_PREFIX"`
	DatabaseURL   string `env:"DATABASE_URL"`
	SentryDSN     string `env:"SENTRY_DSN"`
	ListenAddr    string `env:"LISTEN_ADDR" envDefault:":8080"`

	JWTSecret    string        `env:"JWT_SECRET,required,notEmpty"`
	JWTAlgorithm string        `env:"JWT_ALGORITHM" envDefault:"hs256"`
	JWTIssuer    string        `env:"JWT_ISSUER"`
	AccessTTL    time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTTL   time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	TwoFactorTTL time.Duration `env:"TWO_FACTOR_TOKEN_TTL" envDefault:"5m"`

	LockoutMaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LockoutWindow      time.Duration `env:"LOGIN_LOCKOUT_WINDOW" envDefault:"15m"`

	PasswordMinLength int `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`

	AuditEnabled   bool `env:"AUDIT_ENABLED" envDefault:"true"`
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// ConfigFromEnv builds an EnvConfig from process environment variables,
// starting from DefaultConfig. JWT_SECRET is required; everything else has
// a default.
func ConfigFromEnv() (EnvConfig, error) {
	var spec envSpec
	if err := env.Parse(&spec); err != nil {
		return EnvConfig{}, err
	}

	cfg := DefaultConfig()
	cfg.RedisPrefix = spec.RedisPrefix
	cfg.Token.SigningMethod = token.SigningMethod(spec.JWTAlgorithm)
	cfg.Token.Secret = []byte(spec.JWTSecret)
	cfg.Token.Issuer = spec.JWTIssuer
	cfg.Token.AccessTTL = spec.AccessTTL
	cfg.Token.RefreshTTL = spec.RefreshTTL
	cfg.Token.TwoFactorTTL = spec.TwoFactorTTL
	cfg.Lockout.MaxAttempts = spec.LockoutMaxAttempts
	cfg.Lockout.Window = spec.LockoutWindow
	cfg.Policy.MinLength = spec.PasswordMinLength
	cfg.Audit.Enabled = spec.AuditEnabled
	cfg.Metrics.Enabled = spec.MetricsEnabled

	return EnvConfig{
		Config:        cfg,
		RedisAddr:     spec.RedisAddr,
		RedisPassword: spec.RedisPassword,
		DatabaseURL:   spec.DatabaseURL,
		SentryDSN:     spec.SentryDSN,
		ListenAddr:    spec.ListenAddr,
	}, nil
}
