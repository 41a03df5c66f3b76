// Package token encodes and decodes the signed bearer tokens issued by the
// authentication service: access tokens, refresh tokens, and the short-lived
// temporary tokens handed out between password and two-factor verification.
//
// Tokens are self-contained JWTs. The kind of a token is carried inside the
// claims (`token_type=refresh`, `type=2fa_temp`); a token of one kind is
// never accepted where another kind is expected.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind discriminates the three token families issued by the service.
type Kind uint8

const (
	// KindAccess is a normal bearer token for authenticated requests.
	KindAccess Kind = iota
	// KindRefresh is a long-lived token exchangeable for a new token pair.
	KindRefresh
	// KindTwoFactorTemp is issued after password success when the account
	// still has a pending two-factor check.
	KindTwoFactorTemp
)

func (k Kind) String() string {
	switch k {
	case KindRefresh:
		return "refresh"
	case KindTwoFactorTemp:
		return "2fa_temp"
	default:
		return "access"
	}
}

var (
	// ErrTokenExpired reports a structurally valid, correctly signed token
	// whose expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid reports any other defect: bad signature, malformed
	// structure, missing expiry, or a kind mismatch.
	ErrTokenInvalid = errors.New("token invalid")
)

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// Claims is the payload carried by every token the codec issues.
// Access tokens additionally carry user profile hints and the client IP so
// downstream services can render and correlate without a user-store round
// trip; refresh and temp tokens carry only the subject.
type Claims struct {
	Username  string `json:"username,omitempty"`
	Email     string `json:"email,omitempty"`
	IsPremium bool   `json:"is_premium,omitempty"`
	IP        string `json:"ip,omitempty"`

	// TokenType is "refresh" on refresh tokens, empty otherwise.
	TokenType string `json:"token_type,omitempty"`
	// Type is "2fa_temp" on two-factor temp tokens, empty otherwise.
	Type string `json:"type,omitempty"`

	jwt.RegisteredClaims
}

// Kind derives the token kind from the embedded discriminator claims.
func (c *Claims) Kind() Kind {
	switch {
	case c.TokenType == "refresh":
		return KindRefresh
	case c.Type == "2fa_temp":
		return KindTwoFactorTemp
	default:
		return KindAccess
	}
}

// UserID parses the subject claim as the numeric user id.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTokenInvalid
	}
	return id, nil
}

// Config carries signing material and the per-kind lifetimes.
type Config struct {
	SigningMethod SigningMethod
	// Secret is the HMAC key for hs256.
	Secret []byte
	// PrivateKey/PublicKey are raw or PEM ed25519 keys.
	PrivateKey []byte
	PublicKey  []byte

	Issuer string
	Leeway time.Duration

	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	TwoFactorTTL time.Duration
}

// Codec signs and verifies tokens. Safe for concurrent use.
type Codec struct {
	cfg       Config
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

// NewCodec validates the configuration and resolves the signing keys once.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.TwoFactorTTL <= 0 {
		return nil, errors.New("token: all TTLs must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("token: leeway out of range")
	}

	c := &Codec{cfg: cfg}
	switch cfg.SigningMethod {
	case MethodHS256, "":
		if len(cfg.Secret) < 32 {
			return nil, errors.New("token: hs256 requires a secret of at least 32 bytes")
		}
		c.method = jwt.SigningMethodHS256
		c.signKey = cfg.Secret
		c.verifyKey = cfg.Secret
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		c.method = jwt.SigningMethodEdDSA
		c.signKey = priv
		c.verifyKey = pub
	default:
		return nil, fmt.Errorf("token: unsupported signing method %q", cfg.SigningMethod)
	}

	return c, nil
}

// CreateAccess issues an access token for the user.
func (c *Codec) CreateAccess(userID int64, username, email string, premium bool, ip string) (string, error) {
	claims := Claims{
		Username:  username,
		Email:     email,
		IsPremium: premium,
		IP:        ip,
	}
	return c.sign(userID, claims, c.cfg.AccessTTL)
}

// CreateRefresh issues a refresh token carrying only the subject.
func (c *Codec) CreateRefresh(userID int64) (string, error) {
	return c.sign(userID, Claims{TokenType: "refresh"}, c.cfg.RefreshTTL)
}

// CreateTwoFactorTemp issues the short-lived token that represents the
// pending-two-factor login state.
func (c *Codec) CreateTwoFactorTemp(userID int64) (string, error) {
	return c.sign(userID, Claims{Type: "2fa_temp"}, c.cfg.TwoFactorTTL)
}

func (c *Codec) sign(userID int64, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}
	if c.cfg.Issuer != "" {
		claims.Issuer = c.cfg.Issuer
	}

	return jwt.NewWithClaims(c.method, claims).SignedString(c.signKey)
}

// Decode verifies the signature and expiry and requires the token to be of
// the expected kind. Expiry always wins: an expired token fails with
// ErrTokenExpired even when the kind would not have matched.
func (c *Codec) Decode(tokenStr string, want Kind) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if c.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.cfg.Leeway))
	}
	if c.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.cfg.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Kind() != want {
		return nil, ErrTokenInvalid
	}
	if _, err := claims.UserID(); err != nil {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("token: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("token: invalid ed25519 public key type")
	}
	return edKey, nil
}
