package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType discriminates access tokens from refresh tokens.
type TokenType string

const (
	// TypeAccess marks short-lived tokens presented on API requests.
	TypeAccess TokenType = "access"
	// TypeRefresh marks the long-lived token used to rotate a session.
	TypeRefresh TokenType = "refresh"
)

var (
	// ErrTokenExpired is returned by Parse for a well-formed token past
	// its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned by Parse for anything else: bad
	// signature, malformed payload, wrong algorithm, missing claims.
	ErrTokenInvalid = errors.New("token invalid")
)

const minSecretBytes = 32

// Config holds the deployment signing configuration.
type Config struct {
	// Secret is the HS256 signing key, at least 32 bytes.
	Secret []byte
	// Issuer, when set, is stamped into and required from every token.
	Issuer string
	// AccessTTL and RefreshTTL are the token lifetimes.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Leeway tolerates clock skew during verification.
	Leeway time.Duration
	// Now overrides the time source. Defaults to time.Now.
	Now func() time.Time
}

// Claims is the verified payload of an engine token.
type Claims struct {
	SessionID string    `json:"sid"`
	TokenType TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// Manager issues and parses engine tokens.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, errors.New("jwt: secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("jwt: token TTLs must be positive")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway out of range")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{config: cfg}, nil
}

// IssueAccess mints an access token for the user/session pair.
func (m *Manager) IssueAccess(userID, sessionID string) (string, error) {
	return m.issue(userID, sessionID, TypeAccess, m.config.AccessTTL)
}

// IssueRefresh mints a refresh token for the user/session pair.
func (m *Manager) IssueRefresh(userID, sessionID string) (string, error) {
	return m.issue(userID, sessionID, TypeRefresh, m.config.RefreshTTL)
}

func (m *Manager) issue(userID, sessionID string, typ TokenType, ttl time.Duration) (string, error) {
	now := m.config.Now()
	claims := Claims{
		SessionID: sessionID,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if m.config.Issuer != "" {
		claims.Issuer = m.config.Issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.config.Secret)
}

// Parse verifies the token signature and lifetime and returns its claims.
// Failures collapse to ErrTokenExpired or ErrTokenInvalid.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return m.config.Secret, nil
	}, options...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	switch claims.TokenType {
	case TypeAccess, TypeRefresh:
	default:
		return nil, ErrTokenInvalid
	}

	return &claims, nil
}
