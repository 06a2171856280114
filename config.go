package guardian

import (
	"errors"
	"time"
)

// TokenConfig controls JWT issuance.
type TokenConfig struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// PasswordConfig controls the credential digest. Salt is deployment-wide
// and must stay stable for the lifetime of the stored hashes.
type PasswordConfig struct {
	Salt       string
	Iterations int
	KeyLength  int
}

// OTPConfig controls one-time code issuance.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
}

// RateLimitConfig controls the fixed-window limiter guarding OTP and
// provider-link operations.
type RateLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// QuotaConfig controls quota defaults and the plan auto-assigned at
// registration. An empty DefaultPlanName disables auto-assignment.
type QuotaConfig struct {
	FallbackLimit   int64
	AnonymousLimit  int64
	ResetPeriod     time.Duration
	DefaultPlanName string
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	TTL time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// Config is the complete engine configuration. Zero value is not
// usable; start from DefaultConfig and set the secrets.
type Config struct {
	Token     TokenConfig
	Password  PasswordConfig
	OTP       OTPConfig
	RateLimit RateLimitConfig
	Quota     QuotaConfig
	Session   SessionConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// DefaultConfig returns the stock configuration. Token.Secret and
// Password.Salt have no defaults and must be supplied.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:     "guardian",
			AccessTTL:  time.Hour,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Iterations: 100_000,
			KeyLength:  32,
		},
		OTP: OTPConfig{
			Digits: 6,
			TTL:    10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			MaxAttempts: 3,
			Window:      15 * time.Minute,
		},
		Quota: QuotaConfig{
			FallbackLimit:   50,
			AnonymousLimit:  1,
			ResetPeriod:     24 * time.Hour,
			DefaultPlanName: "Free",
		},
		Session: SessionConfig{
			TTL: 7 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first configuration problem found. The jwt and
// password constructors re-check their own sections; this catches the
// engine-level ones.
func (c Config) Validate() error {
	if len(c.Token.Secret) < 32 {
		return errors.New("config: token secret must be at least 32 bytes")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if len(c.Password.Salt) < 16 {
		return errors.New("config: password salt must be at least 16 bytes")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("config: otp digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("config: otp ttl must be positive")
	}
	if c.RateLimit.MaxAttempts <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("config: rate limit attempts and window must be positive")
	}
	if c.Quota.ResetPeriod <= 0 {
		return errors.New("config: quota reset period must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("config: session ttl must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("config: audit buffer size must be positive")
	}
	return nil
}
