package guardian

import (
	"context"
	"time"

	"github.com/lockshift/guardian/quota"
	"github.com/lockshift/guardian/session"
)

// User is an account record. PasswordHash is empty for phone-only
// accounts. DeletedAt soft-deletes: the row stays, authentication stops.
type User struct {
	ID           string
	Email        string
	Phone        string
	PasswordHash string
	IsVerified   bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// CanAuthenticate reports whether the account may log in: verified,
// active and not soft-deleted.
func (u *User) CanAuthenticate() bool {
	return u.IsActive && u.IsVerified && u.DeletedAt == nil
}

// OTP purposes. A code only redeems for the purpose it was issued for.
const (
	PurposeRegistration  = "registration"
	PurposeLogin         = "login"
	PurposePasswordReset = "password_reset"
)

// OtpCode is a single-use verification code. The raw code is never
// stored, only its deterministic hash.
type OtpCode struct {
	ID        string
	Target    string
	CodeHash  string
	Purpose   string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// CanBeUsed reports whether the code is still redeemable at now.
func (o *OtpCode) CanBeUsed(now time.Time) bool {
	return o.UsedAt == nil && o.ExpiresAt.After(now)
}

// Auth provider types.
const (
	ProviderEmail = "email"
	ProviderPhone = "phone"
)

// AuthProvider links a user to one authentication channel (an email
// address or phone number). Targets are unique across providers.
type AuthProvider struct {
	ID           string
	UserID       string
	ProviderType string
	Target       string
	CreatedAt    time.Time
}

// UserStore persists accounts. Lookups return ErrUserNotFound when the
// account is absent; Create returns ErrUserExists on a uniqueness
// conflict.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	MarkVerified(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
}

// OtpStore persists one-time codes. FindValid returns the newest
// unused, unexpired code for the pair, or ErrOtpNotFound.
type OtpStore interface {
	Create(ctx context.Context, o *OtpCode) error
	FindValid(ctx context.Context, target, purpose string, now time.Time) (*OtpCode, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
	// InvalidateAll marks every outstanding code for the pair as used,
	// so only the newest issued code can ever redeem.
	InvalidateAll(ctx context.Context, target, purpose string, at time.Time) error
}

// AuthProviderStore persists provider links. FindByTarget returns
// ErrProviderNotFound when no link claims the target; Create returns
// ErrProviderExists on a uniqueness conflict.
type AuthProviderStore interface {
	Create(ctx context.Context, p *AuthProvider) error
	FindByTarget(ctx context.Context, target string) (*AuthProvider, error)
	FindByUser(ctx context.Context, userID string) ([]*AuthProvider, error)
}

// OTPDeliverer pushes a raw one-time code to its target over some
// side-channel (mail, SMS). The engine triggers delivery and records the
// outcome; it never implements transport.
type OTPDeliverer interface {
	Deliver(ctx context.Context, target, purpose, code string) error
}

// Stores bundles every persistence collaborator the engine needs.
type Stores struct {
	Users         UserStore
	Otps          OtpStore
	Providers     AuthProviderStore
	Sessions      session.Store
	Quotas        quota.Store
	Plans         quota.PlanStore
	UserPlans     quota.UserPlanStore
	ServiceAccess quota.ServiceAccessStore
}

// LoginResult is the outcome of a successful authentication.
type LoginResult struct {
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string
}

// AuthResult is the outcome of a successful access-token validation.
type AuthResult struct {
	UserID    string
	SessionID string
	ExpiresAt time.Time
}
