package guardian

import (
	"errors"

	"github.com/lockshift/guardian/internal/rate"
	"github.com/lockshift/guardian/jwt"
	"github.com/lockshift/guardian/quota"
	"github.com/lockshift/guardian/session"
)

var (
	// ErrEngineNotReady means the engine was not built or a required
	// collaborator is missing.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrUserNotFound means no account matches the identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists means the email or phone is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials covers every credential failure: unknown
	// identifier, wrong password, wrong or spent OTP. Callers get one
	// uniform answer.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotAuthenticable means the credentials were right but
	// the account is unverified, deactivated or deleted.
	ErrAccountNotAuthenticable = errors.New("account cannot authenticate")

	// ErrOtpNotFound means no redeemable code exists for the target.
	ErrOtpNotFound = errors.New("otp not found")
	// ErrProviderNotFound means no auth provider link claims the target.
	ErrProviderNotFound = errors.New("auth provider not found")
	// ErrProviderExists means the target is already linked.
	ErrProviderExists = errors.New("auth provider already linked")
	// ErrPlanNotFound means the named plan does not exist.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrTokenWrongType means a structurally valid token of the wrong
	// type was presented, e.g. an access token to Refresh.
	ErrTokenWrongType = errors.New("wrong token type")

	// ErrStoreUnavailable wraps infrastructure failures from the
	// persistence layer.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDeliveryFailed wraps OTPDeliverer failures.
	ErrDeliveryFailed = errors.New("otp delivery failed")
)

// Re-exported subpackage sentinels, so callers match every engine error
// with errors.Is against this package alone.
var (
	ErrTokenExpired      = jwt.ErrTokenExpired
	ErrTokenInvalid      = jwt.ErrTokenInvalid
	ErrSessionNotFound   = session.ErrNotFound
	ErrSessionInactive   = session.ErrInactive
	ErrRateLimited       = rate.ErrLimited
	ErrInsufficientQuota = quota.ErrInsufficientQuota
	ErrAccessDenied      = quota.ErrAccessDenied
)

// RateLimitedError carries the retry-after hint of a limiter denial.
type RateLimitedError = rate.LimitError

// QuotaExceededError carries the numbers behind a quota denial.
type QuotaExceededError = quota.InsufficientError
