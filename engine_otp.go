package guardian

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/lockshift/guardian/internal/metrics"
)

// Rate-limited operation names. The limiter key is operation:principal.
const (
	opOtpVerify      = "otp_verify"
	opOtpResendEmail = "otp_resend_email"
	opOtpResendPhone = "otp_resend_phone"
	opProviderLink   = "provider_link"
)

// VerifyRegistration redeems a registration code and marks the account
// verified. Attempts are rate limited per target; the limiter resets on
// success.
func (e *Engine) VerifyRegistration(ctx context.Context, target, code string) error {
	if err := e.checkLimit(ctx, opOtpVerify, target); err != nil {
		return err
	}
	now := e.now()

	otp, err := e.otps.FindValid(ctx, target, PurposeRegistration, now)
	if err != nil {
		if errors.Is(err, ErrOtpNotFound) {
			e.metricInc(metrics.OtpRejected)
			e.emitBehavior(ctx, behaviorEvent{action: actionOtpVerified, err: ErrInvalidCredentials,
				meta: map[string]string{"target": target, "reason": "no_valid_code"}})
			return ErrInvalidCredentials
		}
		return err
	}
	if !otp.CanBeUsed(now) || !e.hasher.Verify(code, otp.CodeHash) {
		e.metricInc(metrics.OtpRejected)
		e.emitBehavior(ctx, behaviorEvent{action: actionOtpVerified, err: ErrInvalidCredentials,
			meta: map[string]string{"target": target, "reason": "code_mismatch"}})
		return ErrInvalidCredentials
	}

	provider, err := e.providers.FindByTarget(ctx, target)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	if err := e.otps.MarkUsed(ctx, otp.ID, now); err != nil {
		return err
	}
	e.emitMutation(ctx, "otp_codes", "update", otp.ID, nil, map[string]any{"used_at": now})

	if err := e.users.MarkVerified(ctx, provider.UserID, now); err != nil {
		return err
	}
	e.emitMutation(ctx, "users", "update", provider.UserID, nil, map[string]any{"is_verified": true})

	if err := e.limiter.Reset(ctx, opOtpVerify, target); err != nil {
		e.log.WarnContext(ctx, "limiter reset failed", "operation", opOtpVerify, "error", err)
	}

	e.metricInc(metrics.OtpVerified)
	e.emitBehavior(ctx, behaviorEvent{action: actionOtpVerified, userID: provider.UserID, success: true,
		meta: map[string]string{"target": target}})
	return nil
}

// ResendEmailOTP issues a fresh code to the user's email address,
// invalidating earlier ones. Limited per user; the limit never resets
// within the window since each issuance counts.
func (e *Engine) ResendEmailOTP(ctx context.Context, userID string) error {
	if err := e.checkLimit(ctx, opOtpResendEmail, userID); err != nil {
		return err
	}
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Email == "" {
		return ErrProviderNotFound
	}
	return e.issueOTP(ctx, user.Email, resendPurpose(user))
}

// ResendPhoneOTP issues a fresh code to the user's phone number,
// invalidating earlier ones.
func (e *Engine) ResendPhoneOTP(ctx context.Context, userID string) error {
	if err := e.checkLimit(ctx, opOtpResendPhone, userID); err != nil {
		return err
	}
	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Phone == "" {
		return ErrProviderNotFound
	}
	return e.issueOTP(ctx, user.Phone, resendPurpose(user))
}

// resendPurpose picks what a reissued code is for: verified accounts get
// login codes, unverified ones are still completing registration.
func resendPurpose(u *User) string {
	if u.IsVerified {
		return PurposeLogin
	}
	return PurposeRegistration
}

// issueOTP mints, stores and dispatches a one-time code. Previously
// valid codes for the pair are invalidated first so only the newest
// redeems. Delivery failure is reported as ErrDeliveryFailed after the
// code is already persisted; a later resend recovers.
func (e *Engine) issueOTP(ctx context.Context, target, purpose string) error {
	now := e.now()

	code, err := e.generateCode()
	if err != nil {
		return err
	}

	if err := e.otps.InvalidateAll(ctx, target, purpose, now); err != nil {
		return err
	}

	otp := &OtpCode{
		ID:        e.newID(),
		Target:    target,
		CodeHash:  e.hasher.Hash(code),
		Purpose:   purpose,
		ExpiresAt: now.Add(e.config.OTP.TTL),
		CreatedAt: now,
	}
	if err := e.otps.Create(ctx, otp); err != nil {
		return err
	}
	e.emitMutation(ctx, "otp_codes", "insert", otp.ID, nil,
		map[string]any{"target": target, "purpose": purpose})
	e.metricInc(metrics.OtpIssued)
	e.emitBehavior(ctx, behaviorEvent{action: actionOtpIssued, success: true,
		meta: map[string]string{"target": target, "purpose": purpose}})

	deliverErr := e.deliverer.Deliver(ctx, target, purpose, code)
	e.emitExternalCall(ctx, target, deliverErr, map[string]string{"purpose": purpose})
	if deliverErr != nil {
		e.log.WarnContext(ctx, "otp delivery failed", "target", target, "purpose", purpose, "error", deliverErr)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, deliverErr)
	}
	return nil
}

// checkLimit runs the fixed-window limiter and records a hit on denial.
func (e *Engine) checkLimit(ctx context.Context, operation, principal string) error {
	err := e.limiter.Check(ctx, operation, principal)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) {
		e.metricInc(metrics.RateLimitHit)
		e.emitBehavior(ctx, behaviorEvent{action: actionAccessDenied, err: err,
			meta: map[string]string{"operation": operation, "reason": "rate_limited"}})
	}
	return err
}

// generateCode draws a uniformly random numeric code of the configured
// width from crypto/rand.
func (e *Engine) generateCode() (string, error) {
	digits := e.config.OTP.Digits
	bound := big.NewInt(1)
	for i := 0; i < digits; i++ {
		bound.Mul(bound, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
