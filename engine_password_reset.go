package guardian

import (
	"context"
	"errors"

	"github.com/lockshift/guardian/internal/metrics"
)

const (
	opResetRequest = "password_reset_request"
	opResetConfirm = "password_reset_confirm"
)

// RequestPasswordReset dispatches a reset code to the given address.
// Unknown addresses report success so the operation cannot be used to
// enumerate accounts; the request itself is still rate limited.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if email == "" {
		return ErrInvalidCredentials
	}
	if err := e.checkLimit(ctx, opResetRequest, email); err != nil {
		return err
	}

	if _, err := e.users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitBehavior(ctx, behaviorEvent{action: actionPasswordReset, success: true,
				meta: map[string]string{"target": email, "reason": "unknown_email"}})
			return nil
		}
		return err
	}

	return e.issueOTP(ctx, email, PurposePasswordReset)
}

// ConfirmPasswordReset redeems a reset code and replaces the password.
// Every session the user holds is revoked: outstanding tokens minted
// under the old credential die with the reset.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) error {
	if email == "" || newPassword == "" {
		return ErrInvalidCredentials
	}
	if err := e.checkLimit(ctx, opResetConfirm, email); err != nil {
		return err
	}
	now := e.now()

	otp, err := e.otps.FindValid(ctx, email, PurposePasswordReset, now)
	if err != nil {
		if errors.Is(err, ErrOtpNotFound) {
			e.metricInc(metrics.OtpRejected)
			e.emitBehavior(ctx, behaviorEvent{action: actionPasswordReset, err: ErrInvalidCredentials,
				meta: map[string]string{"target": email, "reason": "no_valid_code"}})
			return ErrInvalidCredentials
		}
		return err
	}
	if !otp.CanBeUsed(now) || !e.hasher.Verify(code, otp.CodeHash) {
		e.metricInc(metrics.OtpRejected)
		e.emitBehavior(ctx, behaviorEvent{action: actionPasswordReset, err: ErrInvalidCredentials,
			meta: map[string]string{"target": email, "reason": "code_mismatch"}})
		return ErrInvalidCredentials
	}

	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}

	if err := e.otps.MarkUsed(ctx, otp.ID, now); err != nil {
		return err
	}
	e.emitMutation(ctx, "otp_codes", "update", otp.ID, nil, map[string]any{"used_at": now})

	if err := e.users.UpdatePasswordHash(ctx, user.ID, e.hasher.Hash(newPassword), now); err != nil {
		return err
	}
	e.emitMutation(ctx, "users", "update", user.ID, nil, map[string]any{"password_hash": "rotated"})

	if err := e.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}
	e.metricInc(metrics.SessionRevoked)

	if err := e.limiter.Reset(ctx, opResetConfirm, email); err != nil {
		e.log.WarnContext(ctx, "limiter reset failed", "operation", opResetConfirm, "error", err)
	}

	e.metricInc(metrics.OtpVerified)
	e.emitBehavior(ctx, behaviorEvent{action: actionPasswordReset, userID: user.ID, success: true,
		meta: map[string]string{"target": email}})
	return nil
}
