package guardian

import (
	"context"
	"errors"

	"github.com/lockshift/guardian/internal/metrics"
	"github.com/lockshift/guardian/session"
)

// LoginWithPassword authenticates an email/password pair and opens a
// session. Every credential failure reads the same from the outside;
// only the audit trail records which step actually failed.
func (e *Engine) LoginWithPassword(ctx context.Context, email, pass, device, ip string) (*LoginResult, error) {
	user, err := e.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.loginFailed(ctx, "", device, ip, "user_not_found", ErrInvalidCredentials)
		}
		return nil, err
	}
	if user.PasswordHash == "" || !e.hasher.Verify(pass, user.PasswordHash) {
		return nil, e.loginFailed(ctx, user.ID, device, ip, "password_mismatch", ErrInvalidCredentials)
	}
	if !user.CanAuthenticate() {
		return nil, e.loginFailed(ctx, user.ID, device, ip, "account_status", ErrAccountNotAuthenticable)
	}

	return e.startSession(ctx, user.ID, device, ip)
}

// LoginWithOTP authenticates a phone number with a login code. Attempts
// are rate limited per phone; the code is burned on successful
// verification even when the account turns out to be unauthenticable.
func (e *Engine) LoginWithOTP(ctx context.Context, phone, code, device, ip string) (*LoginResult, error) {
	if err := e.checkLimit(ctx, opOtpVerify, phone); err != nil {
		return nil, err
	}
	now := e.now()

	user, err := e.users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.loginFailed(ctx, "", device, ip, "user_not_found", ErrInvalidCredentials)
		}
		return nil, err
	}

	otp, err := e.otps.FindValid(ctx, phone, PurposeLogin, now)
	if err != nil {
		if errors.Is(err, ErrOtpNotFound) {
			e.metricInc(metrics.OtpRejected)
			return nil, e.loginFailed(ctx, user.ID, device, ip, "no_valid_code", ErrInvalidCredentials)
		}
		return nil, err
	}
	if !otp.CanBeUsed(now) || !e.hasher.Verify(code, otp.CodeHash) {
		e.metricInc(metrics.OtpRejected)
		return nil, e.loginFailed(ctx, user.ID, device, ip, "code_mismatch", ErrInvalidCredentials)
	}

	if err := e.otps.MarkUsed(ctx, otp.ID, now); err != nil {
		return nil, err
	}
	e.emitMutation(ctx, "otp_codes", "update", otp.ID, nil, map[string]any{"used_at": now})
	e.metricInc(metrics.OtpVerified)

	if !user.CanAuthenticate() {
		return nil, e.loginFailed(ctx, user.ID, device, ip, "account_status", ErrAccountNotAuthenticable)
	}

	if err := e.limiter.Reset(ctx, opOtpVerify, phone); err != nil {
		e.log.WarnContext(ctx, "limiter reset failed", "operation", opOtpVerify, "error", err)
	}

	return e.startSession(ctx, user.ID, device, ip)
}

// startSession opens a session and mints the token pair. The session id
// is pre-minted so the refresh token can embed it; the stored secret is
// the hash of the signed refresh token itself.
func (e *Engine) startSession(ctx context.Context, userID, device, ip string) (*LoginResult, error) {
	sessionID := e.newID()

	refresh, err := e.tokens.IssueRefresh(userID, sessionID)
	if err != nil {
		return nil, err
	}
	access, err := e.tokens.IssueAccess(userID, sessionID)
	if err != nil {
		return nil, err
	}

	sess, err := e.sessions.Create(ctx, session.Params{
		ID:            sessionID,
		UserID:        userID,
		DeviceInfo:    device,
		IPAddress:     ip,
		RefreshSecret: refresh,
	})
	if err != nil {
		return nil, err
	}
	e.emitMutation(ctx, "sessions", "insert", sess.ID, nil, map[string]any{"user_id": userID})

	e.metricInc(metrics.SessionCreated)
	e.metricInc(metrics.LoginSuccess)
	e.emitBehavior(ctx, behaviorEvent{
		action:    actionLoginSuccess,
		userID:    userID,
		sessionID: sess.ID,
		ip:        ip,
		device:    device,
		success:   true,
	})

	return &LoginResult{
		UserID:       userID,
		SessionID:    sess.ID,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// loginFailed records the real reason internally and returns the
// caller-facing error unchanged.
func (e *Engine) loginFailed(ctx context.Context, userID, device, ip, reason string, outward error) error {
	e.metricInc(metrics.LoginFailure)
	e.emitBehavior(ctx, behaviorEvent{
		action: actionLoginFailed,
		userID: userID,
		ip:     ip,
		device: device,
		err:    outward,
		meta:   map[string]string{"reason": reason},
	})
	return outward
}
