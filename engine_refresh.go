package guardian

import (
	"context"
	"errors"

	"github.com/lockshift/guardian/internal/metrics"
	"github.com/lockshift/guardian/jwt"
	"github.com/lockshift/guardian/session"
)

// Refresh rotates a session: the presented refresh token is verified
// against the session it names, the session is revoked and replaced in
// one transaction, and a fresh token pair comes back. A rotated token
// presented again fails; there is no grace reuse.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := e.tokens.Parse(refreshToken)
	if err != nil {
		return nil, e.refreshFailed(ctx, "", "decode_failed", err)
	}
	if claims.TokenType != jwt.TypeRefresh {
		return nil, e.refreshFailed(ctx, claims.SessionID, "wrong_token_type", ErrTokenWrongType)
	}

	sess, err := e.sessions.Authenticate(ctx, claims.SessionID, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return nil, e.refreshFailed(ctx, claims.SessionID, "session_not_found", ErrSessionNotFound)
		case errors.Is(err, session.ErrInactive):
			return nil, e.refreshFailed(ctx, claims.SessionID, "session_inactive", ErrSessionInactive)
		case errors.Is(err, session.ErrSecretMismatch):
			e.metricInc(metrics.RefreshReplay)
			return nil, e.refreshFailed(ctx, claims.SessionID, "replay_detected", ErrTokenInvalid)
		}
		return nil, err
	}

	nextID := e.newID()
	nextRefresh, err := e.tokens.IssueRefresh(sess.UserID, nextID)
	if err != nil {
		return nil, err
	}
	next, err := e.sessions.Rotate(ctx, sess, session.Params{
		ID:            nextID,
		RefreshSecret: nextRefresh,
	})
	if err != nil {
		return nil, err
	}
	e.emitMutation(ctx, "sessions", "update", sess.ID, nil,
		map[string]any{"revoked": true, "successor": next.ID})

	access, err := e.tokens.IssueAccess(sess.UserID, next.ID)
	if err != nil {
		return nil, err
	}

	e.metricInc(metrics.SessionRevoked)
	e.metricInc(metrics.SessionCreated)
	e.metricInc(metrics.RefreshSuccess)
	e.emitBehavior(ctx, behaviorEvent{
		action:    actionTokenRefresh,
		userID:    sess.UserID,
		sessionID: next.ID,
		ip:        sess.IPAddress,
		device:    sess.DeviceInfo,
		success:   true,
	})

	return &LoginResult{
		UserID:       sess.UserID,
		SessionID:    next.ID,
		AccessToken:  access,
		RefreshToken: nextRefresh,
	}, nil
}

func (e *Engine) refreshFailed(ctx context.Context, sessionID, reason string, outward error) error {
	e.metricInc(metrics.RefreshFailure)
	e.emitBehavior(ctx, behaviorEvent{
		action:    actionTokenRefresh,
		sessionID: sessionID,
		err:       outward,
		meta:      map[string]string{"reason": reason},
	})
	return outward
}
