package guardian

import (
	"context"

	"github.com/lockshift/guardian/internal/metrics"
)

// Logout revokes a session. Idempotent: a missing or already-revoked
// session still logs out cleanly.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if err := e.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	e.metricInc(metrics.SessionRevoked)
	e.emitBehavior(ctx, behaviorEvent{action: actionLogout, sessionID: sessionID, success: true})
	return nil
}

// LogoutAll revokes every active session the user holds.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	e.metricInc(metrics.SessionRevoked)
	e.emitBehavior(ctx, behaviorEvent{action: actionLogout, userID: userID, success: true,
		meta: map[string]string{"scope": "all"}})
	return nil
}
