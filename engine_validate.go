package guardian

import (
	"context"
	"errors"

	"github.com/lockshift/guardian/jwt"
	"github.com/lockshift/guardian/session"
)

// Validate checks an access token: signature and expiry first, then the
// session it names must still be active. A logged-out session kills its
// outstanding access tokens immediately.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*AuthResult, error) {
	claims, err := e.tokens.Parse(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != jwt.TypeAccess {
		return nil, ErrTokenWrongType
	}

	sess, err := e.sessions.Lookup(ctx, claims.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return nil, ErrSessionNotFound
		case errors.Is(err, session.ErrInactive):
			return nil, ErrSessionInactive
		}
		return nil, err
	}

	return &AuthResult{
		UserID:    claims.UserID(),
		SessionID: sess.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
