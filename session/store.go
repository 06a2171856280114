package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get for an unknown session id.
var ErrNotFound = errors.New("session not found")

// Store is the persistence contract for sessions. Implementations must
// keep revoked sessions queryable (the revocation chain is audit data)
// and must make Rotate transactional: a crash mid-rotation leaves either
// the old session intact or the new one fully created, never both
// dangling and never neither.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	// Get fetches by primary key. Revoked and expired sessions are
	// still returned; liveness is the caller's predicate to evaluate.
	Get(ctx context.Context, id string) (*Session, error)
	FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*Session, error)
	// Rotate atomically revokes the session oldID at revokedAt and
	// creates next.
	Rotate(ctx context.Context, oldID string, revokedAt time.Time, next *Session) error
	// Revoke marks a session revoked. Revoking a missing or
	// already-revoked session is a no-op, not an error.
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) error
}
