package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lockshift/guardian/session"
)

// SessionStore persists sessions. Revoked rows are kept; the revocation
// chain is part of the audit surface.
type SessionStore struct {
	db DB
}

func NewSessionStore(db DB) *SessionStore {
	return &SessionStore{db: db}
}

const sessionColumns = `id, user_id, refresh_token_hash, device_info, ip_address, expires_at, revoked_at, created_at`

func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sess.ID, sess.UserID, sess.RefreshTokenHash, nullStr(sess.DeviceInfo),
		nullStr(sess.IPAddress), sess.ExpiresAt, sess.RevokedAt, sess.CreatedAt)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	row := s.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	return sess, nil
}

func (s *SessionStore) FindActiveByUser(ctx context.Context, userID string, now time.Time) ([]*session.Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at`, userID, now)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var sessions []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return sessions, nil
}

// Rotate revokes oldID and inserts next in one transaction. Losing a
// rotation race surfaces as ErrInactive: the old session was already
// revoked by the winner.
func (s *SessionStore) Rotate(ctx context.Context, oldID string, revokedAt time.Time, next *session.Session) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return wrapErr(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		oldID, revokedAt)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrInactive
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		next.ID, next.UserID, next.RefreshTokenHash, nullStr(next.DeviceInfo),
		nullStr(next.IPAddress), next.ExpiresAt, next.RevokedAt, next.CreatedAt)
	if err != nil {
		return wrapErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr(err)
	}
	return nil
}

func (s *SessionStore) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, at)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

func scanSession(row pgx.Row) (*session.Session, error) {
	var (
		sess       session.Session
		device, ip *string
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.RefreshTokenHash,
		&device, &ip, &sess.ExpiresAt, &sess.RevokedAt, &sess.CreatedAt)
	if err != nil {
		return nil, err
	}
	sess.DeviceInfo = deref(device)
	sess.IPAddress = deref(ip)
	return &sess, nil
}
