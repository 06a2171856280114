package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	guardian "github.com/lockshift/guardian"
)

// OtpStore persists one-time codes.
type OtpStore struct {
	db DB
}

func NewOtpStore(db DB) *OtpStore {
	return &OtpStore{db: db}
}

const otpColumns = `id, target, code_hash, purpose, expires_at, used_at, created_at`

func (s *OtpStore) Create(ctx context.Context, o *guardian.OtpCode) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO otp_codes (`+otpColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.Target, o.CodeHash, o.Purpose, o.ExpiresAt, o.UsedAt, o.CreatedAt)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

// FindValid returns the newest redeemable code for the pair.
func (s *OtpStore) FindValid(ctx context.Context, target, purpose string, now time.Time) (*guardian.OtpCode, error) {
	var o guardian.OtpCode
	err := s.db.QueryRow(ctx, `
		SELECT `+otpColumns+` FROM otp_codes
		WHERE target = $1 AND purpose = $2 AND used_at IS NULL AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1`, target, purpose, now).
		Scan(&o.ID, &o.Target, &o.CodeHash, &o.Purpose, &o.ExpiresAt, &o.UsedAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, guardian.ErrOtpNotFound
		}
		return nil, wrapErr(err)
	}
	return &o, nil
}

func (s *OtpStore) MarkUsed(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE otp_codes SET used_at = $2 WHERE id = $1 AND used_at IS NULL`, id, at)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return guardian.ErrOtpNotFound
	}
	return nil
}

func (s *OtpStore) InvalidateAll(ctx context.Context, target, purpose string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE otp_codes SET used_at = $3
		WHERE target = $1 AND purpose = $2 AND used_at IS NULL`, target, purpose, at)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}
