package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	guardian "github.com/lockshift/guardian"
)

// UserStore persists accounts in the users table. Email and phone are
// nullable unique columns; empty strings are stored as NULL so two
// phone-only accounts never collide on email.
type UserStore struct {
	db DB
}

func NewUserStore(db DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, phone, password_hash, is_verified, is_active, created_at, updated_at, deleted_at`

func (s *UserStore) Create(ctx context.Context, u *guardian.User) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, phone, password_hash, is_verified, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, nullStr(u.Email), nullStr(u.Phone), nullStr(u.PasswordHash),
		u.IsVerified, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return guardian.ErrUserExists
		}
		return wrapErr(err)
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*guardian.User, error) {
	return s.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*guardian.User, error) {
	return s.get(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (s *UserStore) GetByPhone(ctx context.Context, phone string) (*guardian.User, error) {
	return s.get(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
}

func (s *UserStore) get(ctx context.Context, query string, arg any) (*guardian.User, error) {
	var (
		u                     guardian.User
		email, phone, pwdHash *string
	)
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&u.ID, &email, &phone, &pwdHash,
		&u.IsVerified, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, guardian.ErrUserNotFound
		}
		return nil, wrapErr(err)
	}
	u.Email = deref(email)
	u.Phone = deref(phone)
	u.PasswordHash = deref(pwdHash)
	return &u, nil
}

func (s *UserStore) MarkVerified(ctx context.Context, id string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET is_verified = TRUE, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return guardian.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return guardian.ErrUserNotFound
	}
	return nil
}
