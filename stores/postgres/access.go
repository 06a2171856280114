package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/lockshift/guardian/quota"
)

// ServiceAccessStore persists explicit per-user service grants.
type ServiceAccessStore struct {
	db DB
}

func NewServiceAccessStore(db DB) *ServiceAccessStore {
	return &ServiceAccessStore{db: db}
}

const accessColumns = `id, user_id, service, enabled, expires_at, created_at`

func (s *ServiceAccessStore) Create(ctx context.Context, sa *quota.ServiceAccess) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO service_access (`+accessColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sa.ID, sa.UserID, sa.Service, sa.Enabled, sa.ExpiresAt, sa.CreatedAt)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

func (s *ServiceAccessStore) Find(ctx context.Context, userID, service string) (*quota.ServiceAccess, error) {
	var sa quota.ServiceAccess
	err := s.db.QueryRow(ctx, `
		SELECT `+accessColumns+` FROM service_access
		WHERE user_id = $1 AND service = $2`, userID, service).
		Scan(&sa.ID, &sa.UserID, &sa.Service, &sa.Enabled, &sa.ExpiresAt, &sa.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, quota.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	return &sa, nil
}
