package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	guardian "github.com/lockshift/guardian"
)

// ProviderStore persists auth provider links. Targets are globally
// unique across all users.
type ProviderStore struct {
	db DB
}

func NewProviderStore(db DB) *ProviderStore {
	return &ProviderStore{db: db}
}

const providerColumns = `id, user_id, provider_type, target, created_at`

func (s *ProviderStore) Create(ctx context.Context, p *guardian.AuthProvider) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO auth_providers (`+providerColumns+`)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.UserID, p.ProviderType, p.Target, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return guardian.ErrProviderExists
		}
		return wrapErr(err)
	}
	return nil
}

func (s *ProviderStore) FindByTarget(ctx context.Context, target string) (*guardian.AuthProvider, error) {
	var p guardian.AuthProvider
	err := s.db.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM auth_providers WHERE target = $1`, target).
		Scan(&p.ID, &p.UserID, &p.ProviderType, &p.Target, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, guardian.ErrProviderNotFound
		}
		return nil, wrapErr(err)
	}
	return &p, nil
}

func (s *ProviderStore) FindByUser(ctx context.Context, userID string) ([]*guardian.AuthProvider, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+providerColumns+` FROM auth_providers WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var providers []*guardian.AuthProvider
	for rows.Next() {
		var p guardian.AuthProvider
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProviderType, &p.Target, &p.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		providers = append(providers, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return providers, nil
}
