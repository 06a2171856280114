package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lockshift/guardian/quota"
)

// QuotaStore persists usage counters. The conditional clauses in
// ConsumeUsage and ResetIfDue are what makes concurrent enforcement
// correct; they must not be reordered into read-modify-write.
type QuotaStore struct {
	db DB
}

func NewQuotaStore(db DB) *QuotaStore {
	return &QuotaStore{db: db}
}

const quotaColumns = `id, user_id, service_name, quota_type, quota_limit, current_usage, reset_at, created_at`

// Find keys on the (user_id, service_name, quota_type) triple; the same
// quota type is counted independently per service.
func (s *QuotaStore) Find(ctx context.Context, userID, service, quotaType string) (*quota.Quota, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT `+quotaColumns+` FROM quotas WHERE user_id = $1 AND service_name = $2 AND quota_type = $3`,
		userID, service, quotaType))
}

func (s *QuotaStore) Create(ctx context.Context, q *quota.Quota) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO quotas (`+quotaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, q.UserID, q.Service, q.QuotaType, q.Limit, q.CurrentUsage, q.ResetAt, q.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return quota.ErrExists
		}
		return wrapErr(err)
	}
	return nil
}

func (s *QuotaStore) ResetIfDue(ctx context.Context, id string, now, next time.Time) (*quota.Quota, error) {
	_, err := s.db.Exec(ctx, `
		UPDATE quotas SET current_usage = 0, reset_at = $3
		WHERE id = $1 AND reset_at <= $2`, id, now, next)
	if err != nil {
		return nil, wrapErr(err)
	}
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT `+quotaColumns+` FROM quotas WHERE id = $1`, id))
}

func (s *QuotaStore) ConsumeUsage(ctx context.Context, id string, amount int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE quotas SET current_usage = current_usage + $2
		WHERE id = $1 AND (quota_limit < 0 OR current_usage + $2 <= quota_limit)`,
		id, amount)
	if err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *QuotaStore) scanOne(row pgx.Row) (*quota.Quota, error) {
	var q quota.Quota
	err := row.Scan(&q.ID, &q.UserID, &q.Service, &q.QuotaType, &q.Limit,
		&q.CurrentUsage, &q.ResetAt, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, quota.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	return &q, nil
}
