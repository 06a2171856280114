package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	guardian "github.com/lockshift/guardian"
	"github.com/lockshift/guardian/quota"
)

// PlanStore resolves subscription plans. Quota limits live in a jsonb
// column, services in a text array.
type PlanStore struct {
	db DB
}

func NewPlanStore(db DB) *PlanStore {
	return &PlanStore{db: db}
}

const planColumns = `id, name, quota_limits, services, created_at`

func (s *PlanStore) Get(ctx context.Context, id string) (*quota.Plan, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
}

func (s *PlanStore) GetByName(ctx context.Context, name string) (*quota.Plan, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE name = $1`, name))
}

func (s *PlanStore) scanOne(row pgx.Row) (*quota.Plan, error) {
	var p quota.Plan
	err := row.Scan(&p.ID, &p.Name, &p.QuotaLimits, &p.Services, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, guardian.ErrPlanNotFound
		}
		return nil, wrapErr(err)
	}
	return &p, nil
}

// UserPlanStore persists plan bindings.
type UserPlanStore struct {
	db DB
}

func NewUserPlanStore(db DB) *UserPlanStore {
	return &UserPlanStore{db: db}
}

const userPlanColumns = `id, user_id, plan_id, status, started_at, expires_at, created_at`

func (s *UserPlanStore) Create(ctx context.Context, up *quota.UserPlan) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO user_plans (`+userPlanColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		up.ID, up.UserID, up.PlanID, up.Status, up.StartedAt, up.ExpiresAt, up.CreatedAt)
	if err != nil {
		return wrapErr(err)
	}
	return nil
}

// FindActiveByUser returns the newest active binding, or quota.ErrNotFound.
func (s *UserPlanStore) FindActiveByUser(ctx context.Context, userID string, now time.Time) (*quota.UserPlan, error) {
	var up quota.UserPlan
	err := s.db.QueryRow(ctx, `
		SELECT `+userPlanColumns+` FROM user_plans
		WHERE user_id = $1 AND status = $2 AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY started_at DESC
		LIMIT 1`, userID, quota.UserPlanActive, now).
		Scan(&up.ID, &up.UserID, &up.PlanID, &up.Status, &up.StartedAt, &up.ExpiresAt, &up.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, quota.ErrNotFound
		}
		return nil, wrapErr(err)
	}
	return &up, nil
}
