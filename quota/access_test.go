package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAccessStore struct {
	mu     sync.Mutex
	grants []*ServiceAccess
}

func (s *memAccessStore) Create(_ context.Context, sa *ServiceAccess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sa
	s.grants = append(s.grants, &cp)
	return nil
}

func (s *memAccessStore) Find(_ context.Context, userID, service string) (*ServiceAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sa := range s.grants {
		if sa.UserID == userID && sa.Service == service {
			cp := *sa
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func TestAccessValidator(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	accesses := &memAccessStore{}
	plans := &memPlanStore{plans: map[string]*Plan{
		"pro": {ID: "pro", Name: "Pro", Services: []string{"api", "exports"}},
	}}
	userPlans := &memUserPlanStore{}
	require.NoError(t, userPlans.Create(ctx, &UserPlan{
		ID: "up-1", UserID: "planned", PlanID: "pro",
		Status: UserPlanActive, StartedAt: now,
	}))

	v := NewAccessValidator(accesses, plans, userPlans,
		WithValidatorClock(func() time.Time { return now }))

	t.Run("explicit grant wins", func(t *testing.T) {
		require.NoError(t, accesses.Create(ctx, &ServiceAccess{
			ID: "sa-1", UserID: "granted", Service: "api", Enabled: true,
		}))
		assert.NoError(t, v.Validate(ctx, "granted", "api"))
	})

	t.Run("disabled grant denies despite plan", func(t *testing.T) {
		require.NoError(t, accesses.Create(ctx, &ServiceAccess{
			ID: "sa-2", UserID: "planned", Service: "exports", Enabled: false,
		}))
		assert.ErrorIs(t, v.Validate(ctx, "planned", "exports"), ErrAccessDenied)
	})

	t.Run("expired grant denies", func(t *testing.T) {
		past := now.Add(-time.Hour)
		require.NoError(t, accesses.Create(ctx, &ServiceAccess{
			ID: "sa-3", UserID: "expired", Service: "api", Enabled: true, ExpiresAt: &past,
		}))
		assert.ErrorIs(t, v.Validate(ctx, "expired", "api"), ErrAccessDenied)
	})

	t.Run("plan service list answers without a grant", func(t *testing.T) {
		assert.NoError(t, v.Validate(ctx, "planned", "api"))
		assert.ErrorIs(t, v.Validate(ctx, "planned", "admin"), ErrAccessDenied)
	})

	t.Run("no plan no grant denies", func(t *testing.T) {
		assert.ErrorIs(t, v.Validate(ctx, "nobody", "api"), ErrAccessDenied)
	})
}
