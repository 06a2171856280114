package quota

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ServiceAccessStore resolves explicit per-user grants. Find returns
// ErrNotFound when no grant row exists for the pair.
type ServiceAccessStore interface {
	Create(ctx context.Context, sa *ServiceAccess) error
	Find(ctx context.Context, userID, service string) (*ServiceAccess, error)
}

// AccessValidator answers whether a user may reach a service. An
// explicit grant row decides first; without one, the user's active
// plan's service list decides.
type AccessValidator struct {
	accesses  ServiceAccessStore
	plans     PlanStore
	userPlans UserPlanStore
	now       func() time.Time
}

// ValidatorOption configures an AccessValidator.
type ValidatorOption func(*AccessValidator)

// WithValidatorClock overrides the time source, for tests.
func WithValidatorClock(fn func() time.Time) ValidatorOption {
	return func(v *AccessValidator) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewAccessValidator wires a validator over its stores.
func NewAccessValidator(accesses ServiceAccessStore, plans PlanStore, userPlans UserPlanStore, opts ...ValidatorOption) *AccessValidator {
	v := &AccessValidator{
		accesses:  accesses,
		plans:     plans,
		userPlans: userPlans,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns nil when userID may reach service, ErrAccessDenied
// otherwise.
func (v *AccessValidator) Validate(ctx context.Context, userID, service string) error {
	now := v.now()

	sa, err := v.accesses.Find(ctx, userID, service)
	switch {
	case err == nil:
		if sa.IsActive(now) {
			return nil
		}
		// A disabled or expired grant row is an explicit denial; the
		// plan list does not override it.
		return ErrAccessDenied
	case !errors.Is(err, ErrNotFound):
		return err
	}

	up, err := v.userPlans.FindActiveByUser(ctx, userID, now)
	if errors.Is(err, ErrNotFound) {
		return ErrAccessDenied
	}
	if err != nil {
		return err
	}

	plan, err := v.plans.Get(ctx, up.PlanID)
	if err != nil {
		return err
	}
	if slices.Contains(plan.Services, service) {
		return nil
	}
	return ErrAccessDenied
}
