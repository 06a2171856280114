package guardian

import (
	"context"
	"errors"

	"github.com/lockshift/guardian/quota"
)

// RegisterWithEmail creates an unverified account with a password
// credential, links the email provider, assigns the default plan and
// dispatches a registration code. The account cannot log in until
// VerifyRegistration succeeds.
func (e *Engine) RegisterWithEmail(ctx context.Context, email, pass string) (*User, error) {
	if email == "" || pass == "" {
		return nil, ErrInvalidCredentials
	}
	return e.register(ctx, &User{
		Email:        email,
		PasswordHash: e.hasher.Hash(pass),
	}, ProviderEmail, email)
}

// RegisterWithPhone creates an unverified passwordless account tied to a
// phone number. Login is via OTP only.
func (e *Engine) RegisterWithPhone(ctx context.Context, phone string) (*User, error) {
	if phone == "" {
		return nil, ErrInvalidCredentials
	}
	return e.register(ctx, &User{Phone: phone}, ProviderPhone, phone)
}

func (e *Engine) register(ctx context.Context, user *User, providerType, target string) (*User, error) {
	now := e.now()
	user.ID = e.newID()
	user.IsActive = true
	user.CreatedAt = now
	user.UpdatedAt = now

	if err := e.users.Create(ctx, user); err != nil {
		return nil, err
	}
	e.emitMutation(ctx, "users", "insert", user.ID, nil,
		map[string]any{"email": user.Email, "phone": user.Phone})

	provider := &AuthProvider{
		ID:           e.newID(),
		UserID:       user.ID,
		ProviderType: providerType,
		Target:       target,
		CreatedAt:    now,
	}
	if err := e.providers.Create(ctx, provider); err != nil {
		return nil, err
	}
	e.emitMutation(ctx, "auth_providers", "insert", provider.ID, nil,
		map[string]any{"user_id": user.ID, "provider_type": providerType})

	if err := e.assignDefaultPlan(ctx, user.ID); err != nil {
		return nil, err
	}

	if err := e.issueOTP(ctx, target, PurposeRegistration); err != nil {
		// The account exists; a failed dispatch is recoverable through
		// the resend path.
		if errors.Is(err, ErrDeliveryFailed) {
			return user, err
		}
		return nil, err
	}
	return user, nil
}

// assignDefaultPlan binds the configured plan and seeds explicit access
// grants for its services. Disabled by an empty DefaultPlanName; a
// missing plan is a deployment error and surfaces.
func (e *Engine) assignDefaultPlan(ctx context.Context, userID string) error {
	name := e.config.Quota.DefaultPlanName
	if name == "" {
		return nil
	}
	now := e.now()

	plan, err := e.plans.GetByName(ctx, name)
	if err != nil {
		return err
	}

	up := &quota.UserPlan{
		ID:        e.newID(),
		UserID:    userID,
		PlanID:    plan.ID,
		Status:    quota.UserPlanActive,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := e.userPlans.Create(ctx, up); err != nil {
		return err
	}
	e.emitMutation(ctx, "user_plans", "insert", up.ID, nil,
		map[string]any{"user_id": userID, "plan_id": plan.ID})

	for _, service := range plan.Services {
		sa := &quota.ServiceAccess{
			ID:        e.newID(),
			UserID:    userID,
			Service:   service,
			Enabled:   true,
			CreatedAt: now,
		}
		if err := e.accesses.Create(ctx, sa); err != nil {
			return err
		}
		e.emitMutation(ctx, "service_access", "insert", sa.ID, nil,
			map[string]any{"user_id": userID, "service": service})
	}
	return nil
}
