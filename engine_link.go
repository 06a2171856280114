package guardian

import (
	"context"
	"errors"
)

// LinkProvider attaches an additional authentication channel to an
// existing account and dispatches a verification code to the new target.
// Limited per user; a target already linked anywhere returns
// ErrProviderExists.
func (e *Engine) LinkProvider(ctx context.Context, userID, providerType, target string) (*AuthProvider, error) {
	if providerType != ProviderEmail && providerType != ProviderPhone {
		return nil, ErrProviderNotFound
	}
	if err := e.checkLimit(ctx, opProviderLink, userID); err != nil {
		return nil, err
	}

	if _, err := e.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	_, err := e.providers.FindByTarget(ctx, target)
	switch {
	case err == nil:
		return nil, ErrProviderExists
	case !errors.Is(err, ErrProviderNotFound):
		return nil, err
	}

	provider := &AuthProvider{
		ID:           e.newID(),
		UserID:       userID,
		ProviderType: providerType,
		Target:       target,
		CreatedAt:    e.now(),
	}
	if err := e.providers.Create(ctx, provider); err != nil {
		return nil, err
	}
	e.emitMutation(ctx, "auth_providers", "insert", provider.ID, nil,
		map[string]any{"user_id": userID, "provider_type": providerType})

	if err := e.issueOTP(ctx, target, PurposeRegistration); err != nil {
		if errors.Is(err, ErrDeliveryFailed) {
			return provider, err
		}
		return nil, err
	}
	return provider, nil
}
