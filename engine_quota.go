package guardian

import (
	"context"
	"errors"
	"strconv"

	"github.com/lockshift/guardian/internal/metrics"
	"github.com/lockshift/guardian/quota"
)

// QuotaDecision is the outcome of a quota evaluation.
type QuotaDecision = quota.Decision

// CheckQuota evaluates whether amount units would fit for the service
// without consuming them. Amount zero just reports the window state.
func (e *Engine) CheckQuota(ctx context.Context, userID, service, quotaType string, amount int64) (*QuotaDecision, error) {
	d, err := e.quotas.Check(ctx, userID, service, quotaType, amount)
	if err != nil {
		return nil, err
	}
	e.emitBehavior(ctx, behaviorEvent{action: actionQuotaCheck, userID: userID, success: d.Allowed,
		meta: map[string]string{
			"service":    service,
			"quota_type": quotaType,
			"remaining":  strconv.FormatInt(d.Remaining, 10),
		}})
	return d, nil
}

// ConsumeQuota validates service access and atomically consumes amount
// units. On denial the error is a *QuotaExceededError with the actual
// numbers; concurrent consumers can never jointly exceed the limit.
func (e *Engine) ConsumeQuota(ctx context.Context, userID, service, quotaType string, amount int64) (*QuotaDecision, error) {
	d, err := e.quotas.Consume(ctx, userID, service, quotaType, amount)
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrAccessDenied):
			e.metricInc(metrics.AccessDenied)
			e.emitBehavior(ctx, behaviorEvent{action: actionAccessDenied, userID: userID, err: err,
				meta: map[string]string{"service": service}})
		case errors.Is(err, quota.ErrInsufficientQuota):
			e.metricInc(metrics.QuotaDenied)
			e.emitBehavior(ctx, behaviorEvent{action: actionQuotaCheck, userID: userID, err: err,
				meta: map[string]string{"quota_type": quotaType, "service": service}})
		}
		return nil, err
	}

	e.metricInc(metrics.QuotaConsumed)
	e.emitBehavior(ctx, behaviorEvent{action: actionQuotaCheck, userID: userID, success: true,
		meta: map[string]string{
			"quota_type": quotaType,
			"service":    service,
			"consumed":   strconv.FormatInt(amount, 10),
		}})
	return d, nil
}

// ValidateServiceAccess reports whether the user may reach the service.
func (e *Engine) ValidateServiceAccess(ctx context.Context, userID, service string) error {
	err := e.access.Validate(ctx, userID, service)
	if err != nil {
		if errors.Is(err, quota.ErrAccessDenied) {
			e.metricInc(metrics.AccessDenied)
			e.emitBehavior(ctx, behaviorEvent{action: actionAccessDenied, userID: userID, err: err,
				meta: map[string]string{"service": service}})
		}
		return err
	}
	return nil
}
