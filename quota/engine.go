package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence contract for quota rows. ConsumeUsage and
// ResetIfDue are conditional writes; their WHERE clauses are the
// enforcement mechanism, not an optimization.
type Store interface {
	// Find resolves the row for the (user, service, type) triple.
	Find(ctx context.Context, userID, service, quotaType string) (*Quota, error)
	Create(ctx context.Context, q *Quota) error
	// ResetIfDue zeroes usage and moves reset_at to next, but only when
	// the stored reset_at is still at or before now. It returns the row
	// as it stands after the attempt, whether or not this caller won.
	ResetIfDue(ctx context.Context, id string, now, next time.Time) (*Quota, error)
	// ConsumeUsage adds amount to current_usage only when the result
	// stays within the limit (or the limit is Unlimited). It reports
	// whether the write landed.
	ConsumeUsage(ctx context.Context, id string, amount int64) (bool, error)
}

// PlanStore resolves plans by id or name.
type PlanStore interface {
	Get(ctx context.Context, id string) (*Plan, error)
	GetByName(ctx context.Context, name string) (*Plan, error)
}

// UserPlanStore resolves a user's current plan binding. FindActiveByUser
// returns ErrNotFound when the user has no active binding.
type UserPlanStore interface {
	Create(ctx context.Context, up *UserPlan) error
	FindActiveByUser(ctx context.Context, userID string, now time.Time) (*UserPlan, error)
}

// Recorder receives a mutation record for every usage write. A nil
// Recorder disables recording.
type Recorder interface {
	RecordMutation(ctx context.Context, table, operation, recordID string, before, after map[string]any)
}

// Config sets the defaults applied when a user's plan does not answer.
type Config struct {
	// FallbackLimit applies when an active plan has no limit for the
	// quota type.
	FallbackLimit int64
	// AnonymousLimit applies when the user has no active plan at all.
	AnonymousLimit int64
	// ResetPeriod is the usage window length.
	ResetPeriod time.Duration
}

// DefaultConfig returns the stock limits: 50 per day on a plan without
// an explicit limit, 1 per day without a plan.
func DefaultConfig() Config {
	return Config{
		FallbackLimit:  50,
		AnonymousLimit: 1,
		ResetPeriod:    24 * time.Hour,
	}
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the time source, for tests.
func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

// WithIDGenerator overrides quota row id generation.
func WithIDGenerator(fn func() string) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithRecorder attaches a mutation recorder.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// Engine evaluates and consumes quotas. Limits resolve in three tiers:
// the user's active plan's limit for the type, then the fallback limit,
// and the anonymous limit when no plan is active.
type Engine struct {
	store     Store
	plans     PlanStore
	userPlans UserPlanStore
	access    *AccessValidator
	cfg       Config
	recorder  Recorder
	now       func() time.Time
	newID     func() string
}

// NewEngine wires a quota engine over its stores. access may be nil when
// no service gating is wanted; Consume then skips the access check.
func NewEngine(store Store, plans PlanStore, userPlans UserPlanStore, access *AccessValidator, cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     store,
		plans:     plans,
		userPlans: userPlans,
		access:    access,
		cfg:       cfg,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check evaluates whether amount units would fit without consuming them.
// The only write it may perform is a due window reset. amount zero asks
// "is there any quota state" and always allows unless the limit is
// already exhausted by zero, i.e. never.
func (e *Engine) Check(ctx context.Context, userID, service, quotaType string, amount int64) (*Decision, error) {
	q, err := e.touch(ctx, userID, service, quotaType)
	if err != nil {
		return nil, err
	}
	return &Decision{
		Allowed:   q.CanConsume(amount),
		Service:   service,
		QuotaType: quotaType,
		Limit:     q.Limit,
		Used:      q.CurrentUsage,
		Remaining: q.Remaining(),
		ResetAt:   q.ResetAt,
	}, nil
}

// Consume validates service access, then attempts the conditional usage
// write. On denial the returned error is an *InsufficientError carrying
// the post-refetch numbers.
func (e *Engine) Consume(ctx context.Context, userID, service, quotaType string, amount int64) (*Decision, error) {
	if e.access != nil {
		if err := e.access.Validate(ctx, userID, service); err != nil {
			return nil, err
		}
	}

	q, err := e.touch(ctx, userID, service, quotaType)
	if err != nil {
		return nil, err
	}

	ok, err := e.store.ConsumeUsage(ctx, q.ID, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost to concurrent consumers or simply over the limit.
		// Refetch so the error reports what the row actually holds.
		if cur, ferr := e.store.Find(ctx, userID, service, quotaType); ferr == nil {
			q = cur
		}
		return nil, &InsufficientError{
			QuotaType: quotaType,
			Requested: amount,
			Used:      q.CurrentUsage,
			Limit:     q.Limit,
		}
	}

	before := map[string]any{"current_usage": q.CurrentUsage}
	q.CurrentUsage += amount
	if e.recorder != nil {
		e.recorder.RecordMutation(ctx, "quotas", "update", q.ID, before,
			map[string]any{"current_usage": q.CurrentUsage})
	}

	return &Decision{
		Allowed:   true,
		Service:   service,
		QuotaType: quotaType,
		Limit:     q.Limit,
		Used:      q.CurrentUsage,
		Remaining: q.Remaining(),
		ResetAt:   q.ResetAt,
	}, nil
}

// touch returns the user's quota row for the (service, type) pair,
// creating it with the resolved limit when absent and applying a due
// window reset.
func (e *Engine) touch(ctx context.Context, userID, service, quotaType string) (*Quota, error) {
	now := e.now()

	q, err := e.store.Find(ctx, userID, service, quotaType)
	switch {
	case errors.Is(err, ErrNotFound):
		limit, rerr := e.resolveLimit(ctx, userID, quotaType, now)
		if rerr != nil {
			return nil, rerr
		}
		q = &Quota{
			ID:        e.newID(),
			UserID:    userID,
			Service:   service,
			QuotaType: quotaType,
			Limit:     limit,
			ResetAt:   now.Add(e.cfg.ResetPeriod),
			CreatedAt: now,
		}
		if cerr := e.store.Create(ctx, q); cerr != nil {
			// A concurrent toucher may have created the row first;
			// their version is authoritative.
			if errors.Is(cerr, ErrExists) {
				return e.store.Find(ctx, userID, service, quotaType)
			}
			return nil, cerr
		}
		if e.recorder != nil {
			e.recorder.RecordMutation(ctx, "quotas", "insert", q.ID, nil,
				map[string]any{"service": service, "quota_type": quotaType, "limit": limit})
		}
		return q, nil
	case err != nil:
		return nil, err
	}

	if q.NeedsReset(now) {
		next := nextReset(q.ResetAt, e.cfg.ResetPeriod, now)
		fresh, rerr := e.store.ResetIfDue(ctx, q.ID, now, next)
		if rerr != nil {
			return nil, rerr
		}
		if e.recorder != nil && fresh.CurrentUsage == 0 && q.CurrentUsage != 0 {
			e.recorder.RecordMutation(ctx, "quotas", "update", q.ID,
				map[string]any{"current_usage": q.CurrentUsage},
				map[string]any{"current_usage": int64(0), "reset_at": fresh.ResetAt})
		}
		q = fresh
	}
	return q, nil
}

// resolveLimit applies the three-tier default chain.
func (e *Engine) resolveLimit(ctx context.Context, userID, quotaType string, now time.Time) (int64, error) {
	up, err := e.userPlans.FindActiveByUser(ctx, userID, now)
	if errors.Is(err, ErrNotFound) {
		return e.cfg.AnonymousLimit, nil
	}
	if err != nil {
		return 0, err
	}

	plan, err := e.plans.Get(ctx, up.PlanID)
	if err != nil {
		return 0, err
	}
	if limit, ok := plan.QuotaLimits[quotaType]; ok {
		return limit, nil
	}
	return e.cfg.FallbackLimit, nil
}

// nextReset advances the window boundary by whole periods until it lies
// in the future, so boundaries stay aligned to the original schedule no
// matter how late the row is touched.
func nextReset(resetAt time.Time, period time.Duration, now time.Time) time.Time {
	next := resetAt
	for !next.After(now) {
		next = next.Add(period)
	}
	return next
}
