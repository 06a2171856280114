package quota

import "time"

// Unlimited disables the limit check for a quota when used as its Limit.
const Unlimited int64 = -1

// Quota is one user's usage counter for a single quota type of a single
// service. The same type is tracked independently per service.
type Quota struct {
	ID           string
	UserID       string
	Service      string
	QuotaType    string
	Limit        int64
	CurrentUsage int64
	ResetAt      time.Time
	CreatedAt    time.Time
}

// NeedsReset reports whether the usage window has elapsed at now.
func (q *Quota) NeedsReset(now time.Time) bool {
	return !q.ResetAt.After(now)
}

// CanConsume reports whether amount more units fit under the limit.
func (q *Quota) CanConsume(amount int64) bool {
	if q.Limit == Unlimited {
		return true
	}
	return q.CurrentUsage+amount <= q.Limit
}

// Remaining returns the units left in the current window, never negative.
// Unlimited quotas report Unlimited.
func (q *Quota) Remaining() int64 {
	if q.Limit == Unlimited {
		return Unlimited
	}
	if r := q.Limit - q.CurrentUsage; r > 0 {
		return r
	}
	return 0
}

// Plan is a subscription tier: per-type quota limits plus the services
// the tier may reach.
type Plan struct {
	ID          string
	Name        string
	QuotaLimits map[string]int64
	Services    []string
	CreatedAt   time.Time
}

// UserPlan binds a user to a plan for a period.
type UserPlan struct {
	ID        string
	UserID    string
	PlanID    string
	Status    string
	StartedAt time.Time
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// UserPlanActive is the only UserPlan status that confers entitlements.
const UserPlanActive = "active"

// IsActive reports whether the binding confers entitlements at now.
func (up *UserPlan) IsActive(now time.Time) bool {
	if up.Status != UserPlanActive {
		return false
	}
	return up.ExpiresAt == nil || up.ExpiresAt.After(now)
}

// ServiceAccess is an explicit per-user grant to one service.
type ServiceAccess struct {
	ID        string
	UserID    string
	Service   string
	Enabled   bool
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// IsActive reports whether the grant is usable at now.
func (sa *ServiceAccess) IsActive(now time.Time) bool {
	if !sa.Enabled {
		return false
	}
	return sa.ExpiresAt == nil || sa.ExpiresAt.After(now)
}

// Decision is the outcome of a quota evaluation.
type Decision struct {
	Allowed   bool
	Service   string
	QuotaType string
	Limit     int64
	Used      int64
	Remaining int64
	ResetAt   time.Time
}
