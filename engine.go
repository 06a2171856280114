package guardian

import (
	"log/slog"
	"time"

	"github.com/lockshift/guardian/internal/audit"
	"github.com/lockshift/guardian/internal/metrics"
	"github.com/lockshift/guardian/internal/rate"
	"github.com/lockshift/guardian/jwt"
	"github.com/lockshift/guardian/password"
	"github.com/lockshift/guardian/quota"
	"github.com/lockshift/guardian/session"
)

// Engine is the orchestrator behind every authentication, session and
// quota operation. Build one through the Builder; afterwards it is
// immutable and safe for concurrent use.
type Engine struct {
	config Config

	users     UserStore
	otps      OtpStore
	providers AuthProviderStore
	plans     quota.PlanStore
	userPlans quota.UserPlanStore
	accesses  quota.ServiceAccessStore

	sessions *session.Manager
	quotas   *quota.Engine
	access   *quota.AccessValidator
	limiter  *rate.Limiter
	hasher   *password.Hasher
	tokens   *jwt.Manager

	audit     *audit.Dispatcher
	metrics   *metrics.Metrics
	deliverer OTPDeliverer
	log       *slog.Logger

	now   func() time.Time
	newID func() string
}

// Close flushes and stops the audit dispatcher. The engine must not be
// used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() map[string]uint64 {
	if e == nil {
		return map[string]uint64{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id metrics.ID) {
	e.metrics.Inc(id)
}
