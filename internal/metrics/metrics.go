// Package metrics holds the engine's in-process event counters. Counters
// are plain atomics; exporting them to a metrics system is a separate
// concern (see the metrics/prometheus package).
package metrics

import "sync/atomic"

// ID identifies a counter.
type ID uint8

const (
	LoginSuccess ID = iota
	LoginFailure
	OtpIssued
	OtpVerified
	OtpRejected
	RefreshSuccess
	RefreshFailure
	RefreshReplay
	RateLimitHit
	SessionCreated
	SessionRevoked
	QuotaConsumed
	QuotaDenied
	AccessDenied
	AuditDropped

	idCount
)

var names = [idCount]string{
	LoginSuccess:   "login_success",
	LoginFailure:   "login_failure",
	OtpIssued:      "otp_issued",
	OtpVerified:    "otp_verified",
	OtpRejected:    "otp_rejected",
	RefreshSuccess: "refresh_success",
	RefreshFailure: "refresh_failure",
	RefreshReplay:  "refresh_replay",
	RateLimitHit:   "rate_limit_hit",
	SessionCreated: "session_created",
	SessionRevoked: "session_revoked",
	QuotaConsumed:  "quota_consumed",
	QuotaDenied:    "quota_denied",
	AccessDenied:   "access_denied",
	AuditDropped:   "audit_dropped",
}

// String returns the stable snake_case counter name.
func (id ID) String() string {
	if id >= idCount {
		return "unknown"
	}
	return names[id]
}

// Metrics is a fixed set of atomic counters. A nil or disabled Metrics
// turns every operation into a no-op.
type Metrics struct {
	enabled  bool
	counters [idCount]atomic.Uint64
}

// New returns a Metrics instance. When enabled is false all operations
// are no-ops and Snapshot returns an empty map.
func New(enabled bool) *Metrics {
	return &Metrics{enabled: enabled}
}

// Inc increments a counter.
func (m *Metrics) Inc(id ID) {
	if m == nil || !m.enabled || id >= idCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot returns a point-in-time copy of all counters keyed by name.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, idCount)
	if m == nil || !m.enabled {
		return out
	}
	for id := ID(0); id < idCount; id++ {
		out[id.String()] = m.counters[id].Load()
	}
	return out
}
