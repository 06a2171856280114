// Package quota meters per-user consumption against plan-derived limits.
// Counters are keyed by (user, service, quota type): the same type is
// metered independently for every service a user touches.
// Enforcement is storage-backed: the decisive write is a conditional
// update that only lands when the increment stays within the limit, so
// concurrent consumers can never jointly overshoot. Windows reset lazily
// on first touch after expiry; nothing runs on a timer.
package quota
