// Package guardian is an embeddable authentication, session and quota
// enforcement engine. It owns credential verification (password and
// one-time codes), JWT issuance and validation, session lifecycle with
// mandatory refresh rotation, fixed-window rate limiting and plan-based
// quota metering.
//
// The engine is a library, not a service: persistence arrives through
// store interfaces (a pgx implementation ships in stores/postgres),
// OTP delivery through the OTPDeliverer side-channel, and rate-limit
// counters through Redis. Construct it with the Builder:
//
//	eng, err := guardian.New().
//		WithConfig(cfg).
//		WithRedis(rdb).
//		WithStores(stores).
//		WithOTPDeliverer(mailer).
//		Build()
//
// All operations take a context and return sentinel errors declared in
// errors.go; credential failures are deliberately coarsened to
// ErrInvalidCredentials so callers cannot learn which part failed.
package guardian
