package rate

import (
	"context"
	"time"
)

// CounterStore is the ephemeral counter backend. Increment must be a
// single atomic operation that applies ttl only when it creates the key,
// so there is no read-then-write race window.
type CounterStore interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, key string) error
}

// Config holds the fixed-window parameters.
type Config struct {
	// MaxAttempts is the number of checks allowed per window.
	MaxAttempts int
	// Window is the counter lifetime.
	Window time.Duration
}

// Limiter enforces a fixed-window limit per (operation, principal) pair.
type Limiter struct {
	store  CounterStore
	config Config
}

// NewLimiter returns a Limiter over the given counter store.
func NewLimiter(store CounterStore, cfg Config) *Limiter {
	return &Limiter{store: store, config: cfg}
}

func key(operation, principal string) string {
	return operation + ":" + principal
}

// Check counts an attempt and fails with a LimitError once the window
// budget is exceeded. The reported retry-after is the counter's remaining
// TTL, capped by the window length.
func (l *Limiter) Check(ctx context.Context, operation, principal string) error {
	k := key(operation, principal)

	count, err := l.store.Increment(ctx, k, l.config.Window)
	if err != nil {
		return err
	}
	if count <= int64(l.config.MaxAttempts) {
		return nil
	}

	retryAfter := l.config.Window
	if ttl, err := l.store.TTL(ctx, k); err == nil && ttl > 0 {
		retryAfter = ttl
	}
	return &LimitError{Operation: operation, RetryAfter: retryAfter}
}

// Reset clears the counter. Called when the guarded operation succeeds so
// a principal is not penalized after getting it right.
func (l *Limiter) Reset(ctx context.Context, operation, principal string) error {
	return l.store.Delete(ctx, key(operation, principal))
}
