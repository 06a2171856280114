package rate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLimited is the sentinel wrapped by every LimitError.
	ErrLimited = errors.New("rate limited")
	// ErrCounterUnavailable wraps counter-store failures so callers can
	// tell an infrastructure outage from a limit decision.
	ErrCounterUnavailable = errors.New("counter store unavailable")
)

// LimitError reports an exceeded limit and how long until the window
// rolls over.
type LimitError struct {
	Operation  string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %ds", e.Operation, int(e.RetryAfter.Seconds()))
}

func (e *LimitError) Unwrap() error {
	return ErrLimited
}
