package quota

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Store.Find for a missing quota row.
	ErrNotFound = errors.New("quota not found")
	// ErrExists is returned by Store.Create when another writer already
	// created the row for the same user, service and type.
	ErrExists = errors.New("quota already exists")
	// ErrInsufficientQuota means the requested amount does not fit in
	// the current window.
	ErrInsufficientQuota = errors.New("insufficient quota")
	// ErrAccessDenied means the user has no entitlement to the service.
	ErrAccessDenied = errors.New("service access denied")
)

// InsufficientError carries the numbers behind a denial so callers can
// surface limit, usage and reset time. Matches ErrInsufficientQuota
// under errors.Is.
type InsufficientError struct {
	QuotaType string
	Requested int64
	Used      int64
	Limit     int64
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("insufficient quota for %s: requested %d, used %d of %d",
		e.QuotaType, e.Requested, e.Used, e.Limit)
}

func (e *InsufficientError) Unwrap() error { return ErrInsufficientQuota }
