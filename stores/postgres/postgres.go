// Package postgres provides pgx-backed implementations of the engine's
// store interfaces. Quota consumption and window resets are conditional
// updates; session rotation runs in a transaction. Schema migration is
// the deployment's concern.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	guardian "github.com/lockshift/guardian"
)

// DB is the subset of pgxpool.Pool the stores use. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NewStores returns the full store bundle over one connection pool.
func NewStores(db DB) guardian.Stores {
	return guardian.Stores{
		Users:         NewUserStore(db),
		Otps:          NewOtpStore(db),
		Providers:     NewProviderStore(db),
		Sessions:      NewSessionStore(db),
		Quotas:        NewQuotaStore(db),
		Plans:         NewPlanStore(db),
		UserPlans:     NewUserPlanStore(db),
		ServiceAccess: NewServiceAccessStore(db),
	}
}

func wrapErr(err error) error {
	return fmt.Errorf("%w: %v", guardian.ErrStoreUnavailable, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
