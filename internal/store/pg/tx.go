package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"allot.org/internal/alloc"
	"allot.org/internal/obs"
)

const (
	sqlstateSerialization = "40001"
	sqlstateDeadlock      = "40P01"
	sqlstateLockTimeout   = "55P03"
	sqlstateQueryCanceled = "57014"
	sqlstateUnique        = "23505"

	activeOccupantIndex = "assignments_one_active_per_occupant"
	unitIdentifierIndex = "units_identifier_per_facility"
)

// withTx runs fn in a serializable transaction, retrying serialization
// failures and deadlocks up to maxAttempts. Domain errors returned by fn
// pass through untouched; anything else is classified.
func (s *Store) withTx(ctx context.Context, op string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	start := time.Now()
	defer func() { obs.ObserveTxDuration(op, time.Since(start)) }()

	var last error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if !retriable(err) {
			return s.classify(ctx, op, err)
		}
		last = err
		if attempt == s.maxAttempts {
			break
		}
		obs.ObserveTxRetry(op)
		if err := sleep(ctx, backoff(attempt)); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	obs.Logger().WithError(last).WithField("op", op).Warn("transaction retries exhausted")
	return fmt.Errorf("%s: %w", op, alloc.ErrConflict)
}

func (s *Store) attempt(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	actx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(actx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(actx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) classify(ctx context.Context, op string, err error) error {
	if isDomain(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%s: transaction timed out: %w", op, alloc.ErrConflict)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && ctx.Err() == nil &&
		(pgErr.Code == sqlstateLockTimeout || pgErr.Code == sqlstateQueryCanceled) {
		return fmt.Errorf("%s: server timeout %s: %w", op, pgErr.Code, alloc.ErrConflict)
	}
	if errors.As(err, &pgErr) && pgErr.Code == sqlstateUnique {
		switch pgErr.ConstraintName {
		case activeOccupantIndex:
			return alloc.ErrDuplicateActiveAssignment
		case unitIdentifierIndex:
			return alloc.Invalid("identifier", "already exists in this facility")
		}
	}
	obs.Logger().WithError(err).WithField("op", op).Error("storage failure")
	return alloc.Persistence(op, err)
}

func retriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateSerialization || pgErr.Code == sqlstateDeadlock
}

func isDomain(err error) bool {
	var verr *alloc.ValidationError
	if errors.As(err, &verr) {
		return true
	}
	for _, target := range []error{
		alloc.ErrNotFound,
		alloc.ErrCapacityExceeded,
		alloc.ErrDuplicateActiveAssignment,
		alloc.ErrUnitUnavailable,
		alloc.ErrInUse,
		alloc.ErrInvalidTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func backoff(attempt int) time.Duration {
	base := time.Duration(attempt) * 10 * time.Millisecond
	return base + time.Duration(rand.Int64N(int64(10*time.Millisecond)))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
