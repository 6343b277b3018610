package pg

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"allot.org/internal/alloc"
	"allot.org/internal/ids"
)

func TestAdmitTimeoutRollsBackAsConflict(t *testing.T) {
	s, mock := newStore(t, WithTxTimeout(50*time.Millisecond), WithMaxAttempts(3))
	unitID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, err := s.Admit(context.Background(), tenant, admission(unitID))
	require.ErrorIs(t, err, alloc.ErrConflict)
	require.True(t, alloc.Retriable(err))
	require.Equal(t, alloc.CodeConflict, alloc.Code(err))
	// One attempt only; the caller decides whether to retry.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServerTimeoutsMapToConflict(t *testing.T) {
	for _, code := range []string{sqlstateLockTimeout, sqlstateQueryCanceled} {
		t.Run(code, func(t *testing.T) {
			s, mock := newStore(t)
			unitID := ids.New()

			mock.ExpectBegin()
			mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnError(&pgconn.PgError{Code: code})
			mock.ExpectRollback()

			_, err := s.Admit(context.Background(), tenant, admission(unitID))
			require.ErrorIs(t, err, alloc.ErrConflict)
			require.NotErrorIs(t, err, alloc.ErrPersistence)
			require.True(t, alloc.Retriable(err))
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUnexpectedStatementFailsAdmit(t *testing.T) {
	s, mock := newStore(t)
	unitID := ids.New()

	expectAdmitReads(mock, unitID, 1, 0, false, false)
	mock.ExpectExec(`insert into assignments`).WillReturnError(&pgconn.PgError{Code: "42P01"})
	mock.ExpectRollback()

	_, err := s.Admit(context.Background(), tenant, admission(unitID))
	require.ErrorIs(t, err, alloc.ErrPersistence)
	require.False(t, alloc.Retriable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
