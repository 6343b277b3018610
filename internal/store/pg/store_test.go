package pg

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"allot.org/internal/alloc"
	"allot.org/internal/ids"
)

const tenant = "tenant-a"

var (
	fixedNow     = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	lockUnitSQL  = `select ` + regexp.QuoteMeta(unitColumns) + ` from units where tenant_id = \$1 and id = \$2 and deleted_at is null for update`
	unitFactsSQL = `select \(select count\(\*\) from assignments where tenant_id = \$1 and unit_id = \$2 and status = 'ACTIVE'\), exists\(select 1 from maintenance_records`
	occupantSQL  = `select exists\(select 1 from assignments where tenant_id = \$1 and occupant_id = \$2 and status = 'ACTIVE'\)`
	lockAsgSQL   = `select ` + regexp.QuoteMeta(assignmentColumns) + ` from assignments where tenant_id = \$1 and id = \$2 for update`
)

func newStore(t *testing.T, opts ...Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(db, opts...), mock
}

func unitRow(id, status string, capacity int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "tenant_id", "facility_id", "identifier", "floor", "capacity", "status", "created_at", "updated_at", "deleted_at"}).
		AddRow(id, tenant, "fac-1", "101", "1", capacity, status, fixedNow, fixedNow, nil)
}

func factsRow(active int, open bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count", "exists"}).AddRow(active, open)
}

func assignmentRow(id, unitID, status string) *sqlmock.Rows {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{"id", "tenant_id", "facility_id", "unit_id", "occupant_id", "start_date", "end_date", "status",
		"fee_amount", "deposit_amount", "notes", "created_by", "created_at", "updated_at"}).
		AddRow(id, tenant, "fac-1", unitID, "student-1", start, nil, status, int64(0), int64(0), "", "", fixedNow, fixedNow)
}

func expectAdmitReads(mock sqlmock.Sqlmock, unitID string, capacity, active int, open, occupied bool) {
	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnRows(unitRow(unitID, "AVAILABLE", capacity))
	mock.ExpectQuery(unitFactsSQL).WithArgs(tenant, unitID).WillReturnRows(factsRow(active, open))
	mock.ExpectQuery(occupantSQL).WithArgs(tenant, "student-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(occupied))
}

func admission(unitID string) alloc.Admission {
	return alloc.Admission{UnitID: unitID, OccupantID: "student-1", StartDate: "2026-09-01", FeeAmount: 150000}
}

func TestAdmitLocksUnitAndRecomputes(t *testing.T) {
	s, mock := newStore(t)
	unitID := ids.New()

	expectAdmitReads(mock, unitID, 1, 0, false, false)
	mock.ExpectExec(`insert into assignments`).
		WithArgs(sqlmock.AnyArg(), tenant, "fac-1", unitID, "student-1", sqlmock.AnyArg(), sqlmock.AnyArg(), "ACTIVE",
			int64(150000), int64(0), "", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`update units set status = \$3`).WithArgs(tenant, unitID, "OCCUPIED", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, err := s.Admit(context.Background(), tenant, admission(unitID))
	require.NoError(t, err)
	require.Equal(t, alloc.AssignmentActive, a.Status)
	require.Equal(t, "fac-1", a.FacilityID)
	require.Equal(t, alloc.UnitOccupied, a.UnitStatus)
	require.True(t, ids.Valid(a.ID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitRejectsFullUnit(t *testing.T) {
	s, mock := newStore(t)
	unitID := ids.New()

	expectAdmitReads(mock, unitID, 2, 2, false, false)
	mock.ExpectRollback()

	_, err := s.Admit(context.Background(), tenant, admission(unitID))
	require.ErrorIs(t, err, alloc.ErrCapacityExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitRejectsUnitUnderMaintenance(t *testing.T) {
	s, mock := newStore(t)
	unitID := ids.New()

	expectAdmitReads(mock, unitID, 2, 0, true, false)
	mock.ExpectRollback()

	_, err := s.Admit(context.Background(), tenant, admission(unitID))
	require.ErrorIs(t, err, alloc.ErrUnitUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitMapsActiveOccupantIndex(t *testing.T) {
	s, mock := newStore(t)
	unitID := ids.New()

	expectAdmitReads(mock, unitID, 2, 0, false, false)
	mock.ExpectExec(`insert into assignments`).
		WillReturnError(&pgconn.PgError{Code: sqlstateUnique, ConstraintName: activeOccupantIndex})
	mock.ExpectRollback()

	_, err := s.Admit(context.Background(), tenant, admission(unitID))
	require.ErrorIs(t, err, alloc.ErrDuplicateActiveAssignment)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitRetriesSerializationFailure(t *testing.T) {
	s, mock := newStore(t, WithMaxAttempts(3))
	unitID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnError(&pgconn.PgError{Code: sqlstateSerialization})
	mock.ExpectRollback()

	expectAdmitReads(mock, unitID, 1, 0, false, false)
	mock.ExpectExec(`insert into assignments`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`update units set status = \$3`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, err := s.Admit(context.Background(), tenant, admission(unitID))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitSurfacesConflictAfterRetries(t *testing.T) {
	s, mock := newStore(t, WithMaxAttempts(2))
	unitID := ids.New()

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnError(&pgconn.PgError{Code: sqlstateDeadlock})
		mock.ExpectRollback()
	}

	_, err := s.Admit(context.Background(), tenant, admission(unitID))
	require.ErrorIs(t, err, alloc.ErrConflict)
	require.True(t, alloc.Retriable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitUnknownUnit(t *testing.T) {
	s, mock := newStore(t)

	_, err := s.Admit(context.Background(), tenant, admission("not-a-ulid"))
	require.ErrorIs(t, err, alloc.ErrNotFound)

	unitID := ids.New()
	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()
	_, err = s.Admit(context.Background(), tenant, admission(unitID))
	require.ErrorIs(t, err, alloc.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdmitValidatesBeforeTransaction(t *testing.T) {
	s, mock := newStore(t)
	_, err := s.Admit(context.Background(), tenant, alloc.Admission{UnitID: ids.New(), StartDate: "tomorrow"})
	var verr *alloc.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Violations, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionCompletesAndFreesUnit(t *testing.T) {
	s, mock := newStore(t)
	asgID, unitID := ids.New(), ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockAsgSQL).WithArgs(tenant, asgID).WillReturnRows(assignmentRow(asgID, unitID, "ACTIVE"))
	mock.ExpectExec(`update assignments set status = \$3`).
		WithArgs(tenant, asgID, "COMPLETED", sqlmock.AnyArg(), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnRows(unitRow(unitID, "OCCUPIED", 1))
	mock.ExpectQuery(unitFactsSQL).WithArgs(tenant, unitID).WillReturnRows(factsRow(0, false))
	mock.ExpectExec(`update units set status = \$3`).WithArgs(tenant, unitID, "AVAILABLE", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	a, applied, err := s.Transition(context.Background(), tenant, asgID, alloc.Transition{Status: "completed"})
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, alloc.AssignmentCompleted, a.Status)
	require.Equal(t, alloc.DateOf(fixedNow), *a.EndDate)
	require.Equal(t, alloc.UnitAvailable, a.UnitStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionTerminalIsNoop(t *testing.T) {
	s, mock := newStore(t)
	asgID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockAsgSQL).WithArgs(tenant, asgID).WillReturnRows(assignmentRow(asgID, ids.New(), "CANCELLED"))
	mock.ExpectCommit()

	a, applied, err := s.Transition(context.Background(), tenant, asgID, alloc.Transition{Status: "COMPLETED"})
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, alloc.AssignmentCancelled, a.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnitScopedToTenant(t *testing.T) {
	s, mock := newStore(t)
	unitID := ids.New()

	mock.ExpectQuery(`from units where tenant_id = \$1 and id = \$2 and deleted_at is null`).
		WithArgs("tenant-b", unitID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetUnit(context.Background(), "tenant-b", unitID)
	require.ErrorIs(t, err, alloc.ErrNotFound)

	_, err = s.GetUnit(context.Background(), "tenant-b", "garbage")
	require.ErrorIs(t, err, alloc.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAssignmentsQuery(t *testing.T) {
	s, mock := newStore(t)
	unitID := ids.New()

	mock.ExpectQuery(regexp.QuoteMeta(`select `+assignmentColumns+` from assignments where tenant_id = $1 and unit_id = $2 and status in ($3) order by start_date desc, id desc limit $4 offset $5`)).
		WithArgs(tenant, unitID, "ACTIVE", 100, 0).
		WillReturnRows(assignmentRow(ids.New(), unitID, "ACTIVE"))

	out, err := s.ListAssignments(context.Background(), tenant, alloc.AssignmentFilter{UnitID: unitID, Limit: 5000, Offset: -3})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFacilityInUse(t *testing.T) {
	s, mock := newStore(t)
	facID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`from facilities where tenant_id = \$1 and id = \$2 and deleted_at is null for update`).
		WithArgs(tenant, facID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "name", "total_capacity", "status", "contact_email", "contact_phone", "created_at", "updated_at", "deleted_at"}).
			AddRow(facID, tenant, "North Hall", 40, "ACTIVE", "", "", fixedNow, fixedNow, nil))
	mock.ExpectQuery(`select exists\(select 1 from units`).WithArgs(tenant, facID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := s.DeleteFacility(context.Background(), tenant, facID)
	require.ErrorIs(t, err, alloc.ErrInUse)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageFailureIsWrapped(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectExec(`insert into facilities`).WillReturnError(errors.New("connection reset"))

	_, err := s.CreateFacility(context.Background(), tenant, alloc.NewFacility{Name: "South Hall"})
	require.ErrorIs(t, err, alloc.ErrPersistence)
	require.Equal(t, alloc.CodeInternal, alloc.Code(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRequiresTenant(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.ListUnits(context.Background(), " ", alloc.UnitFilter{})
	require.Equal(t, alloc.CodeMissingTenant, alloc.Code(err))
}

func TestTransitionEndBeforeStartRollsBack(t *testing.T) {
	s, mock := newStore(t)
	asgID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockAsgSQL).WithArgs(tenant, asgID).WillReturnRows(assignmentRow(asgID, ids.New(), "ACTIVE"))
	mock.ExpectRollback()

	_, applied, err := s.Transition(context.Background(), tenant, asgID, alloc.Transition{Status: "COMPLETED", EndDate: "2026-08-01"})
	require.False(t, applied)
	var verr *alloc.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "end_date", verr.Violations[0].Field)
	require.NoError(t, mock.ExpectationsWereMet())
}
