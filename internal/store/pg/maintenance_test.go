package pg

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"allot.org/internal/alloc"
	"allot.org/internal/ids"
)

const lockMaintenanceSQL = `select .+ from maintenance_records where tenant_id = \$1 and id = \$2 and deleted_at is null for update`

// dateArg matches a time argument by instant.
type dateArg struct{ want time.Time }

func (d dateArg) Match(v driver.Value) bool {
	t, ok := v.(time.Time)
	return ok && t.Equal(d.want)
}

func maintenanceRow(id, unitID, status string) *sqlmock.Rows {
	scheduled := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{"id", "tenant_id", "unit_id", "status", "description", "scheduled_date", "completed_date",
		"notes", "created_at", "updated_at", "deleted_at"}).
		AddRow(id, tenant, unitID, status, "Replace radiator", scheduled, nil, "", fixedNow, fixedNow, nil)
}

func TestScheduleMaintenanceMarksUnit(t *testing.T) {
	s, mock := newStore(t)
	unitID := ids.New()
	scheduled := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnRows(unitRow(unitID, "OCCUPIED", 2))
	mock.ExpectQuery(unitFactsSQL).WithArgs(tenant, unitID).WillReturnRows(factsRow(2, false))
	mock.ExpectExec(`insert into maintenance_records`).
		WithArgs(sqlmock.AnyArg(), tenant, unitID, "SCHEDULED", "Replace radiator", dateArg{scheduled}, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`update units set status = \$3`).WithArgs(tenant, unitID, "MAINTENANCE", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m, err := s.ScheduleMaintenance(context.Background(), tenant, alloc.NewMaintenance{
		UnitID:        unitID,
		ScheduledDate: "2026-11-01",
		Description:   "Replace radiator",
	})
	require.NoError(t, err)
	require.Equal(t, alloc.MaintenanceScheduled, m.Status)
	require.Equal(t, alloc.UnitMaintenance, m.UnitStatus)
	require.True(t, ids.Valid(m.ID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleMaintenanceUnknownUnit(t *testing.T) {
	s, mock := newStore(t)
	unitID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.ScheduleMaintenance(context.Background(), tenant, alloc.NewMaintenance{
		UnitID:        unitID,
		ScheduledDate: "2026-11-01",
		Description:   "Replace radiator",
	})
	require.ErrorIs(t, err, alloc.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteMaintenanceRecomputesUnit(t *testing.T) {
	cases := []struct {
		name   string
		active int
		want   alloc.UnitStatus
	}{
		{"headroom left", 1, alloc.UnitAvailable},
		{"full", 2, alloc.UnitOccupied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newStore(t)
			recID, unitID := ids.New(), ids.New()
			done := alloc.DateOf(fixedNow)

			mock.ExpectBegin()
			mock.ExpectQuery(lockMaintenanceSQL).WithArgs(tenant, recID).WillReturnRows(maintenanceRow(recID, unitID, "IN_PROGRESS"))
			mock.ExpectExec(`update maintenance_records set status = \$3`).
				WithArgs(tenant, recID, "COMPLETED", dateArg{done}, "", sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnRows(unitRow(unitID, "MAINTENANCE", 2))
			mock.ExpectQuery(unitFactsSQL).WithArgs(tenant, unitID).WillReturnRows(factsRow(tc.active, false))
			mock.ExpectExec(`update units set status = \$3`).WithArgs(tenant, unitID, string(tc.want), sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, 1))
			mock.ExpectCommit()

			m, applied, err := s.UpdateMaintenance(context.Background(), tenant, recID, alloc.MaintenanceUpdate{Status: "COMPLETED"})
			require.NoError(t, err)
			require.True(t, applied)
			require.Equal(t, alloc.MaintenanceCompleted, m.Status)
			require.NotNil(t, m.CompletedDate)
			require.True(t, done.Equal(*m.CompletedDate))
			require.Equal(t, tc.want, m.UnitStatus)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCancelMaintenanceKeepsOtherOpenRecord(t *testing.T) {
	s, mock := newStore(t)
	recID, unitID := ids.New(), ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockMaintenanceSQL).WithArgs(tenant, recID).WillReturnRows(maintenanceRow(recID, unitID, "SCHEDULED"))
	mock.ExpectExec(`update maintenance_records set status = \$3`).
		WithArgs(tenant, recID, "CANCELLED", nil, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnRows(unitRow(unitID, "MAINTENANCE", 2))
	mock.ExpectQuery(unitFactsSQL).WithArgs(tenant, unitID).WillReturnRows(factsRow(0, true))
	mock.ExpectCommit()

	m, applied, err := s.UpdateMaintenance(context.Background(), tenant, recID, alloc.MaintenanceUpdate{Status: "CANCELLED"})
	require.NoError(t, err)
	require.True(t, applied)
	require.Nil(t, m.CompletedDate)
	require.Equal(t, alloc.UnitMaintenance, m.UnitStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTerminalMaintenanceIsNoop(t *testing.T) {
	s, mock := newStore(t)
	recID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockMaintenanceSQL).WithArgs(tenant, recID).WillReturnRows(maintenanceRow(recID, ids.New(), "COMPLETED"))
	mock.ExpectCommit()

	m, applied, err := s.UpdateMaintenance(context.Background(), tenant, recID, alloc.MaintenanceUpdate{Status: "CANCELLED"})
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, alloc.MaintenanceCompleted, m.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMaintenanceRejectsBackwardsMove(t *testing.T) {
	s, mock := newStore(t)
	recID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockMaintenanceSQL).WithArgs(tenant, recID).WillReturnRows(maintenanceRow(recID, ids.New(), "IN_PROGRESS"))
	mock.ExpectRollback()

	_, _, err := s.UpdateMaintenance(context.Background(), tenant, recID, alloc.MaintenanceUpdate{Status: "IN_PROGRESS"})
	require.ErrorIs(t, err, alloc.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}
