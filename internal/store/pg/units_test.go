package pg

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"allot.org/internal/alloc"
	"allot.org/internal/ids"
)

const shareFacilitySQL = `select id from facilities where tenant_id = \$1 and id = \$2 and deleted_at is null for share`

func TestCreateUnitStartsAvailable(t *testing.T) {
	s, mock := newStore(t)
	facID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(shareFacilitySQL).WithArgs(tenant, facID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(facID))
	mock.ExpectExec(`insert into units`).
		WithArgs(sqlmock.AnyArg(), tenant, facID, "101", "1", 2, "AVAILABLE", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	u, err := s.CreateUnit(context.Background(), tenant, alloc.NewUnit{FacilityID: facID, Identifier: " 101 ", Floor: "1", Capacity: 2})
	require.NoError(t, err)
	require.Equal(t, alloc.UnitAvailable, u.Status)
	require.Equal(t, "101", u.Identifier)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUnitUnknownFacility(t *testing.T) {
	s, mock := newStore(t)
	facID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(shareFacilitySQL).WithArgs(tenant, facID).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.CreateUnit(context.Background(), tenant, alloc.NewUnit{FacilityID: facID, Identifier: "101", Capacity: 2})
	require.ErrorIs(t, err, alloc.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteUnitInUse(t *testing.T) {
	cases := []struct {
		name   string
		active int
		open   bool
	}{
		{"active assignment", 1, false},
		{"open maintenance", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, mock := newStore(t)
			unitID := ids.New()

			mock.ExpectBegin()
			mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnRows(unitRow(unitID, "AVAILABLE", 2))
			mock.ExpectQuery(unitFactsSQL).WithArgs(tenant, unitID).WillReturnRows(factsRow(tc.active, tc.open))
			mock.ExpectRollback()

			_, err := s.DeleteUnit(context.Background(), tenant, unitID)
			require.ErrorIs(t, err, alloc.ErrInUse)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestDeleteUnitSoftDeletes(t *testing.T) {
	s, mock := newStore(t)
	unitID := ids.New()

	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, unitID).WillReturnRows(unitRow(unitID, "AVAILABLE", 2))
	mock.ExpectQuery(unitFactsSQL).WithArgs(tenant, unitID).WillReturnRows(factsRow(0, false))
	mock.ExpectExec(`update units set deleted_at = \$3`).WithArgs(tenant, unitID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u, err := s.DeleteUnit(context.Background(), tenant, unitID)
	require.NoError(t, err)
	require.NotNil(t, u.DeletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileUnitsCorrectsDrift(t *testing.T) {
	s, mock := newStore(t)
	drifted, clean := ids.New(), ids.New()

	mock.ExpectQuery(`select id from units where tenant_id = \$1 and deleted_at is null order by id`).WithArgs(tenant).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(drifted).AddRow(clean))

	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, drifted).WillReturnRows(unitRow(drifted, "OCCUPIED", 2))
	mock.ExpectQuery(unitFactsSQL).WithArgs(tenant, drifted).WillReturnRows(factsRow(0, false))
	mock.ExpectExec(`update units set status = \$3`).WithArgs(tenant, drifted, "AVAILABLE", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, clean).WillReturnRows(unitRow(clean, "AVAILABLE", 2))
	mock.ExpectQuery(unitFactsSQL).WithArgs(tenant, clean).WillReturnRows(factsRow(1, false))
	mock.ExpectCommit()

	fixed, err := s.ReconcileUnits(context.Background(), tenant)
	require.NoError(t, err)
	require.Len(t, fixed, 1)
	require.Equal(t, drifted, fixed[0].ID)
	require.Equal(t, alloc.UnitAvailable, fixed[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcileUnitsSkipsVanishedUnit(t *testing.T) {
	s, mock := newStore(t)
	gone := ids.New()

	mock.ExpectQuery(`select id from units where`).WithArgs(tenant).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(gone))
	mock.ExpectBegin()
	mock.ExpectQuery(lockUnitSQL).WithArgs(tenant, gone).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	fixed, err := s.ReconcileUnits(context.Background(), tenant)
	require.NoError(t, err)
	require.Empty(t, fixed)
	require.NoError(t, mock.ExpectationsWereMet())
}
