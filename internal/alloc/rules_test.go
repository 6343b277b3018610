package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveUnitStatus(t *testing.T) {
	cases := []struct {
		active, capacity int
		maintenance      bool
		want             UnitStatus
	}{
		{0, 1, false, UnitAvailable},
		{1, 1, false, UnitOccupied},
		{1, 4, false, UnitAvailable},
		{4, 4, false, UnitOccupied},
		{0, 2, true, UnitMaintenance},
		{2, 2, true, UnitMaintenance},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, DeriveUnitStatus(tc.active, tc.capacity, tc.maintenance), "%+v", tc)
	}
}

func TestCheckAdmissionOrder(t *testing.T) {
	full := AdmissionFacts{Capacity: 1, ActiveOnUnit: 1}
	require.ErrorIs(t, CheckAdmission(full), ErrCapacityExceeded)

	full.OccupantHasActive = true
	require.ErrorIs(t, CheckAdmission(full), ErrDuplicateActiveAssignment)

	full.OpenMaintenance = true
	require.ErrorIs(t, CheckAdmission(full), ErrUnitUnavailable)

	require.NoError(t, CheckAdmission(AdmissionFacts{Capacity: 2, ActiveOnUnit: 1}))
}

func TestCheckMaintenanceMove(t *testing.T) {
	ok, err := CheckMaintenanceMove(MaintenanceScheduled, MaintenanceInProgress)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = CheckMaintenanceMove(MaintenanceInProgress, MaintenanceCompleted)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = CheckMaintenanceMove(MaintenanceCompleted, MaintenanceCancelled)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = CheckMaintenanceMove(MaintenanceInProgress, MaintenanceInProgress)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = CheckMaintenanceMove(MaintenanceInProgress, MaintenanceScheduled)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCodeMapping(t *testing.T) {
	require.Equal(t, CodeValidation, Code(Invalid("x", "bad")))
	require.Equal(t, CodeCapacityExceeded, Code(ErrCapacityExceeded))
	require.Equal(t, CodeNotFound, Code(ErrNotFound))
	require.Equal(t, CodeInternal, Code(Persistence("admit", errTest)))
	require.True(t, Retriable(ErrConflict))
	require.False(t, Retriable(ErrCapacityExceeded))
}
