package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"allot.org/internal/alloc"
)

func TestRunCoversEveryTenant(t *testing.T) {
	svc := alloc.NewInMemory()
	ctx := context.Background()
	for _, tenant := range []string{"t1", "t2"} {
		f, err := svc.CreateFacility(ctx, tenant, alloc.NewFacility{Name: "Hall"})
		require.NoError(t, err)
		u, err := svc.CreateUnit(ctx, tenant, alloc.NewUnit{FacilityID: f.ID, Identifier: "1", Capacity: 1})
		require.NoError(t, err)
		_, err = svc.Admit(ctx, tenant, alloc.Admission{UnitID: u.ID, OccupantID: "s", StartDate: "2026-09-01"})
		require.NoError(t, err)
	}

	n, err := NewReconciler(svc).Run(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestScheduleValidatesSpec(t *testing.T) {
	r := NewReconciler(alloc.NewInMemory())

	c, err := Schedule("", r)
	require.NoError(t, err)
	require.Nil(t, c)

	_, err = Schedule("not a cron spec", r)
	require.Error(t, err)

	c, err = Schedule("*/5 * * * *", r)
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)
}

type driftService struct {
	alloc.Service
	calls []string
}

func (d *driftService) TenantIDs(context.Context) ([]string, error) {
	return []string{"t1", "t2", "t3"}, nil
}

func (d *driftService) ReconcileUnits(_ context.Context, tenantID string) ([]alloc.Unit, error) {
	d.calls = append(d.calls, tenantID)
	switch tenantID {
	case "t1":
		return []alloc.Unit{{ID: "u1", Status: alloc.UnitOccupied}, {ID: "u2", Status: alloc.UnitAvailable}}, nil
	case "t2":
		return nil, alloc.ErrConflict
	default:
		return []alloc.Unit{{ID: "u3", Status: alloc.UnitMaintenance}}, nil
	}
}

func TestRunContinuesPastFailingTenant(t *testing.T) {
	svc := &driftService{}
	n, err := NewReconciler(svc).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []string{"t1", "t2", "t3"}, svc.calls)
}
