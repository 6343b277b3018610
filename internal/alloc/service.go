// Package alloc is the capacity-bounded room assignment engine: the resource
// catalog, the assignment ledger, the capacity arbiter and the maintenance
// register, behind one Service interface.
package alloc

import "context"

// Service defines engine operations. Every call is scoped to tenantID; an
// entity owned by another tenant behaves exactly like a missing one.
type Service interface {
	CreateFacility(ctx context.Context, tenantID string, in NewFacility) (Facility, error)
	GetFacility(ctx context.Context, tenantID, id string) (Facility, error)
	ListFacilities(ctx context.Context, tenantID string) ([]Facility, error)
	DeleteFacility(ctx context.Context, tenantID, id string) (Facility, error)

	CreateUnit(ctx context.Context, tenantID string, in NewUnit) (Unit, error)
	GetUnit(ctx context.Context, tenantID, id string) (Unit, error)
	ListUnits(ctx context.Context, tenantID string, f UnitFilter) ([]Unit, error)
	DeleteUnit(ctx context.Context, tenantID, id string) (Unit, error)

	// Admit creates an ACTIVE assignment if the unit is not under maintenance,
	// the occupant holds no other active claim and the unit has headroom.
	Admit(ctx context.Context, tenantID string, in Admission) (Assignment, error)
	// Transition closes an ACTIVE assignment. applied is false when the
	// assignment was already terminal; the stored state is then returned as is.
	Transition(ctx context.Context, tenantID, id string, in Transition) (a Assignment, applied bool, err error)
	GetAssignment(ctx context.Context, tenantID, id string) (Assignment, error)
	ListAssignments(ctx context.Context, tenantID string, f AssignmentFilter) ([]Assignment, error)

	ScheduleMaintenance(ctx context.Context, tenantID string, in NewMaintenance) (MaintenanceRecord, error)
	UpdateMaintenance(ctx context.Context, tenantID, id string, in MaintenanceUpdate) (m MaintenanceRecord, applied bool, err error)
	GetMaintenance(ctx context.Context, tenantID, id string) (MaintenanceRecord, error)
	ListMaintenance(ctx context.Context, tenantID string, f MaintenanceFilter) ([]MaintenanceRecord, error)

	// ReconcileUnits recomputes every unit's derived status for the tenant and
	// returns the units whose stored status was corrected.
	ReconcileUnits(ctx context.Context, tenantID string) ([]Unit, error)
	// TenantIDs lists tenants that own at least one unit.
	TenantIDs(ctx context.Context) ([]string, error)
}
