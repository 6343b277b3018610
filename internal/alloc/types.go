package alloc

import (
	"time"

	"allot.org/internal/ids"
)

// FacilityStatus is the business state of a facility.
type FacilityStatus string

const (
	FacilityActive   FacilityStatus = "ACTIVE"
	FacilityInactive FacilityStatus = "INACTIVE"
)

// UnitStatus is derived from assignments and maintenance; clients never set it.
type UnitStatus string

const (
	UnitAvailable   UnitStatus = "AVAILABLE"
	UnitOccupied    UnitStatus = "OCCUPIED"
	UnitMaintenance UnitStatus = "MAINTENANCE"
)

// AssignmentStatus moves only ACTIVE -> COMPLETED or ACTIVE -> CANCELLED.
type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "ACTIVE"
	AssignmentCompleted AssignmentStatus = "COMPLETED"
	AssignmentCancelled AssignmentStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s AssignmentStatus) Terminal() bool {
	return s == AssignmentCompleted || s == AssignmentCancelled
}

// MaintenanceStatus is the lifecycle of a maintenance record.
type MaintenanceStatus string

const (
	MaintenanceScheduled  MaintenanceStatus = "SCHEDULED"
	MaintenanceInProgress MaintenanceStatus = "IN_PROGRESS"
	MaintenanceCompleted  MaintenanceStatus = "COMPLETED"
	MaintenanceCancelled  MaintenanceStatus = "CANCELLED"
)

// Open reports whether the record blocks admissions.
func (s MaintenanceStatus) Open() bool {
	return s == MaintenanceScheduled || s == MaintenanceInProgress
}

// Terminal reports whether no further transition is possible.
func (s MaintenanceStatus) Terminal() bool {
	return s == MaintenanceCompleted || s == MaintenanceCancelled
}

// Facility is a named container of units, e.g. a building.
type Facility struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	Name          string         `json:"name"`
	TotalCapacity int            `json:"total_capacity"`
	Status        FacilityStatus `json:"status"`
	ContactEmail  string         `json:"contact_email,omitempty"`
	ContactPhone  string         `json:"contact_phone,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
}

// Unit is a capacity-bearing subdivision of a facility (a room).
type Unit struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	FacilityID string     `json:"facility_id"`
	Identifier string     `json:"identifier"`
	Floor      string     `json:"floor,omitempty"`
	Capacity   int        `json:"capacity"`
	Status     UnitStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Assignment is an occupancy claim binding one occupant to one unit.
// Fee and deposit are minor units and opaque to the engine.
type Assignment struct {
	ID            string           `json:"id"`
	TenantID      string           `json:"tenant_id"`
	FacilityID    string           `json:"facility_id"`
	UnitID        string           `json:"unit_id"`
	OccupantID    string           `json:"occupant_id"`
	StartDate     time.Time        `json:"start_date"`
	EndDate       *time.Time       `json:"end_date,omitempty"`
	Status        AssignmentStatus `json:"status"`
	FeeAmount     int64            `json:"fee_amount"`
	DepositAmount int64            `json:"deposit_amount"`
	Notes         string           `json:"notes,omitempty"`
	CreatedBy     string           `json:"created_by,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`

	// UnitStatus is the unit status recomputed by the mutation that returned
	// this value. Reads leave it empty.
	UnitStatus UnitStatus `json:"-"`
}

// MaintenanceRecord marks a unit unavailable for new admissions while open.
type MaintenanceRecord struct {
	ID            string            `json:"id"`
	TenantID      string            `json:"tenant_id"`
	UnitID        string            `json:"unit_id"`
	Status        MaintenanceStatus `json:"status"`
	Description   string            `json:"description"`
	ScheduledDate time.Time         `json:"scheduled_date"`
	CompletedDate *time.Time        `json:"completed_date,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	DeletedAt     *time.Time        `json:"deleted_at,omitempty"`

	// UnitStatus is the unit status recomputed by the mutation that returned
	// this value. Reads leave it empty.
	UnitStatus UnitStatus `json:"-"`
}

// NewFacility is the input of CreateFacility.
type NewFacility struct {
	Name          string `json:"name" validate:"required,max=200"`
	TotalCapacity int    `json:"total_capacity" validate:"min=0"`
	ContactEmail  string `json:"contact_email" validate:"omitempty,email"`
	ContactPhone  string `json:"contact_phone" validate:"omitempty,phone"`
}

// NewUnit is the input of CreateUnit.
type NewUnit struct {
	FacilityID string `json:"facility_id" validate:"required"`
	Identifier string `json:"identifier" validate:"required,max=64"`
	Floor      string `json:"floor" validate:"max=32"`
	Capacity   int    `json:"capacity" validate:"min=1"`
}

// Admission is the input of Admit. Dates are YYYY-MM-DD or RFC 3339.
type Admission struct {
	UnitID        string `json:"unit_id" validate:"required"`
	OccupantID    string `json:"occupant_id" validate:"required,max=64"`
	StartDate     string `json:"start_date" validate:"required,date"`
	EndDate       string `json:"end_date" validate:"omitempty,date"`
	FeeAmount     int64  `json:"fee_amount" validate:"min=0"`
	DepositAmount int64  `json:"deposit_amount" validate:"min=0"`
	Notes         string `json:"notes" validate:"max=2000"`
}

// Transition is the input of Transition.
type Transition struct {
	Status  string  `json:"status" validate:"required,oneof=COMPLETED CANCELLED"`
	EndDate string  `json:"end_date" validate:"omitempty,date"`
	Notes   *string `json:"notes" validate:"omitempty,max=2000"`
}

// NewMaintenance is the input of ScheduleMaintenance.
type NewMaintenance struct {
	UnitID        string `json:"unit_id" validate:"required"`
	ScheduledDate string `json:"scheduled_date" validate:"required,date"`
	Description   string `json:"description" validate:"required,max=500"`
	Notes         string `json:"notes" validate:"max=2000"`
}

// MaintenanceUpdate is the input of UpdateMaintenance.
type MaintenanceUpdate struct {
	Status        string  `json:"status" validate:"required,oneof=IN_PROGRESS COMPLETED CANCELLED"`
	CompletedDate string  `json:"completed_date" validate:"omitempty,date"`
	Notes         *string `json:"notes" validate:"omitempty,max=2000"`
}

// UnitFilter narrows ListUnits. Soft-deleted units are excluded unless IncludeDeleted.
type UnitFilter struct {
	FacilityID     string
	Status         UnitStatus
	IncludeDeleted bool
}

// AssignmentFilter narrows ListAssignments. An empty Statuses means ACTIVE only.
type AssignmentFilter struct {
	UnitID     string
	FacilityID string
	OccupantID string
	Statuses   []AssignmentStatus
	Limit      int
	Offset     int
}

// MaintenanceFilter narrows ListMaintenance. An empty Statuses means all.
type MaintenanceFilter struct {
	UnitID   string
	Statuses []MaintenanceStatus
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// NormalizedLimit clamps the page size the way every backend does.
func (f AssignmentFilter) NormalizedLimit() int {
	if f.Limit <= 0 || f.Limit > MaxListLimit {
		return DefaultListLimit
	}
	return f.Limit
}

// EffectiveStatuses applies the ACTIVE-only default.
func (f AssignmentFilter) EffectiveStatuses() []AssignmentStatus {
	if len(f.Statuses) == 0 {
		return []AssignmentStatus{AssignmentActive}
	}
	return f.Statuses
}

func newID() string {
	return ids.New()
}
