package alloc

// DeriveUnitStatus is the single source of a unit's stored status.
// Open maintenance wins; otherwise a unit is OCCUPIED exactly when its active
// assignments fill its capacity.
func DeriveUnitStatus(active, capacity int, openMaintenance bool) UnitStatus {
	switch {
	case openMaintenance:
		return UnitMaintenance
	case capacity > 0 && active >= capacity:
		return UnitOccupied
	default:
		return UnitAvailable
	}
}

// AdmissionFacts are the rows an admission decision reads, gathered while the
// unit row is locked.
type AdmissionFacts struct {
	Capacity          int
	ActiveOnUnit      int
	OpenMaintenance   bool
	OccupantHasActive bool
}

// CheckAdmission applies the admission rules in their fixed order:
// maintenance, duplicate claim, capacity.
func CheckAdmission(f AdmissionFacts) error {
	switch {
	case f.OpenMaintenance:
		return ErrUnitUnavailable
	case f.OccupantHasActive:
		return ErrDuplicateActiveAssignment
	case f.ActiveOnUnit >= f.Capacity:
		return ErrCapacityExceeded
	default:
		return nil
	}
}

// CheckMaintenanceMove validates a maintenance status change. ok=false with a
// nil error means the record is already terminal and the call is a no-op.
func CheckMaintenanceMove(from, to MaintenanceStatus) (ok bool, err error) {
	if from.Terminal() {
		return false, nil
	}
	switch {
	case from == to:
		return false, ErrInvalidTransition
	case from == MaintenanceInProgress && to == MaintenanceScheduled:
		return false, ErrInvalidTransition
	case to == MaintenanceInProgress, to.Terminal():
		return true, nil
	default:
		return false, ErrInvalidTransition
	}
}

// EventTypeForAssignment names the event emitted for a committed assignment status.
func EventTypeForAssignment(s AssignmentStatus) string {
	switch s {
	case AssignmentCompleted:
		return EventAssignmentCompleted
	case AssignmentCancelled:
		return EventAssignmentCancelled
	default:
		return EventAssignmentAdmitted
	}
}

// EventTypeForMaintenance names the event emitted for a committed maintenance status.
func EventTypeForMaintenance(s MaintenanceStatus) string {
	switch s {
	case MaintenanceInProgress:
		return EventMaintenanceStarted
	case MaintenanceCompleted:
		return EventMaintenanceCompleted
	case MaintenanceCancelled:
		return EventMaintenanceCancelled
	default:
		return EventMaintenanceScheduled
	}
}
