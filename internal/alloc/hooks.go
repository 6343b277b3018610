package alloc

import (
	"context"
	"time"

	"allot.org/internal/obs"
	"allot.org/internal/tenancy"
)

// Event types emitted after commit.
const (
	EventFacilityCreated      = "facility.created"
	EventFacilityDeleted      = "facility.deleted"
	EventUnitCreated          = "unit.created"
	EventUnitDeleted          = "unit.deleted"
	EventUnitReconciled       = "unit.reconciled"
	EventAssignmentAdmitted   = "assignment.admitted"
	EventAssignmentCompleted  = "assignment.completed"
	EventAssignmentCancelled  = "assignment.cancelled"
	EventMaintenanceScheduled = "maintenance.scheduled"
	EventMaintenanceStarted   = "maintenance.started"
	EventMaintenanceCompleted = "maintenance.completed"
	EventMaintenanceCancelled = "maintenance.cancelled"
)

// Event describes one committed state transition.
type Event struct {
	Type       string     `json:"type"`
	TenantID   string     `json:"tenant_id"`
	ActorID    string     `json:"actor_id,omitempty"`
	EntityID   string     `json:"entity_id"`
	UnitID     string     `json:"unit_id,omitempty"`
	OccupantID string     `json:"occupant_id,omitempty"`
	Status     string     `json:"status,omitempty"`
	UnitStatus UnitStatus `json:"unit_status,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Hook observes committed transitions. Implementations must not block for long;
// errors are logged and never reach the caller.
type Hook interface {
	AfterCommit(ctx context.Context, evt Event) error
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, evt Event) error

func (f HookFunc) AfterCommit(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Hooked decorates a Service so that hooks run after each successful mutation.
type Hooked struct {
	Service
	hooks []Hook
	now   func() time.Time
}

// WithHooks wraps svc. Reads pass straight through.
func WithHooks(svc Service, hooks ...Hook) *Hooked {
	return &Hooked{Service: svc, hooks: hooks, now: time.Now}
}

func (h *Hooked) emit(ctx context.Context, tenantID string, evt Event) {
	evt.TenantID = tenantID
	evt.ActorID = tenancy.ActorFromContext(ctx)
	evt.OccurredAt = h.now().UTC()
	for _, hook := range h.hooks {
		if err := hook.AfterCommit(ctx, evt); err != nil {
			obs.Logger().WithError(err).WithField("event", evt.Type).Warn("post-commit hook failed")
		}
	}
}

func (h *Hooked) CreateFacility(ctx context.Context, tenantID string, in NewFacility) (Facility, error) {
	f, err := h.Service.CreateFacility(ctx, tenantID, in)
	if err == nil {
		h.emit(ctx, tenantID, Event{Type: EventFacilityCreated, EntityID: f.ID, Status: string(f.Status)})
	}
	return f, err
}

func (h *Hooked) DeleteFacility(ctx context.Context, tenantID, id string) (Facility, error) {
	f, err := h.Service.DeleteFacility(ctx, tenantID, id)
	if err == nil {
		h.emit(ctx, tenantID, Event{Type: EventFacilityDeleted, EntityID: f.ID, Status: string(f.Status)})
	}
	return f, err
}

func (h *Hooked) CreateUnit(ctx context.Context, tenantID string, in NewUnit) (Unit, error) {
	u, err := h.Service.CreateUnit(ctx, tenantID, in)
	if err == nil {
		h.emit(ctx, tenantID, Event{Type: EventUnitCreated, EntityID: u.ID, UnitID: u.ID, UnitStatus: u.Status})
	}
	return u, err
}

func (h *Hooked) DeleteUnit(ctx context.Context, tenantID, id string) (Unit, error) {
	u, err := h.Service.DeleteUnit(ctx, tenantID, id)
	if err == nil {
		h.emit(ctx, tenantID, Event{Type: EventUnitDeleted, EntityID: u.ID, UnitID: u.ID, UnitStatus: u.Status})
	}
	return u, err
}

func (h *Hooked) Admit(ctx context.Context, tenantID string, in Admission) (Assignment, error) {
	a, err := h.Service.Admit(ctx, tenantID, in)
	obs.ObserveAdmission(Code(err))
	if err != nil {
		return a, err
	}
	h.emit(ctx, tenantID, Event{
		Type:       EventAssignmentAdmitted,
		EntityID:   a.ID,
		UnitID:     a.UnitID,
		OccupantID: a.OccupantID,
		Status:     string(a.Status),
		UnitStatus: a.UnitStatus,
	})
	return a, nil
}

func (h *Hooked) Transition(ctx context.Context, tenantID, id string, in Transition) (Assignment, bool, error) {
	a, applied, err := h.Service.Transition(ctx, tenantID, id, in)
	if err != nil || !applied {
		return a, applied, err
	}
	h.emit(ctx, tenantID, Event{
		Type:       EventTypeForAssignment(a.Status),
		EntityID:   a.ID,
		UnitID:     a.UnitID,
		OccupantID: a.OccupantID,
		Status:     string(a.Status),
		UnitStatus: a.UnitStatus,
	})
	return a, applied, nil
}

func (h *Hooked) ScheduleMaintenance(ctx context.Context, tenantID string, in NewMaintenance) (MaintenanceRecord, error) {
	m, err := h.Service.ScheduleMaintenance(ctx, tenantID, in)
	if err == nil {
		h.emit(ctx, tenantID, Event{
			Type:       EventMaintenanceScheduled,
			EntityID:   m.ID,
			UnitID:     m.UnitID,
			Status:     string(m.Status),
			UnitStatus: m.UnitStatus,
		})
	}
	return m, err
}

func (h *Hooked) UpdateMaintenance(ctx context.Context, tenantID, id string, in MaintenanceUpdate) (MaintenanceRecord, bool, error) {
	m, applied, err := h.Service.UpdateMaintenance(ctx, tenantID, id, in)
	if err != nil || !applied {
		return m, applied, err
	}
	h.emit(ctx, tenantID, Event{
		Type:       EventTypeForMaintenance(m.Status),
		EntityID:   m.ID,
		UnitID:     m.UnitID,
		Status:     string(m.Status),
		UnitStatus: m.UnitStatus,
	})
	return m, applied, nil
}

func (h *Hooked) ReconcileUnits(ctx context.Context, tenantID string) ([]Unit, error) {
	fixed, err := h.Service.ReconcileUnits(ctx, tenantID)
	for _, u := range fixed {
		h.emit(ctx, tenantID, Event{Type: EventUnitReconciled, EntityID: u.ID, UnitID: u.ID, UnitStatus: u.Status})
	}
	return fixed, err
}
