package alloc

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"allot.org/internal/ids"
	"allot.org/internal/tenancy"
)

// InMemory implements Service with in-process concurrency safety. A single
// mutex linearizes every mutation, which is enough for one process; the
// Postgres store is the backend for horizontally scaled deployments.
type InMemory struct {
	mu          sync.Mutex
	now         func() time.Time
	facilities  map[string]*Facility
	units       map[string]*Unit
	assignments map[string]*Assignment
	maintenance map[string]*MaintenanceRecord
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty engine.
func NewInMemory() *InMemory {
	return &InMemory{
		now:         time.Now,
		facilities:  make(map[string]*Facility),
		units:       make(map[string]*Unit),
		assignments: make(map[string]*Assignment),
		maintenance: make(map[string]*MaintenanceRecord),
	}
}

// WithClock overrides the time source (tests).
func (s *InMemory) WithClock(fn func() time.Time) *InMemory {
	if fn != nil {
		s.now = fn
	}
	return s
}

// --- catalog ---

func (s *InMemory) CreateFacility(ctx context.Context, tenantID string, in NewFacility) (Facility, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return Facility{}, err
	}
	in, err := PrepareFacility(in)
	if err != nil {
		return Facility{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	f := &Facility{
		ID:            newID(),
		TenantID:      tenantID,
		Name:          in.Name,
		TotalCapacity: in.TotalCapacity,
		Status:        FacilityActive,
		ContactEmail:  in.ContactEmail,
		ContactPhone:  in.ContactPhone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.facilities[f.ID] = f
	return *f, nil
}

func (s *InMemory) GetFacility(ctx context.Context, tenantID, id string) (Facility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facility(tenantID, id)
	if !ok {
		return Facility{}, ErrNotFound
	}
	return *f, nil
}

func (s *InMemory) ListFacilities(ctx context.Context, tenantID string) ([]Facility, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Facility{}
	for _, f := range s.facilities {
		if tenancy.Owns(tenantID, f.TenantID) && f.DeletedAt == nil {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) DeleteFacility(ctx context.Context, tenantID, id string) (Facility, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facility(tenantID, id)
	if !ok {
		return Facility{}, ErrNotFound
	}
	for _, u := range s.units {
		if u.TenantID == tenantID && u.FacilityID == id {
			return Facility{}, ErrInUse
		}
	}
	for _, a := range s.assignments {
		if a.TenantID == tenantID && a.FacilityID == id {
			return Facility{}, ErrInUse
		}
	}
	now := s.now().UTC()
	f.Status = FacilityInactive
	f.DeletedAt = &now
	f.UpdatedAt = now
	return *f, nil
}

func (s *InMemory) CreateUnit(ctx context.Context, tenantID string, in NewUnit) (Unit, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return Unit{}, err
	}
	in, err := PrepareUnit(in)
	if err != nil {
		return Unit{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.facility(tenantID, in.FacilityID); !ok {
		return Unit{}, ErrNotFound
	}
	for _, u := range s.units {
		if u.TenantID == tenantID && u.FacilityID == in.FacilityID && u.DeletedAt == nil &&
			strings.EqualFold(u.Identifier, in.Identifier) {
			return Unit{}, Invalid("identifier", "already exists in this facility")
		}
	}
	now := s.now().UTC()
	u := &Unit{
		ID:         newID(),
		TenantID:   tenantID,
		FacilityID: in.FacilityID,
		Identifier: in.Identifier,
		Floor:      in.Floor,
		Capacity:   in.Capacity,
		Status:     UnitAvailable,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.units[u.ID] = u
	return *u, nil
}

func (s *InMemory) GetUnit(ctx context.Context, tenantID, id string) (Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.unit(tenantID, id)
	if !ok {
		return Unit{}, ErrNotFound
	}
	return *u, nil
}

func (s *InMemory) ListUnits(ctx context.Context, tenantID string, f UnitFilter) ([]Unit, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Unit{}
	for _, u := range s.units {
		if !tenancy.Owns(tenantID, u.TenantID) {
			continue
		}
		if u.DeletedAt != nil && !f.IncludeDeleted {
			continue
		}
		if f.FacilityID != "" && u.FacilityID != f.FacilityID {
			continue
		}
		if f.Status != "" && u.Status != f.Status {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FacilityID != out[j].FacilityID {
			return out[i].FacilityID < out[j].FacilityID
		}
		return out[i].Identifier < out[j].Identifier
	})
	return out, nil
}

func (s *InMemory) DeleteUnit(ctx context.Context, tenantID, id string) (Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.unit(tenantID, id)
	if !ok {
		return Unit{}, ErrNotFound
	}
	if s.activeOnUnit(tenantID, id) > 0 || s.openMaintenance(tenantID, id) {
		return Unit{}, ErrInUse
	}
	now := s.now().UTC()
	u.DeletedAt = &now
	u.UpdatedAt = now
	return *u, nil
}

// --- arbiter ---

func (s *InMemory) Admit(ctx context.Context, tenantID string, in Admission) (Assignment, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return Assignment{}, err
	}
	plan, err := PrepareAdmission(in)
	if err != nil {
		return Assignment{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.unit(tenantID, plan.UnitID)
	if !ok {
		return Assignment{}, ErrNotFound
	}
	facts := AdmissionFacts{
		Capacity:          u.Capacity,
		ActiveOnUnit:      s.activeOnUnit(tenantID, u.ID),
		OpenMaintenance:   s.openMaintenance(tenantID, u.ID),
		OccupantHasActive: s.occupantHasActive(tenantID, plan.OccupantID),
	}
	if err := CheckAdmission(facts); err != nil {
		return Assignment{}, err
	}

	now := s.now().UTC()
	a := &Assignment{
		ID:            newID(),
		TenantID:      tenantID,
		FacilityID:    u.FacilityID,
		UnitID:        u.ID,
		OccupantID:    plan.OccupantID,
		StartDate:     plan.StartDate,
		EndDate:       plan.EndDate,
		Status:        AssignmentActive,
		FeeAmount:     plan.FeeAmount,
		DepositAmount: plan.DepositAmount,
		Notes:         plan.Notes,
		CreatedBy:     tenancy.ActorFromContext(ctx),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.assignments[a.ID] = a
	s.recompute(u, now)
	out := *a
	out.UnitStatus = u.Status
	return out, nil
}

func (s *InMemory) Transition(ctx context.Context, tenantID, id string, in Transition) (Assignment, bool, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return Assignment{}, false, err
	}
	plan, err := PrepareTransition(in)
	if err != nil {
		return Assignment{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assignment(tenantID, id)
	if !ok {
		return Assignment{}, false, ErrNotFound
	}
	if a.Status.Terminal() {
		return *a, false, nil
	}
	now := s.now().UTC()
	end, err := plan.ResolveEndDate(a.StartDate, now)
	if err != nil {
		return Assignment{}, false, err
	}
	a.Status = plan.Status
	a.EndDate = &end
	if plan.Notes != nil {
		a.Notes = *plan.Notes
	}
	a.UpdatedAt = now
	out := *a
	if u, ok := s.units[a.UnitID]; ok {
		s.recompute(u, now)
		out.UnitStatus = u.Status
	}
	return out, true, nil
}

func (s *InMemory) GetAssignment(ctx context.Context, tenantID, id string) (Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignment(tenantID, id)
	if !ok {
		return Assignment{}, ErrNotFound
	}
	return *a, nil
}

func (s *InMemory) ListAssignments(ctx context.Context, tenantID string, f AssignmentFilter) ([]Assignment, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return nil, err
	}
	statuses := make(map[AssignmentStatus]bool)
	for _, st := range f.EffectiveStatuses() {
		statuses[st] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []Assignment
	for _, a := range s.assignments {
		switch {
		case !tenancy.Owns(tenantID, a.TenantID),
			!statuses[a.Status],
			f.UnitID != "" && a.UnitID != f.UnitID,
			f.FacilityID != "" && a.FacilityID != f.FacilityID,
			f.OccupantID != "" && a.OccupantID != f.OccupantID:
			continue
		}
		all = append(all, *a)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartDate.Equal(all[j].StartDate) {
			return all[i].StartDate.After(all[j].StartDate)
		}
		return all[i].ID > all[j].ID
	})
	out := []Assignment{}
	if f.Offset < len(all) {
		all = all[max(f.Offset, 0):]
		out = append(out, all[:min(len(all), f.NormalizedLimit())]...)
	}
	return out, nil
}

// --- maintenance ---

func (s *InMemory) ScheduleMaintenance(ctx context.Context, tenantID string, in NewMaintenance) (MaintenanceRecord, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return MaintenanceRecord{}, err
	}
	plan, err := PrepareMaintenance(in)
	if err != nil {
		return MaintenanceRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.unit(tenantID, plan.UnitID)
	if !ok {
		return MaintenanceRecord{}, ErrNotFound
	}
	now := s.now().UTC()
	m := &MaintenanceRecord{
		ID:            newID(),
		TenantID:      tenantID,
		UnitID:        u.ID,
		Status:        MaintenanceScheduled,
		Description:   plan.Description,
		ScheduledDate: plan.ScheduledDate,
		Notes:         plan.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.maintenance[m.ID] = m
	s.recompute(u, now)
	out := *m
	out.UnitStatus = u.Status
	return out, nil
}

func (s *InMemory) UpdateMaintenance(ctx context.Context, tenantID, id string, in MaintenanceUpdate) (MaintenanceRecord, bool, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return MaintenanceRecord{}, false, err
	}
	plan, err := PrepareMaintenanceUpdate(in)
	if err != nil {
		return MaintenanceRecord{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.maintenanceRecord(tenantID, id)
	if !ok {
		return MaintenanceRecord{}, false, ErrNotFound
	}
	apply, err := CheckMaintenanceMove(m.Status, plan.Status)
	if err != nil {
		return MaintenanceRecord{}, false, err
	}
	if !apply {
		return *m, false, nil
	}
	now := s.now().UTC()
	m.Status = plan.Status
	if plan.Status == MaintenanceCompleted {
		done := DateOf(now)
		if plan.CompletedDate != nil {
			done = *plan.CompletedDate
		}
		m.CompletedDate = &done
	}
	if plan.Notes != nil {
		m.Notes = *plan.Notes
	}
	m.UpdatedAt = now
	out := *m
	if u, ok := s.units[m.UnitID]; ok {
		s.recompute(u, now)
		out.UnitStatus = u.Status
	}
	return out, true, nil
}

func (s *InMemory) GetMaintenance(ctx context.Context, tenantID, id string) (MaintenanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.maintenanceRecord(tenantID, id)
	if !ok {
		return MaintenanceRecord{}, ErrNotFound
	}
	return *m, nil
}

func (s *InMemory) ListMaintenance(ctx context.Context, tenantID string, f MaintenanceFilter) ([]MaintenanceRecord, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return nil, err
	}
	statuses := make(map[MaintenanceStatus]bool)
	for _, st := range f.Statuses {
		statuses[st] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []MaintenanceRecord{}
	for _, m := range s.maintenance {
		switch {
		case !tenancy.Owns(tenantID, m.TenantID),
			m.DeletedAt != nil,
			f.UnitID != "" && m.UnitID != f.UnitID,
			len(statuses) > 0 && !statuses[m.Status]:
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.After(out[j].ScheduledDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// --- operational ---

func (s *InMemory) ReconcileUnits(ctx context.Context, tenantID string) ([]Unit, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var fixed []Unit
	now := s.now().UTC()
	for _, u := range s.units {
		if u.TenantID != tenantID || u.DeletedAt != nil {
			continue
		}
		if s.recompute(u, now) {
			fixed = append(fixed, *u)
		}
	}
	return fixed, nil
}

func (s *InMemory) TenantIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, u := range s.units {
		if !seen[u.TenantID] {
			seen[u.TenantID] = true
			out = append(out, u.TenantID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- helpers (mu held) ---

func (s *InMemory) facility(tenantID, id string) (*Facility, bool) {
	if !ids.Valid(id) {
		return nil, false
	}
	f, ok := s.facilities[id]
	if !ok || !tenancy.Owns(tenantID, f.TenantID) || f.DeletedAt != nil {
		return nil, false
	}
	return f, true
}

func (s *InMemory) unit(tenantID, id string) (*Unit, bool) {
	if !ids.Valid(id) {
		return nil, false
	}
	u, ok := s.units[id]
	if !ok || !tenancy.Owns(tenantID, u.TenantID) || u.DeletedAt != nil {
		return nil, false
	}
	return u, true
}

func (s *InMemory) assignment(tenantID, id string) (*Assignment, bool) {
	if !ids.Valid(id) {
		return nil, false
	}
	a, ok := s.assignments[id]
	if !ok || !tenancy.Owns(tenantID, a.TenantID) {
		return nil, false
	}
	return a, true
}

func (s *InMemory) maintenanceRecord(tenantID, id string) (*MaintenanceRecord, bool) {
	if !ids.Valid(id) {
		return nil, false
	}
	m, ok := s.maintenance[id]
	if !ok || !tenancy.Owns(tenantID, m.TenantID) || m.DeletedAt != nil {
		return nil, false
	}
	return m, true
}

func (s *InMemory) activeOnUnit(tenantID, unitID string) int {
	n := 0
	for _, a := range s.assignments {
		if a.TenantID == tenantID && a.UnitID == unitID && a.Status == AssignmentActive {
			n++
		}
	}
	return n
}

func (s *InMemory) occupantHasActive(tenantID, occupantID string) bool {
	for _, a := range s.assignments {
		if a.TenantID == tenantID && a.OccupantID == occupantID && a.Status == AssignmentActive {
			return true
		}
	}
	return false
}

func (s *InMemory) openMaintenance(tenantID, unitID string) bool {
	for _, m := range s.maintenance {
		if m.TenantID == tenantID && m.UnitID == unitID && m.DeletedAt == nil && m.Status.Open() {
			return true
		}
	}
	return false
}

// recompute stores the derived status and reports whether it changed.
func (s *InMemory) recompute(u *Unit, now time.Time) bool {
	next := DeriveUnitStatus(s.activeOnUnit(u.TenantID, u.ID), u.Capacity, s.openMaintenance(u.TenantID, u.ID))
	if next == u.Status {
		return false
	}
	u.Status = next
	u.UpdatedAt = now
	return true
}
