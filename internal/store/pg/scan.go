package pg

import (
	"database/sql"
	"time"

	"allot.org/internal/alloc"
)

const (
	facilityColumns    = `id, tenant_id, name, total_capacity, status, contact_email, contact_phone, created_at, updated_at, deleted_at`
	unitColumns        = `id, tenant_id, facility_id, identifier, floor, capacity, status, created_at, updated_at, deleted_at`
	assignmentColumns  = `id, tenant_id, facility_id, unit_id, occupant_id, start_date, end_date, status, fee_amount, deposit_amount, notes, created_by, created_at, updated_at`
	maintenanceColumns = `id, tenant_id, unit_id, status, description, scheduled_date, completed_date, notes, created_at, updated_at, deleted_at`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanFacility(r scanner) (alloc.Facility, error) {
	var (
		f       alloc.Facility
		status  string
		deleted sql.NullTime
	)
	if err := r.Scan(&f.ID, &f.TenantID, &f.Name, &f.TotalCapacity, &status, &f.ContactEmail, &f.ContactPhone,
		&f.CreatedAt, &f.UpdatedAt, &deleted); err != nil {
		return alloc.Facility{}, err
	}
	f.Status = alloc.FacilityStatus(status)
	f.DeletedAt = timePtr(deleted)
	return f, nil
}

func scanUnit(r scanner) (alloc.Unit, error) {
	var (
		u       alloc.Unit
		status  string
		deleted sql.NullTime
	)
	if err := r.Scan(&u.ID, &u.TenantID, &u.FacilityID, &u.Identifier, &u.Floor, &u.Capacity, &status,
		&u.CreatedAt, &u.UpdatedAt, &deleted); err != nil {
		return alloc.Unit{}, err
	}
	u.Status = alloc.UnitStatus(status)
	u.DeletedAt = timePtr(deleted)
	return u, nil
}

func scanAssignment(r scanner) (alloc.Assignment, error) {
	var (
		a      alloc.Assignment
		status string
		end    sql.NullTime
	)
	if err := r.Scan(&a.ID, &a.TenantID, &a.FacilityID, &a.UnitID, &a.OccupantID, &a.StartDate, &end, &status,
		&a.FeeAmount, &a.DepositAmount, &a.Notes, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return alloc.Assignment{}, err
	}
	a.Status = alloc.AssignmentStatus(status)
	a.EndDate = timePtr(end)
	return a, nil
}

func scanMaintenance(r scanner) (alloc.MaintenanceRecord, error) {
	var (
		m         alloc.MaintenanceRecord
		status    string
		completed sql.NullTime
		deleted   sql.NullTime
	)
	if err := r.Scan(&m.ID, &m.TenantID, &m.UnitID, &status, &m.Description, &m.ScheduledDate, &completed,
		&m.Notes, &m.CreatedAt, &m.UpdatedAt, &deleted); err != nil {
		return alloc.MaintenanceRecord{}, err
	}
	m.Status = alloc.MaintenanceStatus(status)
	m.CompletedDate = timePtr(completed)
	m.DeletedAt = timePtr(deleted)
	return m, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
