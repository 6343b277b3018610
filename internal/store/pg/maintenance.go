package pg

import (
	"context"
	"database/sql"
	"errors"

	"allot.org/internal/alloc"
	"allot.org/internal/ids"
	"allot.org/internal/tenancy"
)

func (s *Store) ScheduleMaintenance(ctx context.Context, tenantID string, in alloc.NewMaintenance) (alloc.MaintenanceRecord, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return alloc.MaintenanceRecord{}, err
	}
	plan, err := alloc.PrepareMaintenance(in)
	if err != nil {
		return alloc.MaintenanceRecord{}, err
	}
	if !ids.Valid(plan.UnitID) {
		return alloc.MaintenanceRecord{}, alloc.ErrNotFound
	}

	var out alloc.MaintenanceRecord
	err = s.withTx(ctx, "schedule_maintenance", func(ctx context.Context, tx *sql.Tx) error {
		u, err := lockUnit(ctx, tx, tenantID, plan.UnitID)
		if err != nil {
			return err
		}
		active, _, err := unitFacts(ctx, tx, tenantID, u.ID)
		if err != nil {
			return err
		}
		now := s.clock()
		m := alloc.MaintenanceRecord{
			ID:            ids.New(),
			TenantID:      tenantID,
			UnitID:        u.ID,
			Status:        alloc.MaintenanceScheduled,
			Description:   plan.Description,
			ScheduledDate: plan.ScheduledDate,
			Notes:         plan.Notes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := tx.ExecContext(ctx, `
			insert into maintenance_records(id, tenant_id, unit_id, status, description, scheduled_date, notes, created_at, updated_at)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		`, m.ID, m.TenantID, m.UnitID, string(m.Status), m.Description, m.ScheduledDate, m.Notes, now); err != nil {
			return err
		}
		if _, err := saveUnitStatus(ctx, tx, &u, alloc.DeriveUnitStatus(active, u.Capacity, true), now); err != nil {
			return err
		}
		m.UnitStatus = u.Status
		out = m
		return nil
	})
	return out, err
}

func (s *Store) UpdateMaintenance(ctx context.Context, tenantID, id string, in alloc.MaintenanceUpdate) (alloc.MaintenanceRecord, bool, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return alloc.MaintenanceRecord{}, false, err
	}
	plan, err := alloc.PrepareMaintenanceUpdate(in)
	if err != nil {
		return alloc.MaintenanceRecord{}, false, err
	}
	if !ids.Valid(id) {
		return alloc.MaintenanceRecord{}, false, alloc.ErrNotFound
	}

	var (
		out     alloc.MaintenanceRecord
		applied bool
	)
	err = s.withTx(ctx, "update_maintenance", func(ctx context.Context, tx *sql.Tx) error {
		applied = false
		p := tenancy.For(tenantID).Eq("id", id).NotDeleted()
		m, err := scanMaintenance(tx.QueryRowContext(ctx, `select `+maintenanceColumns+` from maintenance_records where `+p.SQL()+` for update`, p.Args()...))
		if errors.Is(err, sql.ErrNoRows) {
			return alloc.ErrNotFound
		}
		if err != nil {
			return err
		}
		apply, err := alloc.CheckMaintenanceMove(m.Status, plan.Status)
		if err != nil {
			return err
		}
		if !apply {
			out = m
			return nil
		}
		now := s.clock()
		m.Status = plan.Status
		if plan.Status == alloc.MaintenanceCompleted {
			done := alloc.DateOf(now)
			if plan.CompletedDate != nil {
				done = *plan.CompletedDate
			}
			m.CompletedDate = &done
		}
		if plan.Notes != nil {
			m.Notes = *plan.Notes
		}
		m.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, `
			update maintenance_records set status = $3, completed_date = $4, notes = $5, updated_at = $6
			where tenant_id = $1 and id = $2
		`, tenantID, id, string(m.Status), nullTime(m.CompletedDate), m.Notes, now); err != nil {
			return err
		}
		u, _, err := recomputeUnit(ctx, tx, tenantID, m.UnitID, now)
		if err != nil && !errors.Is(err, alloc.ErrNotFound) {
			return err
		}
		m.UnitStatus = u.Status
		out = m
		applied = true
		return nil
	})
	if err != nil {
		return alloc.MaintenanceRecord{}, false, err
	}
	return out, applied, nil
}

func (s *Store) GetMaintenance(ctx context.Context, tenantID, id string) (alloc.MaintenanceRecord, error) {
	if tenantID == "" || !ids.Valid(id) {
		return alloc.MaintenanceRecord{}, alloc.ErrNotFound
	}
	p := tenancy.For(tenantID).Eq("id", id).NotDeleted()
	m, err := scanMaintenance(s.db.QueryRowContext(ctx, `select `+maintenanceColumns+` from maintenance_records where `+p.SQL(), p.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return alloc.MaintenanceRecord{}, alloc.ErrNotFound
	}
	if err != nil {
		return alloc.MaintenanceRecord{}, alloc.Persistence("get maintenance", err)
	}
	return m, nil
}

func (s *Store) ListMaintenance(ctx context.Context, tenantID string, f alloc.MaintenanceFilter) ([]alloc.MaintenanceRecord, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return nil, err
	}
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	p := tenancy.For(tenantID).Eq("unit_id", f.UnitID).In("status", statuses).NotDeleted()
	rows, err := s.db.QueryContext(ctx, `select `+maintenanceColumns+` from maintenance_records where `+p.SQL()+
		` order by scheduled_date desc, id desc`, p.Args()...)
	if err != nil {
		return nil, alloc.Persistence("list maintenance", err)
	}
	defer rows.Close()

	out := []alloc.MaintenanceRecord{}
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, alloc.Persistence("list maintenance", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, alloc.Persistence("list maintenance", err)
	}
	return out, nil
}
