package pg

import (
	"context"
	"database/sql"
	"errors"

	"allot.org/internal/alloc"
	"allot.org/internal/ids"
	"allot.org/internal/tenancy"
)

// Admit follows the unit-lock protocol: lock the unit row, read the facts the
// rules need, insert, then store the recomputed unit status, all in one
// serializable transaction.
func (s *Store) Admit(ctx context.Context, tenantID string, in alloc.Admission) (alloc.Assignment, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return alloc.Assignment{}, err
	}
	plan, err := alloc.PrepareAdmission(in)
	if err != nil {
		return alloc.Assignment{}, err
	}
	if !ids.Valid(plan.UnitID) {
		return alloc.Assignment{}, alloc.ErrNotFound
	}
	actor := tenancy.ActorFromContext(ctx)

	var out alloc.Assignment
	err = s.withTx(ctx, "admit", func(ctx context.Context, tx *sql.Tx) error {
		u, err := lockUnit(ctx, tx, tenantID, plan.UnitID)
		if err != nil {
			return err
		}
		active, open, err := unitFacts(ctx, tx, tenantID, u.ID)
		if err != nil {
			return err
		}
		var occupied bool
		if err := tx.QueryRowContext(ctx, `
			select exists(select 1 from assignments
			  where tenant_id = $1 and occupant_id = $2 and status = 'ACTIVE')
		`, tenantID, plan.OccupantID).Scan(&occupied); err != nil {
			return err
		}
		if err := alloc.CheckAdmission(alloc.AdmissionFacts{
			Capacity:          u.Capacity,
			ActiveOnUnit:      active,
			OpenMaintenance:   open,
			OccupantHasActive: occupied,
		}); err != nil {
			return err
		}

		now := s.clock()
		a := alloc.Assignment{
			ID:            ids.New(),
			TenantID:      tenantID,
			FacilityID:    u.FacilityID,
			UnitID:        u.ID,
			OccupantID:    plan.OccupantID,
			StartDate:     plan.StartDate,
			EndDate:       plan.EndDate,
			Status:        alloc.AssignmentActive,
			FeeAmount:     plan.FeeAmount,
			DepositAmount: plan.DepositAmount,
			Notes:         plan.Notes,
			CreatedBy:     actor,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if _, err := tx.ExecContext(ctx, `
			insert into assignments(id, tenant_id, facility_id, unit_id, occupant_id, start_date, end_date, status,
				fee_amount, deposit_amount, notes, created_by, created_at, updated_at)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13)
		`, a.ID, a.TenantID, a.FacilityID, a.UnitID, a.OccupantID, a.StartDate, nullTime(a.EndDate), string(a.Status),
			a.FeeAmount, a.DepositAmount, a.Notes, a.CreatedBy, now); err != nil {
			return err
		}
		if _, err := saveUnitStatus(ctx, tx, &u, alloc.DeriveUnitStatus(active+1, u.Capacity, open), now); err != nil {
			return err
		}
		a.UnitStatus = u.Status
		out = a
		return nil
	})
	return out, err
}

func (s *Store) Transition(ctx context.Context, tenantID, id string, in alloc.Transition) (alloc.Assignment, bool, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return alloc.Assignment{}, false, err
	}
	plan, err := alloc.PrepareTransition(in)
	if err != nil {
		return alloc.Assignment{}, false, err
	}
	if !ids.Valid(id) {
		return alloc.Assignment{}, false, alloc.ErrNotFound
	}

	var (
		out     alloc.Assignment
		applied bool
	)
	err = s.withTx(ctx, "transition", func(ctx context.Context, tx *sql.Tx) error {
		applied = false
		p := tenancy.For(tenantID).Eq("id", id)
		a, err := scanAssignment(tx.QueryRowContext(ctx, `select `+assignmentColumns+` from assignments where `+p.SQL()+` for update`, p.Args()...))
		if errors.Is(err, sql.ErrNoRows) {
			return alloc.ErrNotFound
		}
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			out = a
			return nil
		}
		now := s.clock()
		end, err := plan.ResolveEndDate(a.StartDate, now)
		if err != nil {
			return err
		}
		a.Status = plan.Status
		a.EndDate = &end
		if plan.Notes != nil {
			a.Notes = *plan.Notes
		}
		a.UpdatedAt = now
		if _, err := tx.ExecContext(ctx, `
			update assignments set status = $3, end_date = $4, notes = $5, updated_at = $6
			where tenant_id = $1 and id = $2
		`, tenantID, id, string(a.Status), end, a.Notes, now); err != nil {
			return err
		}
		u, _, err := recomputeUnit(ctx, tx, tenantID, a.UnitID, now)
		if err != nil && !errors.Is(err, alloc.ErrNotFound) {
			return err
		}
		a.UnitStatus = u.Status
		out = a
		applied = true
		return nil
	})
	if err != nil {
		return alloc.Assignment{}, false, err
	}
	return out, applied, nil
}

func (s *Store) GetAssignment(ctx context.Context, tenantID, id string) (alloc.Assignment, error) {
	if tenantID == "" || !ids.Valid(id) {
		return alloc.Assignment{}, alloc.ErrNotFound
	}
	p := tenancy.For(tenantID).Eq("id", id)
	a, err := scanAssignment(s.db.QueryRowContext(ctx, `select `+assignmentColumns+` from assignments where `+p.SQL(), p.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return alloc.Assignment{}, alloc.ErrNotFound
	}
	if err != nil {
		return alloc.Assignment{}, alloc.Persistence("get assignment", err)
	}
	return a, nil
}

func (s *Store) ListAssignments(ctx context.Context, tenantID string, f alloc.AssignmentFilter) ([]alloc.Assignment, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return nil, err
	}
	statuses := make([]string, 0, len(f.EffectiveStatuses()))
	for _, st := range f.EffectiveStatuses() {
		statuses = append(statuses, string(st))
	}
	p := tenancy.For(tenantID).
		Eq("unit_id", f.UnitID).
		Eq("facility_id", f.FacilityID).
		Eq("occupant_id", f.OccupantID).
		In("status", statuses)
	query := `select ` + assignmentColumns + ` from assignments where ` + p.SQL() +
		` order by start_date desc, id desc limit ` + p.Arg(f.NormalizedLimit()) + ` offset ` + p.Arg(max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, p.Args()...)
	if err != nil {
		return nil, alloc.Persistence("list assignments", err)
	}
	defer rows.Close()

	out := make([]alloc.Assignment, 0, min(f.NormalizedLimit(), 64))
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, alloc.Persistence("list assignments", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, alloc.Persistence("list assignments", err)
	}
	return out, nil
}
