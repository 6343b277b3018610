package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"allot.org/internal/alloc"
	"allot.org/internal/tenancy"
)

// lockUnit loads a live unit and takes its row lock for the rest of the transaction.
func lockUnit(ctx context.Context, tx *sql.Tx, tenantID, id string) (alloc.Unit, error) {
	p := tenancy.For(tenantID).Eq("id", id).NotDeleted()
	u, err := scanUnit(tx.QueryRowContext(ctx, `select `+unitColumns+` from units where `+p.SQL()+` for update`, p.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return alloc.Unit{}, alloc.ErrNotFound
	}
	return u, err
}

// unitFacts counts ACTIVE assignments on the unit and reports open maintenance.
func unitFacts(ctx context.Context, tx *sql.Tx, tenantID, unitID string) (active int, open bool, err error) {
	err = tx.QueryRowContext(ctx, `
		select
			(select count(*) from assignments
			  where tenant_id = $1 and unit_id = $2 and status = 'ACTIVE'),
			exists(select 1 from maintenance_records
			  where tenant_id = $1 and unit_id = $2 and deleted_at is null
			    and status in ('SCHEDULED', 'IN_PROGRESS'))
	`, tenantID, unitID).Scan(&active, &open)
	return active, open, err
}

// saveUnitStatus persists next when it differs from the stored status.
func saveUnitStatus(ctx context.Context, tx *sql.Tx, u *alloc.Unit, next alloc.UnitStatus, now time.Time) (bool, error) {
	if u.Status == next {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `
		update units set status = $3, updated_at = $4
		where tenant_id = $1 and id = $2
	`, u.TenantID, u.ID, string(next), now); err != nil {
		return false, err
	}
	u.Status = next
	u.UpdatedAt = now
	return true, nil
}

// recomputeUnit locks the unit, derives its status from source rows and stores it.
func recomputeUnit(ctx context.Context, tx *sql.Tx, tenantID, unitID string, now time.Time) (alloc.Unit, bool, error) {
	u, err := lockUnit(ctx, tx, tenantID, unitID)
	if err != nil {
		return alloc.Unit{}, false, err
	}
	active, open, err := unitFacts(ctx, tx, tenantID, unitID)
	if err != nil {
		return alloc.Unit{}, false, err
	}
	changed, err := saveUnitStatus(ctx, tx, &u, alloc.DeriveUnitStatus(active, u.Capacity, open), now)
	return u, changed, err
}

func (s *Store) ReconcileUnits(ctx context.Context, tenantID string) ([]alloc.Unit, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return nil, err
	}
	p := tenancy.For(tenantID).NotDeleted()
	rows, err := s.db.QueryContext(ctx, `select id from units where `+p.SQL()+` order by id`, p.Args()...)
	if err != nil {
		return nil, alloc.Persistence("reconcile units", err)
	}
	var unitIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, alloc.Persistence("reconcile units", err)
		}
		unitIDs = append(unitIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, alloc.Persistence("reconcile units", err)
	}

	var fixed []alloc.Unit
	for _, id := range unitIDs {
		var (
			u       alloc.Unit
			changed bool
		)
		err := s.withTx(ctx, "reconcile_unit", func(ctx context.Context, tx *sql.Tx) error {
			var err error
			u, changed, err = recomputeUnit(ctx, tx, tenantID, id, s.clock())
			return err
		})
		if errors.Is(err, alloc.ErrNotFound) {
			continue
		}
		if err != nil {
			return fixed, err
		}
		if changed {
			fixed = append(fixed, u)
		}
	}
	return fixed, nil
}

func (s *Store) TenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `select distinct tenant_id from units order by tenant_id`)
	if err != nil {
		return nil, alloc.Persistence("tenant ids", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, alloc.Persistence("tenant ids", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, alloc.Persistence("tenant ids", err)
	}
	return out, nil
}
