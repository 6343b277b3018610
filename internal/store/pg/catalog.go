package pg

import (
	"context"
	"database/sql"
	"errors"

	"allot.org/internal/alloc"
	"allot.org/internal/ids"
	"allot.org/internal/tenancy"
)

func (s *Store) CreateFacility(ctx context.Context, tenantID string, in alloc.NewFacility) (alloc.Facility, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return alloc.Facility{}, err
	}
	in, err := alloc.PrepareFacility(in)
	if err != nil {
		return alloc.Facility{}, err
	}
	now := s.clock()
	f := alloc.Facility{
		ID:            ids.New(),
		TenantID:      tenantID,
		Name:          in.Name,
		TotalCapacity: in.TotalCapacity,
		Status:        alloc.FacilityActive,
		ContactEmail:  in.ContactEmail,
		ContactPhone:  in.ContactPhone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into facilities(id, tenant_id, name, total_capacity, status, contact_email, contact_phone, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$8)
	`, f.ID, f.TenantID, f.Name, f.TotalCapacity, string(f.Status), f.ContactEmail, f.ContactPhone, now); err != nil {
		return alloc.Facility{}, alloc.Persistence("create facility", err)
	}
	return f, nil
}

func (s *Store) GetFacility(ctx context.Context, tenantID, id string) (alloc.Facility, error) {
	if tenantID == "" || !ids.Valid(id) {
		return alloc.Facility{}, alloc.ErrNotFound
	}
	p := tenancy.For(tenantID).Eq("id", id).NotDeleted()
	f, err := scanFacility(s.db.QueryRowContext(ctx, `select `+facilityColumns+` from facilities where `+p.SQL(), p.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return alloc.Facility{}, alloc.ErrNotFound
	}
	if err != nil {
		return alloc.Facility{}, alloc.Persistence("get facility", err)
	}
	return f, nil
}

func (s *Store) ListFacilities(ctx context.Context, tenantID string) ([]alloc.Facility, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return nil, err
	}
	p := tenancy.For(tenantID).NotDeleted()
	rows, err := s.db.QueryContext(ctx, `select `+facilityColumns+` from facilities where `+p.SQL()+` order by name, id`, p.Args()...)
	if err != nil {
		return nil, alloc.Persistence("list facilities", err)
	}
	defer rows.Close()

	out := []alloc.Facility{}
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, alloc.Persistence("list facilities", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, alloc.Persistence("list facilities", err)
	}
	return out, nil
}

func (s *Store) DeleteFacility(ctx context.Context, tenantID, id string) (alloc.Facility, error) {
	if tenantID == "" || !ids.Valid(id) {
		return alloc.Facility{}, alloc.ErrNotFound
	}
	var out alloc.Facility
	err := s.withTx(ctx, "delete_facility", func(ctx context.Context, tx *sql.Tx) error {
		p := tenancy.For(tenantID).Eq("id", id).NotDeleted()
		f, err := scanFacility(tx.QueryRowContext(ctx, `select `+facilityColumns+` from facilities where `+p.SQL()+` for update`, p.Args()...))
		if errors.Is(err, sql.ErrNoRows) {
			return alloc.ErrNotFound
		}
		if err != nil {
			return err
		}
		var referenced bool
		if err := tx.QueryRowContext(ctx, `
			select exists(select 1 from units where tenant_id = $1 and facility_id = $2)
			    or exists(select 1 from assignments where tenant_id = $1 and facility_id = $2)
		`, tenantID, id).Scan(&referenced); err != nil {
			return err
		}
		if referenced {
			return alloc.ErrInUse
		}
		now := s.clock()
		if _, err := tx.ExecContext(ctx, `
			update facilities set status = $3, deleted_at = $4, updated_at = $4
			where tenant_id = $1 and id = $2
		`, tenantID, id, string(alloc.FacilityInactive), now); err != nil {
			return err
		}
		f.Status = alloc.FacilityInactive
		f.DeletedAt = &now
		f.UpdatedAt = now
		out = f
		return nil
	})
	return out, err
}

func (s *Store) CreateUnit(ctx context.Context, tenantID string, in alloc.NewUnit) (alloc.Unit, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return alloc.Unit{}, err
	}
	in, err := alloc.PrepareUnit(in)
	if err != nil {
		return alloc.Unit{}, err
	}
	if !ids.Valid(in.FacilityID) {
		return alloc.Unit{}, alloc.ErrNotFound
	}
	var out alloc.Unit
	err = s.withTx(ctx, "create_unit", func(ctx context.Context, tx *sql.Tx) error {
		p := tenancy.For(tenantID).Eq("id", in.FacilityID).NotDeleted()
		var facilityID string
		err := tx.QueryRowContext(ctx, `select id from facilities where `+p.SQL()+` for share`, p.Args()...).Scan(&facilityID)
		if errors.Is(err, sql.ErrNoRows) {
			return alloc.ErrNotFound
		}
		if err != nil {
			return err
		}
		now := s.clock()
		u := alloc.Unit{
			ID:         ids.New(),
			TenantID:   tenantID,
			FacilityID: facilityID,
			Identifier: in.Identifier,
			Floor:      in.Floor,
			Capacity:   in.Capacity,
			Status:     alloc.UnitAvailable,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, err := tx.ExecContext(ctx, `
			insert into units(id, tenant_id, facility_id, identifier, floor, capacity, status, created_at, updated_at)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$8)
		`, u.ID, u.TenantID, u.FacilityID, u.Identifier, u.Floor, u.Capacity, string(u.Status), now); err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

func (s *Store) GetUnit(ctx context.Context, tenantID, id string) (alloc.Unit, error) {
	if tenantID == "" || !ids.Valid(id) {
		return alloc.Unit{}, alloc.ErrNotFound
	}
	p := tenancy.For(tenantID).Eq("id", id).NotDeleted()
	u, err := scanUnit(s.db.QueryRowContext(ctx, `select `+unitColumns+` from units where `+p.SQL(), p.Args()...))
	if errors.Is(err, sql.ErrNoRows) {
		return alloc.Unit{}, alloc.ErrNotFound
	}
	if err != nil {
		return alloc.Unit{}, alloc.Persistence("get unit", err)
	}
	return u, nil
}

func (s *Store) ListUnits(ctx context.Context, tenantID string, f alloc.UnitFilter) ([]alloc.Unit, error) {
	if err := tenancy.Require(tenantID); err != nil {
		return nil, err
	}
	p := tenancy.For(tenantID).Eq("facility_id", f.FacilityID).Eq("status", string(f.Status))
	if !f.IncludeDeleted {
		p.NotDeleted()
	}
	rows, err := s.db.QueryContext(ctx, `select `+unitColumns+` from units where `+p.SQL()+` order by facility_id, identifier`, p.Args()...)
	if err != nil {
		return nil, alloc.Persistence("list units", err)
	}
	defer rows.Close()

	out := []alloc.Unit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, alloc.Persistence("list units", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, alloc.Persistence("list units", err)
	}
	return out, nil
}

func (s *Store) DeleteUnit(ctx context.Context, tenantID, id string) (alloc.Unit, error) {
	if tenantID == "" || !ids.Valid(id) {
		return alloc.Unit{}, alloc.ErrNotFound
	}
	var out alloc.Unit
	err := s.withTx(ctx, "delete_unit", func(ctx context.Context, tx *sql.Tx) error {
		u, err := lockUnit(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		active, open, err := unitFacts(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if active > 0 || open {
			return alloc.ErrInUse
		}
		now := s.clock()
		if _, err := tx.ExecContext(ctx, `
			update units set deleted_at = $3, updated_at = $3
			where tenant_id = $1 and id = $2
		`, tenantID, id, now); err != nil {
			return err
		}
		u.DeletedAt = &now
		u.UpdatedAt = now
		out = u
		return nil
	})
	return out, err
}
