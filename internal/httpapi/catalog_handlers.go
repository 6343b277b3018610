package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"allot.org/internal/alloc"
	"allot.org/internal/auth"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
}

// tenantOf returns the caller's tenant. withAuth guarantees an identity on
// every /v1 route, so an empty value reaches the engine as a missing tenant.
func tenantOf(r *http.Request) string {
	id, _ := auth.IdentityFromContext(r.Context())
	return id.TenantID
}

func (a *API) createFacility(w http.ResponseWriter, r *http.Request) {
	var in alloc.NewFacility
	if err := decodeJSON(w, r, &in); err != nil {
		writeAllocError(w, r, err, entityFacility)
		return
	}
	f, err := a.svc.CreateFacility(r.Context(), tenantOf(r), in)
	if err != nil {
		writeAllocError(w, r, err, entityFacility)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (a *API) listFacilities(w http.ResponseWriter, r *http.Request) {
	items, err := a.svc.ListFacilities(r.Context(), tenantOf(r))
	if err != nil {
		writeAllocError(w, r, err, entityFacility)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[alloc.Facility]{Items: nonNil(items)})
}

func (a *API) getFacility(w http.ResponseWriter, r *http.Request) {
	f, err := a.svc.GetFacility(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAllocError(w, r, err, entityFacility)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *API) deleteFacility(w http.ResponseWriter, r *http.Request) {
	if _, err := a.svc.DeleteFacility(r.Context(), tenantOf(r), chi.URLParam(r, "id")); err != nil {
		writeAllocError(w, r, err, entityFacility)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) createUnit(w http.ResponseWriter, r *http.Request) {
	var in alloc.NewUnit
	if err := decodeJSON(w, r, &in); err != nil {
		writeAllocError(w, r, err, entityUnit)
		return
	}
	u, err := a.svc.CreateUnit(r.Context(), tenantOf(r), in)
	if err != nil {
		// The only lookup CreateUnit performs is the parent facility.
		writeAllocError(w, r, err, entityFacility)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) listUnits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := alloc.UnitFilter{
		FacilityID: strings.TrimSpace(q.Get("facilityId")),
	}
	if raw := strings.ToUpper(strings.TrimSpace(q.Get("status"))); raw != "" {
		switch st := alloc.UnitStatus(raw); st {
		case alloc.UnitAvailable, alloc.UnitOccupied, alloc.UnitMaintenance:
			f.Status = st
		default:
			writeAllocError(w, r, alloc.Invalid("status", "must be one of AVAILABLE OCCUPIED MAINTENANCE"), entityUnit)
			return
		}
	}
	items, err := a.svc.ListUnits(r.Context(), tenantOf(r), f)
	if err != nil {
		writeAllocError(w, r, err, entityUnit)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[alloc.Unit]{Items: nonNil(items)})
}

func (a *API) getUnit(w http.ResponseWriter, r *http.Request) {
	u, err := a.svc.GetUnit(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAllocError(w, r, err, entityUnit)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) deleteUnit(w http.ResponseWriter, r *http.Request) {
	if _, err := a.svc.DeleteUnit(r.Context(), tenantOf(r), chi.URLParam(r, "id")); err != nil {
		writeAllocError(w, r, err, entityUnit)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reconcileUnits recomputes derived unit statuses for the caller's tenant.
func (a *API) reconcileUnits(w http.ResponseWriter, r *http.Request) {
	fixed, err := a.svc.ReconcileUnits(r.Context(), tenantOf(r))
	if err != nil {
		writeAllocError(w, r, err, entityUnit)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"corrected": len(fixed),
		"items":     nonNil(fixed),
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
