package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"allot.org/internal/alloc"
)

func (a *API) scheduleMaintenance(w http.ResponseWriter, r *http.Request) {
	var in alloc.NewMaintenance
	if err := decodeJSON(w, r, &in); err != nil {
		writeAllocError(w, r, err, entityUnit)
		return
	}
	m, err := a.svc.ScheduleMaintenance(r.Context(), tenantOf(r), in)
	if err != nil {
		writeAllocError(w, r, err, entityUnit)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) updateMaintenance(w http.ResponseWriter, r *http.Request) {
	var in alloc.MaintenanceUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		writeAllocError(w, r, err, entityMaintenance)
		return
	}
	m, _, err := a.svc.UpdateMaintenance(r.Context(), tenantOf(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeAllocError(w, r, err, entityMaintenance)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) getMaintenance(w http.ResponseWriter, r *http.Request) {
	m, err := a.svc.GetMaintenance(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAllocError(w, r, err, entityMaintenance)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (a *API) listMaintenance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := alloc.MaintenanceFilter{UnitID: strings.TrimSpace(q.Get("unitId"))}
	for _, raw := range splitList(q["status"]) {
		switch st := alloc.MaintenanceStatus(raw); st {
		case alloc.MaintenanceScheduled, alloc.MaintenanceInProgress, alloc.MaintenanceCompleted, alloc.MaintenanceCancelled:
			f.Statuses = append(f.Statuses, st)
		default:
			writeAllocError(w, r, alloc.Invalid("status", "must be one of SCHEDULED IN_PROGRESS COMPLETED CANCELLED"), entityMaintenance)
			return
		}
	}
	items, err := a.svc.ListMaintenance(r.Context(), tenantOf(r), f)
	if err != nil {
		writeAllocError(w, r, err, entityMaintenance)
		return
	}
	writeJSON(w, http.StatusOK, listResponse[alloc.MaintenanceRecord]{Items: nonNil(items)})
}
