package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"allot.org/internal/alloc"
)

func (a *API) admit(w http.ResponseWriter, r *http.Request) {
	var in alloc.Admission
	if err := decodeJSON(w, r, &in); err != nil {
		writeAllocError(w, r, err, entityUnit)
		return
	}
	asg, err := a.svc.Admit(r.Context(), tenantOf(r), in)
	if err != nil {
		writeAllocError(w, r, err, entityUnit)
		return
	}
	writeJSON(w, http.StatusCreated, asg)
}

func (a *API) transition(w http.ResponseWriter, r *http.Request) {
	var in alloc.Transition
	if err := decodeJSON(w, r, &in); err != nil {
		writeAllocError(w, r, err, entityAssignment)
		return
	}
	asg, _, err := a.svc.Transition(r.Context(), tenantOf(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeAllocError(w, r, err, entityAssignment)
		return
	}
	writeJSON(w, http.StatusOK, asg)
}

func (a *API) getAssignment(w http.ResponseWriter, r *http.Request) {
	asg, err := a.svc.GetAssignment(r.Context(), tenantOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeAllocError(w, r, err, entityAssignment)
		return
	}
	writeJSON(w, http.StatusOK, asg)
}

func (a *API) listAssignments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	verr := &alloc.ValidationError{}
	f := alloc.AssignmentFilter{
		UnitID:     strings.TrimSpace(q.Get("unitId")),
		FacilityID: strings.TrimSpace(q.Get("facilityId")),
		OccupantID: strings.TrimSpace(q.Get("occupantId")),
	}
	for _, raw := range splitList(q["status"]) {
		switch st := alloc.AssignmentStatus(raw); st {
		case alloc.AssignmentActive, alloc.AssignmentCompleted, alloc.AssignmentCancelled:
			f.Statuses = append(f.Statuses, st)
		default:
			verr.Add("status", "must be one of ACTIVE COMPLETED CANCELLED")
		}
	}
	limit, err := parsePositiveInt(q.Get("limit"), alloc.DefaultListLimit, 1, alloc.MaxListLimit)
	if err != nil {
		verr.Add("limit", err.Error())
	}
	offset, err := parsePositiveInt(q.Get("offset"), 0, 0, -1)
	if err != nil {
		verr.Add("offset", err.Error())
	}
	if err := verr.OrNil(); err != nil {
		writeAllocError(w, r, err, entityAssignment)
		return
	}
	f.Limit, f.Offset = limit, offset

	items, err := a.svc.ListAssignments(r.Context(), tenantOf(r), f)
	if err != nil {
		writeAllocError(w, r, err, entityAssignment)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  nonNil(items),
		"limit":  limit,
		"offset": offset,
	})
}

// parsePositiveInt parses raw within [min, max]; max < 0 means unbounded.
func parsePositiveInt(raw string, def, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errInvalidNumber
	}
	if v < min || (max >= 0 && v > max) {
		return 0, errOutOfRange
	}
	return v, nil
}

// splitList accepts both repeated parameters and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
