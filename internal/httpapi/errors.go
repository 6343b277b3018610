package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"allot.org/internal/alloc"
	"allot.org/internal/obs"
)

const maxBodyBytes = 1 << 20

// Entity labels used in not-found messages.
const (
	entityFacility    = "Facility"
	entityUnit        = "Room"
	entityAssignment  = "Assignment"
	entityMaintenance = "Maintenance record"
)

var (
	errInvalidNumber = errors.New("must be an integer")
	errOutOfRange    = errors.New("out of range")
)

type errorBody struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Details   []alloc.Violation `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return alloc.Invalid("body", "request body is required")
		case errors.As(err, &maxErr):
			return alloc.Invalid("body", "request body too large")
		default:
			return alloc.Invalid("body", "malformed JSON")
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return alloc.Invalid("body", "unexpected data after JSON body")
	}
	return nil
}

// writeAllocError maps a Service error onto the HTTP contract. entity names
// the resource addressed by the request and selects the not-found message.
func writeAllocError(w http.ResponseWriter, r *http.Request, err error, entity string) {
	var verr *alloc.ValidationError
	code := alloc.Code(err)
	switch {
	case errors.As(err, &verr):
		writeErrorBody(w, r, http.StatusBadRequest, errorBody{
			Error:   "validation failed",
			Code:    code,
			Details: verr.Violations,
		})
	case errors.Is(err, alloc.ErrCapacityExceeded):
		writeErrorCode(w, r, http.StatusBadRequest, code, "Room is at full capacity")
	case errors.Is(err, alloc.ErrDuplicateActiveAssignment):
		writeErrorCode(w, r, http.StatusBadRequest, code, "Student already has an active hostel assignment")
	case errors.Is(err, alloc.ErrUnitUnavailable):
		writeErrorCode(w, r, http.StatusBadRequest, code, "Room is under maintenance")
	case errors.Is(err, alloc.ErrNotFound):
		writeErrorCode(w, r, http.StatusNotFound, code, entity+" not found")
	case errors.Is(err, alloc.ErrConflict):
		w.Header().Set("Retry-After", "1")
		writeErrorCode(w, r, http.StatusConflict, code, "concurrent update, retry")
	case errors.Is(err, alloc.ErrInUse):
		writeErrorCode(w, r, http.StatusConflict, code, entity+" is still in use")
	case errors.Is(err, alloc.ErrInvalidTransition):
		writeErrorCode(w, r, http.StatusConflict, code, "invalid status transition")
	case code == alloc.CodeMissingTenant:
		writeErrorCode(w, r, http.StatusUnauthorized, code, "tenant required")
	default:
		obs.Logger().WithError(err).WithFields(logrus.Fields{
			"request_id": RequestIDFromContext(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
		}).Error("request_failed")
		writeErrorCode(w, r, http.StatusInternalServerError, alloc.CodeInternal, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorBody(w, r, code, errorBody{Error: msg})
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeErrorBody(w, r, status, errorBody{Error: msg, Code: code})
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	body.RequestID = RequestIDFromContext(r.Context())
	writeJSON(w, status, body)
}
