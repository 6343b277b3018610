package alloc

import (
	"errors"
	"fmt"
	"strings"

	"allot.org/internal/tenancy"
)

var (
	// ErrNotFound covers both "does not exist" and "belongs to another tenant".
	ErrNotFound                  = errors.New("not found")
	ErrCapacityExceeded          = errors.New("unit is at full capacity")
	ErrDuplicateActiveAssignment = errors.New("occupant already has an active assignment")
	ErrUnitUnavailable           = errors.New("unit is under maintenance")
	// ErrConflict is retriable: the transaction could not be serialized in time.
	ErrConflict          = errors.New("concurrent update conflict, retry")
	ErrInUse             = errors.New("resource is still referenced")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrPersistence       = errors.New("persistence failure")
)

// Violation is one failed field check.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violation found in one input.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a violation.
func (e *ValidationError) Add(field, message string) {
	e.Violations = append(e.Violations, Violation{Field: field, Message: message})
}

// OrNil returns e when it holds violations, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e
}

// Invalid builds a single-violation ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Violations: []Violation{{Field: field, Message: message}}}
}

// Persistence wraps an unexpected storage error.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

// Stable machine-readable codes.
const (
	CodeValidation        = "validation_failed"
	CodeNotFound          = "not_found"
	CodeCapacityExceeded  = "capacity_exceeded"
	CodeDuplicateActive   = "duplicate_active_assignment"
	CodeUnitUnavailable   = "unit_unavailable"
	CodeConflict          = "conflict"
	CodeInUse             = "resource_in_use"
	CodeInvalidTransition = "invalid_transition"
	CodeMissingTenant     = "missing_tenant"
	CodeInternal          = "internal"
)

// Code maps an error returned by a Service to its stable code.
func Code(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrCapacityExceeded):
		return CodeCapacityExceeded
	case errors.Is(err, ErrDuplicateActiveAssignment):
		return CodeDuplicateActive
	case errors.Is(err, ErrUnitUnavailable):
		return CodeUnitUnavailable
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrInUse):
		return CodeInUse
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, tenancy.ErrMissingTenant):
		return CodeMissingTenant
	default:
		return CodeInternal
	}
}

// Retriable reports whether the caller may retry the same request unchanged.
func Retriable(err error) bool {
	return errors.Is(err, ErrConflict)
}
