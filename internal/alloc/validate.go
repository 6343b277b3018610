package alloc

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const dateLayout = "2006-01-02"

var (
	validateOnce sync.Once
	validate     *validator.Validate

	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{5,18}[0-9]$`)
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		mustRegister(v, "date", func(fl validator.FieldLevel) bool {
			_, err := ParseDate(fl.Field().String())
			return err == nil
		})
		mustRegister(v, "phone", func(fl validator.FieldLevel) bool {
			return phonePattern.MatchString(fl.Field().String())
		})
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("alloc: register %q validation: %v", tag, err))
	}
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the UTC
// calendar date at midnight.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return DateOf(t), nil
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// checkStruct runs the tag rules and converts every failure into a Violation.
func checkStruct(v any) *ValidationError {
	verr := &ValidationError{}
	err := validatorInstance().Struct(v)
	if err == nil {
		return verr
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("", err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), violationMessage(fe))
	}
	return verr
}

func violationMessage(fe validator.FieldError) string {
	numeric := fe.Kind() >= reflect.Int && fe.Kind() <= reflect.Float64
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if numeric {
			return "must be greater than or equal to " + fe.Param()
		}
		return "must be at least " + fe.Param() + " characters"
	case "max":
		if numeric {
			return "must be less than or equal to " + fe.Param()
		}
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email address"
	case "phone":
		return "must be a valid phone number"
	case "date":
		return "must be a date in YYYY-MM-DD format"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// PrepareFacility trims and validates a facility input.
func PrepareFacility(in NewFacility) (NewFacility, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	in.ContactPhone = strings.TrimSpace(in.ContactPhone)
	return in, checkStruct(in).OrNil()
}

// PrepareUnit trims and validates a unit input.
func PrepareUnit(in NewUnit) (NewUnit, error) {
	in.FacilityID = strings.TrimSpace(in.FacilityID)
	in.Identifier = strings.TrimSpace(in.Identifier)
	in.Floor = strings.TrimSpace(in.Floor)
	return in, checkStruct(in).OrNil()
}

// AdmissionPlan is a validated Admission with parsed dates.
type AdmissionPlan struct {
	UnitID        string
	OccupantID    string
	StartDate     time.Time
	EndDate       *time.Time
	FeeAmount     int64
	DepositAmount int64
	Notes         string
}

// PrepareAdmission validates an admission request before any transaction opens.
func PrepareAdmission(in Admission) (AdmissionPlan, error) {
	in.UnitID = strings.TrimSpace(in.UnitID)
	in.OccupantID = strings.TrimSpace(in.OccupantID)
	in.StartDate = strings.TrimSpace(in.StartDate)
	in.EndDate = strings.TrimSpace(in.EndDate)
	in.Notes = strings.TrimSpace(in.Notes)

	verr := checkStruct(in)
	plan := AdmissionPlan{
		UnitID:        in.UnitID,
		OccupantID:    in.OccupantID,
		FeeAmount:     in.FeeAmount,
		DepositAmount: in.DepositAmount,
		Notes:         in.Notes,
	}
	start, startErr := ParseDate(in.StartDate)
	if startErr == nil {
		plan.StartDate = start
	}
	if in.EndDate != "" {
		if end, err := ParseDate(in.EndDate); err == nil {
			plan.EndDate = &end
			if startErr == nil && end.Before(start) {
				verr.Add("end_date", "must not be before start_date")
			}
		}
	}
	return plan, verr.OrNil()
}

// TransitionPlan is a validated Transition.
type TransitionPlan struct {
	Status  AssignmentStatus
	EndDate *time.Time
	Notes   *string
}

// PrepareTransition validates a transition request. Unknown target statuses
// are rejected rather than ignored.
func PrepareTransition(in Transition) (TransitionPlan, error) {
	in.Status = strings.ToUpper(strings.TrimSpace(in.Status))
	in.EndDate = strings.TrimSpace(in.EndDate)
	if in.Notes != nil {
		n := strings.TrimSpace(*in.Notes)
		in.Notes = &n
	}
	verr := checkStruct(in)
	plan := TransitionPlan{Status: AssignmentStatus(in.Status), Notes: in.Notes}
	if in.EndDate != "" {
		if end, err := ParseDate(in.EndDate); err == nil {
			plan.EndDate = &end
		}
	}
	return plan, verr.OrNil()
}

// ResolveEndDate picks the end date to store when closing an assignment that
// started on start. It defaults to today and must not precede start.
func (p TransitionPlan) ResolveEndDate(start, now time.Time) (time.Time, error) {
	end := DateOf(now)
	if p.EndDate != nil {
		end = *p.EndDate
	} else if end.Before(start) {
		end = start
	}
	if end.Before(start) {
		return time.Time{}, Invalid("end_date", "must not be before start_date")
	}
	return end, nil
}

// MaintenancePlan is a validated NewMaintenance.
type MaintenancePlan struct {
	UnitID        string
	ScheduledDate time.Time
	Description   string
	Notes         string
}

// PrepareMaintenance validates a maintenance scheduling request.
func PrepareMaintenance(in NewMaintenance) (MaintenancePlan, error) {
	in.UnitID = strings.TrimSpace(in.UnitID)
	in.ScheduledDate = strings.TrimSpace(in.ScheduledDate)
	in.Description = strings.TrimSpace(in.Description)
	in.Notes = strings.TrimSpace(in.Notes)
	verr := checkStruct(in)
	plan := MaintenancePlan{UnitID: in.UnitID, Description: in.Description, Notes: in.Notes}
	if d, err := ParseDate(in.ScheduledDate); err == nil {
		plan.ScheduledDate = d
	}
	return plan, verr.OrNil()
}

// MaintenanceUpdatePlan is a validated MaintenanceUpdate.
type MaintenanceUpdatePlan struct {
	Status        MaintenanceStatus
	CompletedDate *time.Time
	Notes         *string
}

// PrepareMaintenanceUpdate validates a maintenance status change.
func PrepareMaintenanceUpdate(in MaintenanceUpdate) (MaintenanceUpdatePlan, error) {
	in.Status = strings.ToUpper(strings.TrimSpace(in.Status))
	in.CompletedDate = strings.TrimSpace(in.CompletedDate)
	if in.Notes != nil {
		n := strings.TrimSpace(*in.Notes)
		in.Notes = &n
	}
	verr := checkStruct(in)
	plan := MaintenanceUpdatePlan{Status: MaintenanceStatus(in.Status), Notes: in.Notes}
	if in.CompletedDate != "" {
		if d, err := ParseDate(in.CompletedDate); err == nil {
			plan.CompletedDate = &d
		}
	}
	return plan, verr.OrNil()
}
