package ecw

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	patientNameRE = regexp.MustCompile(`^[^,]+,\s*[^,]+$`)
	dateRE        = regexp.MustCompile(`^(0[1-9]|1[0-2])/(0[1-9]|[12]\d|3[01])/\d{4}$`)
	timeRE        = regexp.MustCompile(`(?i)^(0?[1-9]|1[0-2]):[0-5]\d\s?(am|pm)$`)
)

// RequestValidator checks inbound request structs.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	v.RegisterValidation("ecw_patient_name", validatePatientName)
	v.RegisterValidation("ecw_date", validateDate)
	v.RegisterValidation("ecw_time", validateTime)
	v.RegisterStructValidation(validateAppointmentSpan, AppointmentRequest{})

	return &RequestValidator{validate: v}
}

// Validate returns a *ValidationError listing every failed field.
func (v *RequestValidator) Validate(req any) error {
	err := v.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("ecw: validate request: %w", err)
	}
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		out.Fields = append(out.Fields, FieldError{Field: field, Rule: fe.Tag()})
	}
	return out
}

// FieldError is one failed constraint.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError is returned for requests that break field constraints.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" ("+f.Rule+")")
	}
	return "ecw: invalid request: " + strings.Join(parts, ", ")
}

func validatePatientName(fl validator.FieldLevel) bool {
	return patientNameRE.MatchString(strings.TrimSpace(fl.Field().String()))
}

func validateDate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if !dateRE.MatchString(s) {
		return false
	}
	_, err := time.Parse(portalDateLayout, s)
	return err == nil
}

func validateTime(fl validator.FieldLevel) bool {
	return timeRE.MatchString(strings.TrimSpace(fl.Field().String()))
}

func validateAppointmentSpan(sl validator.StructLevel) {
	req := sl.Current().Interface().(AppointmentRequest)
	start, err1 := to24Hour(req.StartTime)
	end, err2 := to24Hour(req.EndTime)
	if err1 != nil || err2 != nil {
		return
	}
	if end <= start {
		sl.ReportError(req.EndTime, "end_time", "EndTime", "after_start", "")
	}
}

// splitPatientName splits "LAST, FIRST" into its parts.
func splitPatientName(name string) (last, first string) {
	last, first, _ = strings.Cut(name, ",")
	return strings.TrimSpace(last), strings.TrimSpace(first)
}
