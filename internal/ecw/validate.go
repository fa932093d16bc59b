package ecw

import (
	"context"
	"sort"
	"strings"
)

// Facility is a resolved portal facility.
type Facility struct {
	ID   string `json:"id"`
	POS  string `json:"pos"`
	Name string `json:"name"`
}

// VisitType maps a human-readable description to the portal's visit code.
type VisitType struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DefaultVisitTypes is the visit-type table configured on the portal.
var DefaultVisitTypes = []VisitType{
	{Name: "NP", Description: "New Patient"},
	{Name: "EST", Description: "Established Patient"},
	{Name: "FU", Description: "Follow Up"},
	{Name: "CON", Description: "Consultation"},
	{Name: "PE", Description: "Physical Exam"},
	{Name: "AWV", Description: "Annual Wellness Visit"},
	{Name: "PROC", Description: "Procedure"},
	{Name: "TEL", Description: "Telehealth"},
	{Name: "WI", Description: "Walk In"},
	{Name: "POST", Description: "Post Op"},
	{Name: "LAB", Description: "Lab Visit"},
	{Name: "INJ", Description: "Injection"},
}

func matchFacility(payload any, name string) (Facility, bool) {
	for _, rec := range records(payload, "facilities", "facility") {
		if strings.EqualFold(field(rec, "Name"), strings.TrimSpace(name)) {
			return Facility{
				ID:   field(rec, "Id"),
				POS:  field(rec, "POS"),
				Name: field(rec, "Name"),
			}, true
		}
	}
	return Facility{}, false
}

// matchProvider returns the id of the first provider whose normalized name
// matches. The search endpoint already filters by name, so when no record
// carries a name the first result is taken.
func matchProvider(payload any, name string) (string, bool) {
	recs := records(payload, "result", "providers", "provider")
	want := normalizeName(name)
	named := false
	for _, rec := range recs {
		got := providerName(rec)
		if got == "" {
			continue
		}
		named = true
		if normalizeName(got) == want {
			if id := field(rec, "id", "providerId", "doctorId"); id != "" {
				return id, true
			}
		}
	}
	if !named && len(recs) > 0 {
		if id := field(recs[0], "id", "providerId", "doctorId"); id != "" {
			return id, true
		}
	}
	return "", false
}

func providerName(rec map[string]any) string {
	if n := field(rec, "name", "fullName", "providerName"); n != "" {
		return n
	}
	last, first := field(rec, "lastName", "ulname"), field(rec, "firstName", "ufname")
	if last == "" && first == "" {
		return ""
	}
	return last + ", " + first
}

// normalizeName lowercases and orders name tokens so "Smith, John" and
// "john smith" compare equal.
func normalizeName(s string) string {
	tokens := strings.Fields(strings.ToLower(strings.ReplaceAll(s, ",", " ")))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func matchReason(payload any, name string) (string, bool) {
	for _, rec := range records(payload, "reasons", "reason") {
		if n := field(rec, "name"); strings.EqualFold(n, strings.TrimSpace(name)) {
			return n, true
		}
	}
	return "", false
}

func matchVisitType(table []VisitType, description string) (string, bool) {
	for _, vt := range table {
		if strings.EqualFold(vt.Description, strings.TrimSpace(description)) {
			return vt.Name, true
		}
	}
	return "", false
}

func matchPatient(payload any) (string, bool) {
	for _, rec := range records(payload, "patients", "patient") {
		if id := field(rec, "id", "patientId"); id != "" {
			return id, true
		}
	}
	return "", false
}

// validationStep resolves one named entity, storing the result on success.
type validationStep func(ctx context.Context) error

// runValidation runs steps in order and stops at the first failure.
func runValidation(ctx context.Context, steps ...validationStep) error {
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// validateFacility resolves a facility name to its id and point of service.
func (i *Integration) validateFacility(ctx context.Context, name string) (Facility, error) {
	payload, err := i.fetchFacilities(ctx)
	if err != nil {
		return Facility{}, err
	}
	f, ok := matchFacility(payload, name)
	if !ok {
		return Facility{}, &NotFoundError{Entity: "Facility", Name: name}
	}
	return f, nil
}

// validateProvider resolves a provider or resource name to its id. entity
// names the role in the not-found error.
func (i *Integration) validateProvider(ctx context.Context, entity, name string) (string, error) {
	payload, err := i.fetchProvider(ctx, name)
	if err != nil {
		return "", err
	}
	id, ok := matchProvider(payload, name)
	if !ok {
		return "", &NotFoundError{Entity: entity, Name: name}
	}
	return id, nil
}

// validateReason returns the portal's canonical spelling of a visit reason.
func (i *Integration) validateReason(ctx context.Context, name string) (string, error) {
	payload, err := i.fetchReasons(ctx)
	if err != nil {
		return "", err
	}
	reason, ok := matchReason(payload, name)
	if !ok {
		return "", &NotFoundError{Entity: "Reason", Name: name}
	}
	return reason, nil
}

// validateVisitType maps a description to a visit code without a portal call.
func (i *Integration) validateVisitType(description string) (string, error) {
	code, ok := matchVisitType(i.visitTypes, description)
	if !ok {
		return "", &NotFoundError{Entity: "Visit Type", Name: description}
	}
	return code, nil
}
