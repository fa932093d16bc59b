package ecw

import "time"

const (
	defaultAppointmentCount = 100
	defaultPatientCount     = 10
	defaultAllergyLimit     = "9"
	defaultVisitStatus      = "PEN"
)

// GetAppointmentsRequest lists a day's office visits.
type GetAppointmentsRequest struct {
	EDate      string `json:"eDate,omitempty"`
	MaxCount   int    `json:"maxCount,omitempty" validate:"omitempty,min=1,max=1000"`
	ProviderID string `json:"providerId,omitempty"`
	FacilityID string `json:"facilityId,omitempty"`
}

func (r GetAppointmentsRequest) withDefaults(now time.Time) GetAppointmentsRequest {
	if r.EDate == "" {
		r.EDate = now.UTC().Format("2006-01-02")
	}
	if r.MaxCount == 0 {
		r.MaxCount = defaultAppointmentCount
	}
	if r.ProviderID == "" {
		r.ProviderID = "0"
	}
	if r.FacilityID == "" {
		r.FacilityID = "0"
	}
	return r
}

// GetPatientsRequest searches active patients by name.
type GetPatientsRequest struct {
	LastName  string `json:"lastName" validate:"required"`
	FirstName string `json:"firstName,omitempty"`
	MaxCount  int    `json:"maxCount,omitempty" validate:"omitempty,min=1,max=500"`
}

func (r GetPatientsRequest) withDefaults() GetPatientsRequest {
	if r.MaxCount == 0 {
		r.MaxCount = defaultPatientCount
	}
	return r
}

// AppointmentRequest creates an appointment, or updates one in place when
// EncounterID is set. Names are resolved against the portal before writing.
type AppointmentRequest struct {
	PatientName  string `json:"patient_name" validate:"required,ecw_patient_name"`
	Date         string `json:"date" validate:"required,ecw_date"`
	StartTime    string `json:"start_time" validate:"required,ecw_time"`
	EndTime      string `json:"end_time" validate:"required,ecw_time"`
	VisitType    string `json:"visit_type" validate:"required"`
	VisitStatus  string `json:"visit_status,omitempty"`
	Reason       string `json:"reason" validate:"required"`
	Provider     string `json:"provider" validate:"required"`
	Resource     string `json:"resource,omitempty"`
	FacilityName string `json:"facility_name" validate:"required"`
	Diagnosis    string `json:"diagnosis,omitempty"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	GeneralNotes string `json:"general_notes,omitempty"`
	EncounterID  string `json:"encounterId,omitempty"`
}

// HistoryItemInput is a new surgical or hospitalization entry.
type HistoryItemInput struct {
	Reason  string `json:"reason" validate:"required"`
	Date    string `json:"date,omitempty"`
	CPTCode string `json:"cptcode,omitempty"`
}

// AddSurgicalAndHospitalizationItemsRequest appends history entries to an encounter.
type AddSurgicalAndHospitalizationItemsRequest struct {
	PatientID               string             `json:"patient_id" validate:"required"`
	EncounterID             string             `json:"encounter_id" validate:"required"`
	NewSurgicalItems        []HistoryItemInput `json:"new_surgical_items,omitempty" validate:"dive"`
	NewHospitalizationItems []HistoryItemInput `json:"new_hospitalization_items,omitempty" validate:"dive"`
}

// AddHistoryNoteRequest carries a free-text family or social history note.
type AddHistoryNoteRequest struct {
	PatientID      string `json:"patient_id" validate:"required"`
	EncounterID    string `json:"encounter_id" validate:"required"`
	PlainTextNotes string `json:"plain_text_notes" validate:"required"`
}

// AllergyItem is one allergy to record on an encounter.
type AllergyItem struct {
	DrugName            string `json:"drug_name" validate:"required"`
	RxID                string `json:"rx_id,omitempty"`
	ReactionDescription string `json:"reaction_description,omitempty"`
	AllergyType         string `json:"allergy_type,omitempty" validate:"omitempty,oneof=Drug Food Environmental Other"`
	Status              string `json:"status,omitempty" validate:"omitempty,oneof=Active Inactive Resolved"`
	Criticality         string `json:"criticality,omitempty" validate:"omitempty,oneof=Low High Unknown"`
	OnsetDate           string `json:"onset_date,omitempty" validate:"omitempty,ecw_date"`
}

// UpdateMedHxAllergyRequest sets medical history text and adds allergies. A
// nil MedicalHistoryText skips the medical history write.
type UpdateMedHxAllergyRequest struct {
	PatientID          string        `json:"patient_id" validate:"required"`
	EncounterID        string        `json:"encounter_id" validate:"required"`
	MedicalHistoryText *string       `json:"medical_history_text,omitempty"`
	NewAllergies       []AllergyItem `json:"new_allergies,omitempty" validate:"dive"`
}

// AllergySearchRequest runs the portal's allergy quick search.
type AllergySearchRequest struct {
	SearchText string `json:"search_text" validate:"required"`
	Limit      string `json:"limit,omitempty" validate:"omitempty,numeric"`
}
