package ecw

import (
	"fmt"
	"net/url"

	"github.com/gorilla/schema"
)

var formEncoder = schema.NewEncoder()

// encodeForm flattens a schema-tagged struct, embedded blocks included.
func encodeForm(v any) (url.Values, error) {
	values := url.Values{}
	if err := formEncoder.Encode(v, values); err != nil {
		return nil, fmt.Errorf("ecw: encode form: %w", err)
	}
	return values, nil
}

// PortalQuery is the session block the web UI appends to its data-set calls.
type PortalQuery struct {
	SessionDID     string `schema:"sessionDID"`
	TrUserID       string `schema:"TrUserId"`
	Device         string `schema:"Device"`
	ProcessID      string `schema:"ecwappprocessid"`
	Timestamp      int64  `schema:"timestamp"`
	ClientTimezone string `schema:"clientTimezone"`
}

type appointmentsForm struct {
	EDate           string `schema:"eDate"`
	DoctorID        string `schema:"doctorId"`
	SortBy          string `schema:"sortBy"`
	FacilityID      string `schema:"facilityId"`
	ApptTime        int    `schema:"apptTime"`
	CheckinStatus   int    `schema:"checkinstatus"`
	FacilityGrpID   int    `schema:"FacilityGrpId"`
	MaxCount        int    `schema:"maxCount"`
	Counter         int    `schema:"nCounter"`
	DeptID          int    `schema:"DeptId"`
	FromWeb         string `schema:"fromWeb"`
	FromAfterCare   string `schema:"fromAfterCare"`
	TabID           int    `schema:"tabId"`
	ToDate          string `schema:"toDate"`
	ShowASCVisits   string `schema:"selectedChkShowASCvisits"`
	IncludeResource string `schema:"includeResourceAppt"`
}

func newAppointmentsForm(req GetAppointmentsRequest) appointmentsForm {
	return appointmentsForm{
		EDate:           req.EDate,
		DoctorID:        req.ProviderID,
		SortBy:          "time",
		FacilityID:      req.FacilityID,
		MaxCount:        req.MaxCount,
		FromWeb:         "yes",
		FromAfterCare:   "officeVisit",
		TabID:           3,
		ShowASCVisits:   "false",
		IncludeResource: "true",
	}
}

type patientSearchForm struct {
	Counter            int    `schema:"counter"`
	FirstName          string `schema:"firstName"`
	LastName           string `schema:"lastName"`
	PrimarySearchValue string `schema:"primarySearchValue"`
	SearchBy           string `schema:"SearchBy"`
	StatusSearch       string `schema:"StatusSearch"`
	LimitStart         int    `schema:"limitstart"`
	LimitRange         int    `schema:"limitrange"`
	MaxCount           int    `schema:"MAXCOUNT"`
	Device             string `schema:"device"`
	CallFromScreen     string `schema:"callFromScreen"`
	Action             string `schema:"action"`
	DonorProfileStatus int    `schema:"donorProfileStatus"`
	AddlSearchBy       string `schema:"AddlSearchBy"`
	AddlSearchVal      string `schema:"AddlSearchVal"`
	UserType           string `schema:"userType"`
	OrderBy            string `schema:"orderBy"`
}

func newPatientSearchForm(req GetPatientsRequest) patientSearchForm {
	primary := req.LastName
	if req.FirstName != "" {
		primary += ", " + req.FirstName
	}
	return patientSearchForm{
		Counter:            1,
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		PrimarySearchValue: primary,
		SearchBy:           "Name",
		StatusSearch:       "Active",
		LimitRange:         req.MaxCount,
		MaxCount:           req.MaxCount,
		Device:             "webemr",
		CallFromScreen:     "PatientSearch",
		Action:             "Patient",
		DonorProfileStatus: 2,
		AddlSearchBy:       "DateOfBirth",
	}
}

type historyFetchQuery struct {
	EncounterID string `schema:"encounterId"`
	PortalQuery
	CalledFromHospCtrl string `schema:"calledFromHospCtrl"`
}

type historyDataQuery struct {
	Mode        string `schema:"mode"`
	PatientID   string `schema:"patientId"`
	EncounterID string `schema:"EncounterId"`
	PortalQuery
	SurgicalHxChanged string `schema:"surgicalHxChanged,omitempty"`
	HospHxChanged     string `schema:"hospHxChanged,omitempty"`
}

type encounterDetailsQuery struct {
	HistoryChanged string `schema:"historyChanged,omitempty"`
	AllergyChanged string `schema:"allergyChanged,omitempty"`
	SectionName    string `schema:"sectionName"`
	ID             string `schema:"Id"`
	Mode           string `schema:"mode"`
	PatientID      string `schema:"ptId"`
	PortalQuery
}

type allergyItemQuery struct {
	PatientID      string `schema:"patientId"`
	EncounterID    string `schema:"encounterId"`
	AllergyChanged string `schema:"allergyChanged"`
	PortalQuery
}

type annualNotesQuery struct {
	EncounterID string `schema:"encounterId"`
	Type        string `schema:"type"`
	PatientID   string `schema:"patientId"`
	PortalQuery
}

type familyHistoryForm struct {
	ID             string `schema:"Id"`
	TrUserID       string `schema:"TrUserId"`
	PatientID      string `schema:"patientId"`
	Action         string `schema:"action"`
	IsDashboard    string `schema:"isDashboard"`
	FamilyModified string `schema:"familymodified"`
	Notes          string `schema:"FormDataNotes"`
}

// allergySearchQuery carries the quick-search flags the medication
// reconciliation screen sends.
type allergySearchQuery struct {
	SearchType         string `schema:"searchType"`
	CalledFrom         string `schema:"calledFrom"`
	SearchText         string `schema:"searchText"`
	RxTypeID           string `schema:"RxTypeID"`
	EncounterID        string `schema:"nEncounterId"`
	Limit              string `schema:"nLimit"`
	RxDrugSearchType   string `schema:"rxDrugSearchType"`
	HideMSClinical     string `schema:"hideMSClinical"`
	FacilityID         string `schema:"facilityId"`
	Obsolete           string `schema:"bObsolete"`
	ShowDeletedDrug    string `schema:"showDeletedDrug"`
	EnhancedSearchType string `schema:"enhancedMedicationSearchType"`
	StartsWithContains string `schema:"startsWithContainsSearchEnabled"`
	Fuzzy              string `schema:"fuzzySearchEnabled"`
	Mnemonic           string `schema:"mnemonicSearchEnabled"`
	Proximity          string `schema:"proximitySearchEnabled"`
	GenericWithBrand   string `schema:"genericWithBrandSearchEnabled"`
	Section            string `schema:"section"`
	PortalQuery
}

func newAllergySearchQuery(text, limit string, pq PortalQuery) allergySearchQuery {
	return allergySearchQuery{
		SearchType:         "0",
		CalledFrom:         "MedReconciliation",
		SearchText:         text,
		RxTypeID:           "12846",
		EncounterID:        "0",
		Limit:              limit,
		RxDrugSearchType:   "1",
		HideMSClinical:     "false",
		FacilityID:         "0",
		Obsolete:           "0",
		ShowDeletedDrug:    "0",
		EnhancedSearchType: "searchAllergy",
		StartsWithContains: "-1",
		Fuzzy:              "-1",
		Mnemonic:           "-1",
		Proximity:          "-1",
		GenericWithBrand:   "-1",
		Section:            "AllergyDrugRxNotes1",
		PortalQuery:        pq,
	}
}

// formDataBody is the single-field body used by every XML write.
func formDataBody(fragment string) string {
	return url.Values{"FormData": {fragment}}.Encode()
}
