package ecw

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Portal write bodies are XML fragments wrapped in <Envelope><Body>.
type envelope struct {
	XMLName xml.Name     `xml:"Envelope"`
	Body    envelopeBody `xml:"Body"`
}

type envelopeBody struct {
	Content any
}

func marshalFragment(v any) (string, error) {
	b, err := xml.Marshal(envelope{Body: envelopeBody{Content: v}})
	if err != nil {
		return "", fmt.Errorf("ecw: marshal fragment: %w", err)
	}
	return string(b), nil
}

const (
	portalDateLayout = "01/02/2006"
	portalTimeLayout = "15:04:05"
)

// to24Hour converts "HH:MM am|pm" into the portal's 24-hour clock.
func to24Hour(s string) (string, error) {
	norm := strings.ToLower(strings.Join(strings.Fields(s), ""))
	t, err := time.Parse("3:04pm", norm)
	if err != nil {
		return "", fmt.Errorf("ecw: invalid time %q", s)
	}
	return t.Format(portalTimeLayout), nil
}

func normalizeDate(s string) (string, error) {
	t, err := time.Parse(portalDateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", fmt.Errorf("ecw: invalid date %q", s)
	}
	return t.Format(portalDateLayout), nil
}

// AppointmentDetails is everything the appointment write needs once every
// name has been resolved to a portal id.
type AppointmentDetails struct {
	PatientID   string
	Date        string
	StartTime   string
	EndTime     string
	VisitType   string
	Reason      string
	ProviderID  string
	ResourceID  string
	FacilityID  string
	POS         string
	Status      string
	Diagnosis   string
	Email       string
	UserID      string
	GeneralNote string
}

type appointmentXML struct {
	XMLName     xml.Name `xml:"appointment"`
	PatientID   string   `xml:"patientId"`
	Date        string   `xml:"date"`
	StartTime   string   `xml:"startTime"`
	EndTime     string   `xml:"endTime"`
	VisitType   string   `xml:"visitType"`
	Reason      string   `xml:"reason"`
	DoctorID    string   `xml:"doctorId"`
	ResourceID  string   `xml:"resourceId"`
	FacilityID  string   `xml:"facilityId"`
	POS         string   `xml:"POS"`
	Status      string   `xml:"visitStatus"`
	Diagnosis   string   `xml:"diagnosis"`
	Email       string   `xml:"patientEmail"`
	UserID      string   `xml:"userId"`
	GeneralNote string   `xml:"generalNotes"`
}

// AppointmentFragment builds the create/update appointment XML.
func AppointmentFragment(d AppointmentDetails) (string, error) {
	date, err := normalizeDate(d.Date)
	if err != nil {
		return "", err
	}
	start, err := to24Hour(d.StartTime)
	if err != nil {
		return "", err
	}
	end, err := to24Hour(d.EndTime)
	if err != nil {
		return "", err
	}
	return marshalFragment(appointmentXML{
		PatientID:   d.PatientID,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		VisitType:   d.VisitType,
		Reason:      d.Reason,
		DoctorID:    d.ProviderID,
		ResourceID:  d.ResourceID,
		FacilityID:  d.FacilityID,
		POS:         d.POS,
		Status:      d.Status,
		Diagnosis:   d.Diagnosis,
		Email:       d.Email,
		UserID:      d.UserID,
		GeneralNote: d.GeneralNote,
	})
}

// HistoryKind selects the surgical or hospitalization history section.
type HistoryKind int

const (
	SurgicalHistory HistoryKind = iota + 1
	HospitalizationHistory
)

// Section is the encounter section name the portal flags as changed.
func (k HistoryKind) Section() string {
	if k == SurgicalHistory {
		return "Surgical History"
	}
	return "Hospitalization"
}

func (k HistoryKind) String() string {
	if k == SurgicalHistory {
		return "surgical"
	}
	return "hospitalization"
}

// HistoryItem is one surgical or hospitalization entry. DisplayIndex is the
// 1-based render position, a string on the wire.
type HistoryItem struct {
	ID           string `json:"id,omitempty"`
	Reason       string `json:"reason"`
	Date         string `json:"date"`
	CPTCode      string `json:"cptcode,omitempty"`
	DisplayIndex string `json:"displayIndex"`
	// Extra holds portal fields of existing entries that are not modelled
	// above. They are written back unchanged.
	Extra map[string]string `json:"-"`
}

// extraElement writes one Extra field back as <name>value</name>.
type extraElement struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

func extraElements(extra map[string]string) []extraElement {
	if len(extra) == 0 {
		return nil
	}
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]extraElement, 0, len(names))
	for _, name := range names {
		out = append(out, extraElement{XMLName: xml.Name{Local: name}, Value: extra[name]})
	}
	return out
}

// MergeHistory appends additions after existing, numbering them from the
// highest existing display index. Existing items are kept untouched.
func MergeHistory(existing []HistoryItem, additions []HistoryItemInput) []HistoryItem {
	merged := make([]HistoryItem, 0, len(existing)+len(additions))
	maxIdx := 0
	for _, item := range existing {
		merged = append(merged, item)
		if n, err := strconv.Atoi(strings.TrimSpace(item.DisplayIndex)); err == nil && n > maxIdx {
			maxIdx = n
		}
	}
	for _, add := range additions {
		maxIdx++
		merged = append(merged, HistoryItem{
			Reason:       add.Reason,
			Date:         add.Date,
			CPTCode:      add.CPTCode,
			DisplayIndex: strconv.Itoa(maxIdx),
		})
	}
	return merged
}

type surgicalItemXML struct {
	ID           string         `xml:"id"`
	Reason       string         `xml:"reason"`
	Date         string         `xml:"date"`
	CPTCode      string         `xml:"cptcode"`
	DisplayIndex string         `xml:"displayIndex"`
	Extra        []extraElement `xml:",any"`
}

type surgicalHistoryXML struct {
	XMLName xml.Name          `xml:"surgicalhistory"`
	Items   []surgicalItemXML `xml:"item"`
}

type hospitalizationItemXML struct {
	ID           string         `xml:"id"`
	Reason       string         `xml:"reason"`
	Date         string         `xml:"date"`
	DisplayIndex string         `xml:"displayIndex"`
	Extra        []extraElement `xml:",any"`
}

type hospitalizationXML struct {
	XMLName xml.Name                 `xml:"hospitalization"`
	Items   []hospitalizationItemXML `xml:"item"`
}

// HistoryFragment serializes a merged history list. New items carry id 0.
func HistoryFragment(kind HistoryKind, items []HistoryItem) (string, error) {
	id := func(it HistoryItem) string {
		if it.ID == "" {
			return "0"
		}
		return it.ID
	}
	if kind == SurgicalHistory {
		doc := surgicalHistoryXML{Items: make([]surgicalItemXML, 0, len(items))}
		for _, it := range items {
			doc.Items = append(doc.Items, surgicalItemXML{
				ID: id(it), Reason: it.Reason, Date: it.Date, CPTCode: it.CPTCode, DisplayIndex: it.DisplayIndex,
				Extra: extraElements(it.Extra),
			})
		}
		return marshalFragment(doc)
	}
	doc := hospitalizationXML{Items: make([]hospitalizationItemXML, 0, len(items))}
	for _, it := range items {
		doc.Items = append(doc.Items, hospitalizationItemXML{
			ID: id(it), Reason: it.Reason, Date: it.Date, DisplayIndex: it.DisplayIndex,
			Extra: extraElements(it.Extra),
		})
	}
	return marshalFragment(doc)
}

type encounterFlagXML struct {
	XMLName        xml.Name `xml:"encounter"`
	ID             string   `xml:"Id"`
	SectionName    string   `xml:"sectionName"`
	HistoryChanged string   `xml:"historyChanged,omitempty"`
	NoMedHx        string   `xml:"noMedHxReported,omitempty"`
	HasAllergies   string   `xml:"hasAllergies,omitempty"`
	NKDA           string   `xml:"nkda,omitempty"`
	AllergyChanged string   `xml:"allergyChanged,omitempty"`
}

func yn(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

// EncounterFlagFragment marks an encounter history section as changed.
func EncounterFlagFragment(encounterID, section string, changed bool) (string, error) {
	return marshalFragment(encounterFlagXML{
		ID:             encounterID,
		SectionName:    section,
		HistoryChanged: strconv.FormatBool(changed),
	})
}

// MedicalHistoryFlagFragment flags the medical history section, recording
// whether the patient reported no medical history.
func MedicalHistoryFlagFragment(encounterID string, noneReported bool) (string, error) {
	return marshalFragment(encounterFlagXML{
		ID:             encounterID,
		SectionName:    "Medical History",
		HistoryChanged: "true",
		NoMedHx:        yn(noneReported),
	})
}

// AllergyFlagsFragment flags the allergies section. nkda is "Y" or "N".
func AllergyFlagsFragment(encounterID string, hasAllergies bool, nkda string) (string, error) {
	return marshalFragment(encounterFlagXML{
		ID:             encounterID,
		SectionName:    "Allergies",
		HasAllergies:   yn(hasAllergies),
		NKDA:           nkda,
		AllergyChanged: "true",
	})
}

type notesXML struct {
	XMLName     xml.Name
	EncounterID string `xml:"encounterId"`
	Type        string `xml:"type,omitempty"`
	Notes       string `xml:"notes"`
}

// MedicalHistoryTextFragment carries free-text medical history.
func MedicalHistoryTextFragment(encounterID, text string) (string, error) {
	return marshalFragment(notesXML{XMLName: xml.Name{Local: "medicalhistory"}, EncounterID: encounterID, Notes: text})
}

// FamilyHistoryNotesFragment carries a free-text family history note.
func FamilyHistoryNotesFragment(encounterID, text string) (string, error) {
	return marshalFragment(notesXML{XMLName: xml.Name{Local: "familyhistory"}, EncounterID: encounterID, Notes: text})
}

// SocialHistoryFragment carries a free-text social history annual note.
func SocialHistoryFragment(encounterID, text string) (string, error) {
	return marshalFragment(notesXML{XMLName: xml.Name{Local: "annualnotes"}, EncounterID: encounterID, Type: "Social", Notes: text})
}

type allergyXML struct {
	XMLName             xml.Name `xml:"allergy"`
	PatientID           string   `xml:"patientId"`
	EncounterID         string   `xml:"encounterId"`
	DrugName            string   `xml:"drugName"`
	RxID                string   `xml:"rxId"`
	ReactionDescription string   `xml:"reaction"`
	AllergyType         string   `xml:"allergyType"`
	Status              string   `xml:"status"`
	Criticality         string   `xml:"criticality"`
	OnsetDate           string   `xml:"onsetDate"`
	DisplayIndex        int      `xml:"displayIndex"`
}

// AllergyItemFragment serializes one allergy with its display index.
func AllergyItemFragment(patientID, encounterID string, item AllergyItem, displayIndex int) (string, error) {
	return marshalFragment(allergyXML{
		PatientID:           patientID,
		EncounterID:         encounterID,
		DrugName:            item.DrugName,
		RxID:                item.RxID,
		ReactionDescription: item.ReactionDescription,
		AllergyType:         item.AllergyType,
		Status:              item.Status,
		Criticality:         item.Criticality,
		OnsetDate:           item.OnsetDate,
		DisplayIndex:        displayIndex,
	})
}
