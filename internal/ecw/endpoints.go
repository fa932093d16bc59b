package ecw

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Endpoint keys.
const (
	EndpointFacilities                = "get_facilities"
	EndpointProviders                 = "get_providers"
	EndpointProviderSearch            = "get_provider"
	EndpointReasons                   = "get_reasons"
	EndpointAppointments              = "get_appointments"
	EndpointPatients                  = "get_patients"
	EndpointAppointmentForm           = "get_appointment_form"
	EndpointCreateAppointment         = "post_appointment"
	EndpointUpdateAppointment         = "update_appointment"
	EndpointProgressNotes             = "get_progress_notes"
	EndpointSurgicalHistory           = "get_surgical_history"
	EndpointHospitalizationHistory    = "get_hospitalization_history"
	EndpointSetSurgicalHistory        = "set_surgical_history"
	EndpointSetHospitalizationHistory = "set_hospitalization_history"
	EndpointSetEncounterDetails       = "set_encounter_details"
	EndpointSetMedicalHistory         = "set_encounter_details_medical_history"
	EndpointSetAllergies              = "set_allergies_for_encounter"
	EndpointSetAnnualNotes            = "set_annual_notes"
	EndpointFamilyHistoryNotes        = "add_family_history_notes"
	EndpointAllergySearch             = "allergy_quick_search"
	EndpointBatch                     = "batch_ajax"
)

// ClientTimezone is sent on every call; the portal renders times in it.
const ClientTimezone = "UTC"

const sessionQueryTemplate = "sessionDID={sessionDID}&TrUserId={TrUserId}&timestamp={timestamp}&clientTimezone={clientTimezone}"

var sessionParams = []string{"sessionDID", "TrUserId", "timestamp", "clientTimezone"}

// Endpoint is one templated portal URL. Pattern is relative to the portal base
// URL; every {name} placeholder in it must be listed in Params.
type Endpoint struct {
	Key     string
	Pattern string
	Params  []string
}

// DefaultEndpoints returns the portal endpoint table.
func DefaultEndpoints() []Endpoint {
	withSession := func(extra ...string) []string {
		return append(extra, sessionParams...)
	}
	return []Endpoint{
		{Key: EndpointFacilities, Pattern: "/mobiledoc/jsp/catalog/xml/getFacilities.jsp?" + sessionQueryTemplate, Params: withSession()},
		{Key: EndpointProviders, Pattern: "/mobiledoc/jsp/catalog/xml/getProviders.jsp?counter={page}&" + sessionQueryTemplate, Params: withSession("page")},
		{Key: EndpointProviderSearch, Pattern: "/mobiledoc/jsp/catalog/xml/getProviderList.jsp?searchName={provider}&" + sessionQueryTemplate, Params: withSession("provider")},
		{Key: EndpointReasons, Pattern: "/mobiledoc/jsp/catalog/xml/getVisitReasons.jsp?" + sessionQueryTemplate, Params: withSession()},
		{Key: EndpointAppointments, Pattern: "/mobiledoc/jsp/webemr/jellybean/officevisit/getOfficeVisits.jsp?" + sessionQueryTemplate, Params: withSession()},
		{Key: EndpointPatients, Pattern: "/mobiledoc/jsp/catalog/xml/getPatients.jsp?" + sessionQueryTemplate, Params: withSession()},
		{
			Key:     EndpointAppointmentForm,
			Pattern: "/mobiledoc/jsp/webemr/scheduling/newAppointment.jsp?StartTime={start}&Id={id}&PatientName={patient_name}&Date={date}&PatientId={patient_id}&" + sessionQueryTemplate,
			Params:  withSession("start", "id", "patient_name", "date", "patient_id"),
		},
		{Key: EndpointCreateAppointment, Pattern: "/mobiledoc/jsp/catalog/xml/setAppointment.jsp?" + sessionQueryTemplate, Params: withSession()},
		{Key: EndpointUpdateAppointment, Pattern: "/mobiledoc/jsp/catalog/xml/setAppointment.jsp?EncounterId={encounterId}&" + sessionQueryTemplate, Params: withSession("encounterId")},
		{Key: EndpointProgressNotes, Pattern: "/mobiledoc/jsp/webemr/progressnotes/viewProgressNotes.jsp?encounterId={encounterId}&" + sessionQueryTemplate, Params: withSession("encounterId")},
		{Key: EndpointSurgicalHistory, Pattern: "/mobiledoc/jsp/catalog/xml/getSurgicalHistory.jsp"},
		{Key: EndpointHospitalizationHistory, Pattern: "/mobiledoc/jsp/catalog/xml/getHospitalization.jsp"},
		{Key: EndpointSetSurgicalHistory, Pattern: "/mobiledoc/jsp/catalog/xml/setSurgicalHistory.jsp"},
		{Key: EndpointSetHospitalizationHistory, Pattern: "/mobiledoc/jsp/catalog/xml/setHospitalization.jsp"},
		{Key: EndpointSetEncounterDetails, Pattern: "/mobiledoc/jsp/catalog/xml/setEncounterDetails.jsp"},
		{Key: EndpointSetMedicalHistory, Pattern: "/mobiledoc/jsp/catalog/xml/setMedicalHistory.jsp"},
		{Key: EndpointSetAllergies, Pattern: "/mobiledoc/jsp/catalog/xml/setAllergiesForEncounter.jsp"},
		{Key: EndpointSetAnnualNotes, Pattern: "/mobiledoc/jsp/catalog/xml/setAnnualNotes.jsp"},
		{Key: EndpointFamilyHistoryNotes, Pattern: "/mobiledoc/jsp/webemr/history/saveFamilyHistory.jsp"},
		{Key: EndpointAllergySearch, Pattern: "/mobiledoc/jsp/catalog/xml/rx/quickSearchAllergies.jsp"},
		{Key: EndpointBatch, Pattern: "/mobiledoc/jsp/catalog/xml/batchAjax.jsp"},
	}
}

var placeholderRE = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Catalog is the immutable, validated endpoint table for one portal host.
type Catalog struct {
	baseURL   string
	endpoints map[string]Endpoint
}

// NewCatalog validates every endpoint once: keys are unique and the set of
// placeholders in each pattern matches its declared Params exactly.
func NewCatalog(baseURL string, endpoints []Endpoint) (*Catalog, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("ecw: base URL is required")
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ecw: invalid base URL %q", baseURL)
	}

	table := make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		if ep.Key == "" {
			return nil, fmt.Errorf("ecw: endpoint with empty key")
		}
		if _, dup := table[ep.Key]; dup {
			return nil, fmt.Errorf("ecw: duplicate endpoint %q", ep.Key)
		}
		if !strings.HasPrefix(ep.Pattern, "/") {
			return nil, fmt.Errorf("ecw: endpoint %q pattern must be a relative path", ep.Key)
		}
		found := placeholdersOf(ep.Pattern)
		declared := make(map[string]bool, len(ep.Params))
		for _, p := range ep.Params {
			declared[p] = true
			if !found[p] {
				return nil, fmt.Errorf("ecw: endpoint %q is missing placeholder {%s}", ep.Key, p)
			}
		}
		for p := range found {
			if !declared[p] {
				return nil, fmt.Errorf("ecw: endpoint %q has undeclared placeholder {%s}", ep.Key, p)
			}
		}
		table[ep.Key] = ep
	}
	return &Catalog{baseURL: base, endpoints: table}, nil
}

// DefaultCatalog builds the catalog from DefaultEndpoints.
func DefaultCatalog(baseURL string) (*Catalog, error) {
	return NewCatalog(baseURL, DefaultEndpoints())
}

// BaseURL returns the portal origin, without a trailing slash.
func (c *Catalog) BaseURL() string { return c.baseURL }

// keys lists the endpoint keys in sorted order.
func (c *Catalog) keys() []string {
	keys := make([]string, 0, len(c.endpoints))
	for k := range c.endpoints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Path renders the relative path for key. Values are query-escaped.
func (c *Catalog) Path(key string, values map[string]string) (string, error) {
	ep, ok := c.endpoints[key]
	if !ok {
		return "", fmt.Errorf("ecw: unknown endpoint %q", key)
	}
	for _, p := range ep.Params {
		if _, ok := values[p]; !ok {
			return "", fmt.Errorf("ecw: endpoint %q needs a value for {%s}", key, p)
		}
	}
	return placeholderRE.ReplaceAllStringFunc(ep.Pattern, func(m string) string {
		return url.QueryEscape(values[m[1:len(m)-1]])
	}), nil
}

// URL renders the absolute URL for key.
func (c *Catalog) URL(key string, values map[string]string) (string, error) {
	p, err := c.Path(key, values)
	if err != nil {
		return "", err
	}
	return c.baseURL + p, nil
}

// PathWithQuery appends an encoded query to a placeholder-free endpoint.
func (c *Catalog) PathWithQuery(key string, query url.Values) (string, error) {
	p, err := c.Path(key, nil)
	if err != nil {
		return "", err
	}
	if len(query) == 0 {
		return p, nil
	}
	sep := "?"
	if strings.Contains(p, "?") {
		sep = "&"
	}
	return p + sep + query.Encode(), nil
}

// URLWithQuery is PathWithQuery as an absolute URL.
func (c *Catalog) URLWithQuery(key string, query url.Values) (string, error) {
	p, err := c.PathWithQuery(key, query)
	if err != nil {
		return "", err
	}
	return c.baseURL + p, nil
}

func placeholdersOf(pattern string) map[string]bool {
	out := map[string]bool{}
	for _, m := range placeholderRE.FindAllStringSubmatch(pattern, -1) {
		out[m[1]] = true
	}
	return out
}
