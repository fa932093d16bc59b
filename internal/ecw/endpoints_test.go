package ecw

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c, err := DefaultCatalog("https://portal.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "https://portal.example.com", c.BaseURL())

	keys := c.keys()
	for _, key := range []string{
		EndpointFacilities, EndpointProviders, EndpointProviderSearch, EndpointReasons,
		EndpointAppointments, EndpointPatients, EndpointAppointmentForm, EndpointCreateAppointment,
		EndpointUpdateAppointment, EndpointProgressNotes, EndpointSurgicalHistory,
		EndpointHospitalizationHistory, EndpointSetSurgicalHistory, EndpointSetHospitalizationHistory,
		EndpointSetEncounterDetails, EndpointSetMedicalHistory, EndpointSetAllergies,
		EndpointSetAnnualNotes, EndpointFamilyHistoryNotes, EndpointAllergySearch, EndpointBatch,
	} {
		assert.Contains(t, keys, key)
	}
}

func TestNewCatalogRejectsBadTables(t *testing.T) {
	tests := []struct {
		name      string
		base      string
		endpoints []Endpoint
		want      string
	}{
		{"empty base", "", nil, "base URL is required"},
		{"relative base", "portal.example.com", nil, "invalid base URL"},
		{"duplicate key", "https://p.example.com", []Endpoint{{Key: "a", Pattern: "/a"}, {Key: "a", Pattern: "/b"}}, "duplicate endpoint"},
		{"absolute pattern", "https://p.example.com", []Endpoint{{Key: "a", Pattern: "https://x/a"}}, "relative path"},
		{"declared but absent", "https://p.example.com", []Endpoint{{Key: "a", Pattern: "/a", Params: []string{"id"}}}, "missing placeholder {id}"},
		{"present but undeclared", "https://p.example.com", []Endpoint{{Key: "a", Pattern: "/a?id={id}"}}, "undeclared placeholder {id}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalog(tt.base, tt.endpoints)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCatalogURLSubstitutesAndEscapes(t *testing.T) {
	c, err := DefaultCatalog("https://portal.example.com")
	require.NoError(t, err)

	u, err := c.URL(EndpointProviderSearch, map[string]string{
		"provider":       "smith, john",
		"sessionDID":     "s1",
		"TrUserId":       "9",
		"timestamp":      "1700000000000",
		"clientTimezone": ClientTimezone,
	})
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "/mobiledoc/jsp/catalog/xml/getProviderList.jsp", parsed.Path)
	assert.Equal(t, "smith, john", parsed.Query().Get("searchName"))
	assert.Equal(t, "UTC", parsed.Query().Get("clientTimezone"))
	assert.Equal(t, "1700000000000", parsed.Query().Get("timestamp"))
	assert.True(t, strings.HasPrefix(u, "https://portal.example.com/"))
}

func TestCatalogPathErrors(t *testing.T) {
	c, err := DefaultCatalog("https://portal.example.com")
	require.NoError(t, err)

	_, err = c.Path("nope", nil)
	assert.ErrorContains(t, err, "unknown endpoint")

	_, err = c.Path(EndpointFacilities, map[string]string{"sessionDID": "s"})
	assert.ErrorContains(t, err, "needs a value")
}

func TestCatalogPathWithQuery(t *testing.T) {
	c, err := NewCatalog("https://p.example.com", []Endpoint{
		{Key: "plain", Pattern: "/a.jsp"},
		{Key: "fixed", Pattern: "/b.jsp?mode=x"},
	})
	require.NoError(t, err)

	p, err := c.PathWithQuery("plain", url.Values{"id": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, "/a.jsp?id=1", p)

	p, err = c.PathWithQuery("fixed", url.Values{"id": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, "/b.jsp?mode=x&id=1", p)

	u, err := c.URLWithQuery("plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://p.example.com/a.jsp", u)
}
