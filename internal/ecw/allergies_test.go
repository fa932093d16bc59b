package ecw

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allergyPortal(t *testing.T) *fakePortal {
	t.Helper()
	p := newFakePortal(t)
	p.on("catalog/xml/setMedicalHistory.jsp", http.StatusOK, "true")
	p.on("catalog/xml/batchAjax.jsp", http.StatusOK, "true")
	p.on("catalog/xml/setAllergiesForEncounter.jsp", http.StatusOK, `<root><status>ok</status></root>`)
	return p
}

func TestSearchAllergies(t *testing.T) {
	p := newFakePortal(t)
	p.on("catalog/xml/rx/quickSearchAllergies.jsp", http.StatusOK, `<root><allergy><name>Penicillin</name></allergy></root>`)
	i := newTestIntegration(t, p)

	_, err := i.SearchAllergies(context.Background(), AllergySearchRequest{SearchText: "peni"})
	require.NoError(t, err)

	calls := p.callsTo("catalog/xml/rx/quickSearchAllergies.jsp")
	require.Len(t, calls, 1)
	q := calls[0].Query
	assert.Equal(t, "peni", q.Get("searchText"))
	assert.Equal(t, "9", q.Get("nLimit"))
	assert.Equal(t, "searchAllergy", q.Get("enhancedMedicationSearchType"))
	assert.Equal(t, strconv.FormatInt(testNow.UnixMilli(), 10), q.Get("timestamp"))
}

func TestUpdateMedHxAndAllergies(t *testing.T) {
	p := allergyPortal(t)
	i := newTestIntegration(t, p)

	text := "Type 2 diabetes"
	result, err := i.UpdateMedHxAndAllergies(context.Background(), UpdateMedHxAllergyRequest{
		PatientID:          "3001",
		EncounterID:        "900",
		MedicalHistoryText: &text,
		NewAllergies: []AllergyItem{
			{DrugName: "Penicillin", AllergyType: "Drug"},
			{DrugName: "Peanuts", AllergyType: "Food"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "true", result["medical_history_set"])
	assert.Equal(t, "true", result["flags_batch_set"])
	assert.Equal(t, []any{
		map[string]any{"item": "Penicillin", "response": map[string]any{"status": "ok"}},
		map[string]any{"item": "Peanuts", "response": map[string]any{"status": "ok"}},
	}, result["set_allergies"])

	base := testNow.UnixMilli()

	medhx := p.callsTo("catalog/xml/setMedicalHistory.jsp")
	require.Len(t, medhx, 1)
	assert.Equal(t, "undefined", medhx[0].Query.Get("allergyChanged"))
	assert.Equal(t, strconv.FormatInt(base, 10), medhx[0].Query.Get("timestamp"))
	assert.Contains(t, medhx[0].Form.Get("FormData"), "<notes>Type 2 diabetes</notes>")

	batches := p.callsTo("catalog/xml/batchAjax.jsp")
	require.Len(t, batches, 1)
	entries := batchEntries(t, batches[0])
	require.Len(t, entries, 2)
	assert.Equal(t, "Medical History", entryQuery(t, entries[0]).Get("sectionName"))
	assert.Equal(t, strconv.FormatInt(base+1, 10), entryQuery(t, entries[0]).Get("timestamp"))
	assert.Contains(t, entries[0].Params[0].Value, "<noMedHxReported>N</noMedHxReported>")
	assert.Equal(t, "Allergies", entryQuery(t, entries[1]).Get("sectionName"))
	assert.Equal(t, strconv.FormatInt(base+2, 10), entryQuery(t, entries[1]).Get("timestamp"))
	assert.Contains(t, entries[1].Params[0].Value, "<hasAllergies>Y</hasAllergies>")

	allergies := p.callsTo("catalog/xml/setAllergiesForEncounter.jsp")
	require.Len(t, allergies, 2)
	for n, c := range allergies {
		assert.Equal(t, strconv.FormatInt(base+3+int64(n), 10), c.Query.Get("timestamp"))
		assert.Contains(t, c.Form.Get("FormData"), "<displayIndex>"+strconv.Itoa(n+1)+"</displayIndex>")
	}
	assert.True(t, i.Session().Closed())
}

func TestUpdateMedHxWithoutTextOrAllergies(t *testing.T) {
	p := allergyPortal(t)
	i := newTestIntegration(t, p)

	result, err := i.UpdateMedHxAndAllergies(context.Background(), UpdateMedHxAllergyRequest{
		PatientID:   "3001",
		EncounterID: "900",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"flags_batch_set": "true"}, result)
	assert.Empty(t, p.callsTo("catalog/xml/setMedicalHistory.jsp"))
	assert.Empty(t, p.callsTo("catalog/xml/setAllergiesForEncounter.jsp"))

	entries := batchEntries(t, p.callsTo("catalog/xml/batchAjax.jsp")[0])
	assert.Contains(t, entries[0].Params[0].Value, "<noMedHxReported>Y</noMedHxReported>")
	assert.Contains(t, entries[1].Params[0].Value, "<hasAllergies>N</hasAllergies>")
}

func TestUpdateMedHxStopsOnAllergyFailure(t *testing.T) {
	p := allergyPortal(t)
	p.on("catalog/xml/setAllergiesForEncounter.jsp", http.StatusBadRequest, `{"error":{"message":"bad allergy","code":"A1"}}`)
	i := newTestIntegration(t, p)

	_, err := i.UpdateMedHxAndAllergies(context.Background(), UpdateMedHxAllergyRequest{
		PatientID:    "3001",
		EncounterID:  "900",
		NewAllergies: []AllergyItem{{DrugName: "Penicillin"}, {DrugName: "Latex"}},
	})
	require.Error(t, err)
	assert.Len(t, p.callsTo("catalog/xml/setAllergiesForEncounter.jsp"), 1)
}
