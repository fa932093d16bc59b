package ecw

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noteRequest() AddHistoryNoteRequest {
	return AddHistoryNoteRequest{PatientID: "3001", EncounterID: "900", PlainTextNotes: "Mother: hypertension"}
}

func TestGetProgressNotes(t *testing.T) {
	p := newFakePortal(t)
	p.on("webemr/progressnotes/viewProgressNotes.jsp", http.StatusOK, progressNoteHTML)
	i := newTestIntegration(t, p)

	result, err := i.GetProgressNotes(context.Background(), "900")
	require.NoError(t, err)
	note := result.(map[string]any)["progress_notes"].(map[string]any)
	assert.Equal(t, "Progress Note", note["title"])

	calls := p.callsTo("webemr/progressnotes/viewProgressNotes.jsp")
	require.Len(t, calls, 1)
	assert.Equal(t, "900", calls[0].Query.Get("encounterId"))
}

func TestGetProgressNotesRequiresEncounter(t *testing.T) {
	p := newFakePortal(t)
	i := newTestIntegration(t, p)

	_, err := i.GetProgressNotes(context.Background(), " ")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, p.callCount())
}

func TestAddFamilyHistoryNote(t *testing.T) {
	p := newFakePortal(t)
	p.on("webemr/history/saveFamilyHistory.jsp", http.StatusOK, "")
	i := newTestIntegration(t, p)

	result, err := i.AddFamilyHistoryNote(context.Background(), noteRequest())
	require.NoError(t, err)
	assert.Equal(t, "success", result.(map[string]any)["status"])

	calls := p.callsTo("webemr/history/saveFamilyHistory.jsp")
	require.Len(t, calls, 1)
	c := calls[0]
	assert.Equal(t, http.MethodPost, c.Method)
	assert.Empty(t, c.Query.Get("sessionDID"))
	assert.Equal(t, "900", c.Form.Get("Id"))
	assert.Equal(t, "3001", c.Form.Get("patientId"))
	assert.Equal(t, "42", c.Form.Get("TrUserId"))
	assert.Equal(t, "true", c.Form.Get("familymodified"))
	assert.Contains(t, c.Form.Get("FormDataNotes"), "<notes>Mother: hypertension</notes>")
}

func TestAddFamilyHistoryNoteUnexpectedReply(t *testing.T) {
	p := newFakePortal(t)
	p.on("webemr/history/saveFamilyHistory.jsp", http.StatusOK, `{"saved":false}`)
	i := newTestIntegration(t, p)

	result, err := i.AddFamilyHistoryNote(context.Background(), noteRequest())
	require.NoError(t, err)
	m := result.(map[string]any)
	assert.Equal(t, "unknown", m["status"])
	assert.Equal(t, map[string]any{"saved": false}, m["raw_response"])
}

func TestAddFamilyHistoryNoteDryRun(t *testing.T) {
	p := newFakePortal(t)
	i := newTestIntegration(t, p, WithDryRun(true))

	result, err := i.AddFamilyHistoryNote(context.Background(), noteRequest())
	require.NoError(t, err)
	assert.Equal(t, "dry_run", result.(map[string]any)["status"])
	assert.Equal(t, 0, p.callCount())
}

func TestAddSocialHistoryNote(t *testing.T) {
	p := newFakePortal(t)
	p.on("catalog/xml/batchAjax.jsp", http.StatusOK, "true")
	i := newTestIntegration(t, p)

	_, err := i.AddSocialHistoryNote(context.Background(), noteRequest())
	require.NoError(t, err)

	batches := p.callsTo("catalog/xml/batchAjax.jsp")
	require.Len(t, batches, 1)
	entries := batchEntries(t, batches[0])
	require.Len(t, entries, 1)
	q := entryQuery(t, entries[0])
	assert.Equal(t, "Social", q.Get("type"))
	assert.Equal(t, "900", q.Get("encounterId"))
	assert.Equal(t, "sess-123", q.Get("sessionDID"))
	assert.Contains(t, entries[0].Params[0].Value, "<annualnotes>")
}

func TestAddSocialHistoryNoteRequiresText(t *testing.T) {
	p := newFakePortal(t)
	i := newTestIntegration(t, p)

	req := noteRequest()
	req.PlainTextNotes = ""
	_, err := i.AddSocialHistoryNote(context.Background(), req)
	rules := fieldRules(t, err)
	assert.Equal(t, "required", rules["plain_text_notes"])
	assert.Equal(t, 0, p.callCount())
}
