package ecw

import (
	"context"
	"strings"
)

// GetProgressNotes fetches an encounter's progress note as extracted text.
func (i *Integration) GetProgressNotes(ctx context.Context, encounterID string) (_ any, err error) {
	ctx, end := i.begin(ctx, "get_progress_notes")
	defer end(&err)

	if strings.TrimSpace(encounterID) == "" {
		return nil, &ValidationError{Fields: []FieldError{{Field: "encounterId", Rule: "required"}}}
	}
	u, err := i.session.URL(EndpointProgressNotes, map[string]string{"encounterId": encounterID})
	if err != nil {
		return nil, err
	}
	return i.get(ctx, EndpointProgressNotes, u)
}

// AddFamilyHistoryNote saves a free-text family history note. The portal
// answers a successful save with an empty body.
func (i *Integration) AddFamilyHistoryNote(ctx context.Context, req AddHistoryNoteRequest) (_ any, err error) {
	ctx, end := i.begin(ctx, "add_family_history_note")
	defer end(&err)

	if err := i.validator.Validate(req); err != nil {
		return nil, err
	}
	fragment, err := FamilyHistoryNotesFragment(req.EncounterID, req.PlainTextNotes)
	if err != nil {
		return nil, err
	}
	values, err := encodeForm(familyHistoryForm{
		ID:             req.EncounterID,
		TrUserID:       i.session.Auth().TrUserID,
		PatientID:      req.PatientID,
		Action:         "SAVE",
		IsDashboard:    "false",
		FamilyModified: "true",
		Notes:          fragment,
	})
	if err != nil {
		return nil, err
	}
	u, err := i.session.Catalog().URL(EndpointFamilyHistoryNotes, nil)
	if err != nil {
		return nil, err
	}

	resp, err := i.write(ctx, EndpointFamilyHistoryNotes, u, i.session.WriteHeaders(), values.Encode())
	if err != nil {
		return nil, err
	}
	if i.dryRun {
		return resp, nil
	}
	if s, ok := resp.(string); ok && strings.TrimSpace(s) == "" {
		return map[string]any{
			"status":  "success",
			"message": "Family history note likely saved (empty response received).",
		}, nil
	}
	return map[string]any{
		"status":       "unknown",
		"raw_response": resp,
	}, nil
}

// AddSocialHistoryNote saves a social history annual note through the batch
// endpoint, as the web UI does.
func (i *Integration) AddSocialHistoryNote(ctx context.Context, req AddHistoryNoteRequest) (_ any, err error) {
	ctx, end := i.begin(ctx, "add_social_history_note")
	defer end(&err)

	if err := i.validator.Validate(req); err != nil {
		return nil, err
	}
	fragment, err := SocialHistoryFragment(req.EncounterID, req.PlainTextNotes)
	if err != nil {
		return nil, err
	}
	path, err := i.queryPath(EndpointSetAnnualNotes, annualNotesQuery{
		EncounterID: req.EncounterID,
		Type:        "Social",
		PatientID:   req.PatientID,
		PortalQuery: i.session.portalQuery(i.session.Timestamp()),
	})
	if err != nil {
		return nil, err
	}

	batch := &BatchEnvelope{}
	batch.Add(path, fragment)
	return i.submitBatch(ctx, batch)
}
