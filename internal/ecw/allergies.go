package ecw

import (
	"context"
	"strings"
)

// SearchAllergies runs the portal's allergy quick search.
func (i *Integration) SearchAllergies(ctx context.Context, req AllergySearchRequest) (_ any, err error) {
	ctx, end := i.begin(ctx, "search_allergies")
	defer end(&err)

	if err := i.validator.Validate(req); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit == "" {
		limit = defaultAllergyLimit
	}
	i.logger.Debug("ecw: searching allergies", "limit", limit)

	u, err := i.queryURL(EndpointAllergySearch, newAllergySearchQuery(req.SearchText, limit, i.session.portalQuery(i.session.Timestamp())))
	if err != nil {
		return nil, err
	}
	return i.get(ctx, EndpointAllergySearch, u)
}

// UpdateMedHxAndAllergies writes medical history text, flags the medical
// history and allergy sections in one batch, then adds each allergy with its
// own call. Allergy display indices start at 1 for every call; existing
// allergies on the encounter are not read.
func (i *Integration) UpdateMedHxAndAllergies(ctx context.Context, req UpdateMedHxAllergyRequest) (_ map[string]any, err error) {
	ctx, end := i.begin(ctx, "update_medhx_allergies")
	defer end(&err)

	if err := i.validator.Validate(req); err != nil {
		return nil, err
	}

	base := i.session.Timestamp()
	headers := i.session.WriteHeaders()
	responses := map[string]any{}

	if req.MedicalHistoryText != nil {
		fragment, err := MedicalHistoryTextFragment(req.EncounterID, *req.MedicalHistoryText)
		if err != nil {
			return nil, err
		}
		u, err := i.queryURL(EndpointSetMedicalHistory, encounterDetailsQuery{
			HistoryChanged: "true",
			AllergyChanged: "undefined",
			SectionName:    "Medical History",
			ID:             req.EncounterID,
			Mode:           "webEMR",
			PatientID:      req.PatientID,
			PortalQuery:    i.session.portalQuery(base),
		})
		if err != nil {
			return nil, err
		}
		resp, err := i.write(ctx, EndpointSetMedicalHistory, u, headers, formDataBody(fragment))
		if err != nil {
			return nil, err
		}
		responses["medical_history_set"] = resp
	}

	batch, err := i.sectionFlagsBatch(req, base)
	if err != nil {
		return nil, err
	}
	flagsResp, err := i.submitBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	responses["flags_batch_set"] = flagsResp

	if len(req.NewAllergies) == 0 {
		return responses, nil
	}
	results := make([]any, 0, len(req.NewAllergies))
	for idx, allergy := range req.NewAllergies {
		fragment, err := AllergyItemFragment(req.PatientID, req.EncounterID, allergy, idx+1)
		if err != nil {
			return nil, err
		}
		u, err := i.queryURL(EndpointSetAllergies, allergyItemQuery{
			PatientID:      req.PatientID,
			EncounterID:    req.EncounterID,
			AllergyChanged: "true",
			PortalQuery:    i.session.portalQuery(base + 3 + int64(idx)),
		})
		if err != nil {
			return nil, err
		}
		resp, err := i.write(ctx, EndpointSetAllergies, u, headers, formDataBody(fragment))
		if err != nil {
			return nil, err
		}
		results = append(results, map[string]any{"item": allergy.DrugName, "response": resp})
	}
	responses["set_allergies"] = results
	return responses, nil
}

// sectionFlagsBatch always flags both sections, changed or not.
func (i *Integration) sectionFlagsBatch(req UpdateMedHxAllergyRequest, base int64) (*BatchEnvelope, error) {
	noMedHx := req.MedicalHistoryText == nil || strings.TrimSpace(*req.MedicalHistoryText) == ""
	medHxFlag, err := MedicalHistoryFlagFragment(req.EncounterID, noMedHx)
	if err != nil {
		return nil, err
	}
	medHxPath, err := i.queryPath(EndpointSetEncounterDetails, encounterDetailsQuery{
		HistoryChanged: "true",
		SectionName:    "Medical History",
		ID:             req.EncounterID,
		Mode:           "webEMR",
		PatientID:      req.PatientID,
		PortalQuery:    i.session.portalQuery(base + 1),
	})
	if err != nil {
		return nil, err
	}

	allergyFlag, err := AllergyFlagsFragment(req.EncounterID, len(req.NewAllergies) > 0, "N")
	if err != nil {
		return nil, err
	}
	allergyPath, err := i.queryPath(EndpointSetEncounterDetails, encounterDetailsQuery{
		AllergyChanged: "true",
		SectionName:    "Allergies",
		ID:             req.EncounterID,
		Mode:           "webEMR",
		PatientID:      req.PatientID,
		PortalQuery:    i.session.portalQuery(base + 2),
	})
	if err != nil {
		return nil, err
	}

	batch := &BatchEnvelope{}
	batch.Add(medHxPath, medHxFlag)
	batch.Add(allergyPath, allergyFlag)
	return batch, nil
}
