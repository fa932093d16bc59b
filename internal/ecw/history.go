package ecw

import (
	"context"
	"net/http"
)

// NoHistoryMessage acknowledges a history update with nothing to add.
const NoHistoryMessage = "No new history items to add."

var historyEndpoints = map[HistoryKind]struct{ fetch, set string }{
	SurgicalHistory:        {fetch: EndpointSurgicalHistory, set: EndpointSetSurgicalHistory},
	HospitalizationHistory: {fetch: EndpointHospitalizationHistory, set: EndpointSetHospitalizationHistory},
}

// AddSurgicalAndHospitalizationItems appends history entries to an encounter.
// Each section's existing list is fetched and merged so display indices keep
// increasing, then both sections go out in one batch call.
func (i *Integration) AddSurgicalAndHospitalizationItems(ctx context.Context, req AddSurgicalAndHospitalizationItemsRequest) (_ any, err error) {
	ctx, end := i.begin(ctx, "add_history_items")
	defer end(&err)

	if err := i.validator.Validate(req); err != nil {
		return nil, err
	}
	if len(req.NewSurgicalItems) == 0 && len(req.NewHospitalizationItems) == 0 {
		return map[string]any{"message": NoHistoryMessage}, nil
	}

	base := i.session.Timestamp()
	batch := &BatchEnvelope{}
	if len(req.NewSurgicalItems) > 0 {
		if err := i.queueHistory(ctx, batch, req, SurgicalHistory, req.NewSurgicalItems, base); err != nil {
			return nil, err
		}
	}
	if len(req.NewHospitalizationItems) > 0 {
		if err := i.queueHistory(ctx, batch, req, HospitalizationHistory, req.NewHospitalizationItems, base+3); err != nil {
			return nil, err
		}
	}
	return i.submitBatch(ctx, batch)
}

// queueHistory adds the data-set entry and then the changed flag for kind.
// ts, ts+1 and ts+2 stamp the fetch, data-set and flag calls.
func (i *Integration) queueHistory(ctx context.Context, batch *BatchEnvelope, req AddSurgicalAndHospitalizationItemsRequest, kind HistoryKind, additions []HistoryItemInput, ts int64) error {
	existing := i.existingHistory(ctx, req.EncounterID, kind, ts)
	merged := MergeHistory(existing, additions)

	fragment, err := HistoryFragment(kind, merged)
	if err != nil {
		return err
	}
	data := historyDataQuery{
		Mode:        "webemr",
		PatientID:   req.PatientID,
		EncounterID: req.EncounterID,
		PortalQuery: i.session.portalQuery(ts + 1),
	}
	if kind == SurgicalHistory {
		data.SurgicalHxChanged = "true"
	} else {
		data.HospHxChanged = "true"
	}
	dataPath, err := i.queryPath(historyEndpoints[kind].set, data)
	if err != nil {
		return err
	}
	batch.Add(dataPath, fragment)

	flag, err := EncounterFlagFragment(req.EncounterID, kind.Section(), true)
	if err != nil {
		return err
	}
	flagPath, err := i.queryPath(EndpointSetEncounterDetails, encounterDetailsQuery{
		HistoryChanged: "true",
		SectionName:    kind.Section(),
		ID:             req.EncounterID,
		Mode:           "webEMR",
		PatientID:      req.PatientID,
		PortalQuery:    i.session.portalQuery(ts + 2),
	})
	if err != nil {
		return err
	}
	batch.Add(flagPath, flag)

	i.logger.Debug("ecw: queued history update",
		"section", kind.String(),
		"existing", len(existing),
		"added", len(additions),
	)
	return nil
}

// existingHistory fetches the encounter's current list. Any failure yields an
// empty list so the new items still go out.
func (i *Integration) existingHistory(ctx context.Context, encounterID string, kind HistoryKind, ts int64) []HistoryItem {
	key := historyEndpoints[kind].fetch
	u, err := i.queryURL(key, historyFetchQuery{
		EncounterID:        encounterID,
		PortalQuery:        i.session.portalQuery(ts),
		CalledFromHospCtrl: "true",
	})
	if err != nil {
		i.logger.Warn("ecw: history fetch skipped", "section", kind.String(), "error", err)
		return nil
	}
	payload, err := i.session.Do(ctx, Call{
		Operation: key,
		Method:    http.MethodGet,
		URL:       u,
		Header:    i.session.Headers(""),
		Tolerant:  true,
	})
	if err != nil {
		i.logger.Warn("ecw: existing history unavailable", "section", kind.String(), "error", err)
		return nil
	}
	if _, ok := payload.(*ParseError); ok {
		i.logger.Warn("ecw: existing history unreadable", "section", kind.String())
		return nil
	}
	return historyItems(payload, kind)
}
