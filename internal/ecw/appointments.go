package ecw

import (
	"context"
	"strings"
)

// CreateAppointment books an appointment, or updates the one attached to
// req.EncounterID. Every name in the request is resolved against the portal
// first; the write is only issued once all of them matched.
func (i *Integration) CreateAppointment(ctx context.Context, req AppointmentRequest) (_ any, err error) {
	flow := "create_appointment"
	if req.EncounterID != "" {
		flow = "update_appointment"
	}
	ctx, end := i.begin(ctx, flow)
	defer end(&err)

	if err := i.validator.Validate(req); err != nil {
		return nil, err
	}
	i.logger.Debug("ecw: appointment flow started", "flow", flow)

	last, first := splitPatientName(req.PatientName)
	patients, err := i.fetchPatients(ctx, GetPatientsRequest{LastName: last, FirstName: first}.withDefaults())
	if err != nil {
		return nil, err
	}
	patientID, ok := matchPatient(patients)
	if !ok {
		return nil, &NotFoundError{Entity: "Patient", Name: req.PatientName}
	}

	if err := i.primeAppointmentForm(ctx, req, patientID); err != nil {
		return nil, err
	}

	var (
		facility   Facility
		providerID string
		resourceID string
		reason     string
		visitType  string
	)
	resource := req.Resource
	if strings.TrimSpace(resource) == "" {
		resource = req.Provider
	}
	err = runValidation(ctx,
		func(ctx context.Context) (err error) {
			facility, err = i.validateFacility(ctx, req.FacilityName)
			return err
		},
		func(ctx context.Context) (err error) {
			providerID, err = i.validateProvider(ctx, "Provider", req.Provider)
			return err
		},
		func(ctx context.Context) (err error) {
			resourceID, err = i.validateProvider(ctx, "Resource", resource)
			return err
		},
		func(ctx context.Context) (err error) {
			reason, err = i.validateReason(ctx, req.Reason)
			return err
		},
		func(context.Context) (err error) {
			visitType, err = i.validateVisitType(req.VisitType)
			return err
		},
	)
	if err != nil {
		return nil, err
	}

	status := req.VisitStatus
	if status == "" {
		status = defaultVisitStatus
	}
	fragment, err := AppointmentFragment(AppointmentDetails{
		PatientID:   patientID,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		VisitType:   visitType,
		Reason:      reason,
		ProviderID:  providerID,
		ResourceID:  resourceID,
		FacilityID:  facility.ID,
		POS:         facility.POS,
		Status:      status,
		Diagnosis:   req.Diagnosis,
		Email:       req.Email,
		UserID:      i.session.Auth().TrUserID,
		GeneralNote: req.GeneralNotes,
	})
	if err != nil {
		return nil, err
	}

	key := EndpointCreateAppointment
	var extra map[string]string
	if req.EncounterID != "" {
		key = EndpointUpdateAppointment
		extra = map[string]string{"encounterId": req.EncounterID}
	}
	u, err := i.session.URL(key, extra)
	if err != nil {
		return nil, err
	}
	return i.write(ctx, key, u, i.session.WriteHeaders(), formDataBody(fragment))
}

// primeAppointmentForm loads the new-appointment form. The portal rejects the
// appointment write unless the form was opened first in the same session.
func (i *Integration) primeAppointmentForm(ctx context.Context, req AppointmentRequest, patientID string) error {
	date, err := normalizeDate(req.Date)
	if err != nil {
		return err
	}
	u, err := i.session.URL(EndpointAppointmentForm, map[string]string{
		"start":        strings.TrimSpace(req.StartTime),
		"id":           i.session.Auth().SessionDID,
		"patient_name": strings.ToUpper(req.PatientName),
		"date":         date,
		"patient_id":   patientID,
	})
	if err != nil {
		return err
	}
	_, err = i.get(ctx, EndpointAppointmentForm, u)
	return err
}
