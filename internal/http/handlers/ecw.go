package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/ecw-bridge/internal/ecw"
	"github.com/wolfman30/ecw-bridge/internal/http/middleware"
	"github.com/wolfman30/ecw-bridge/internal/observability/metrics"
	"github.com/wolfman30/ecw-bridge/internal/sessions"
	"github.com/wolfman30/ecw-bridge/pkg/logging"
)

// IntegrationFactory opens a portal integration for one request.
type IntegrationFactory func(auth ecw.AuthTokens) (*ecw.Integration, error)

// SessionStore persists caller-registered auth tokens.
type SessionStore interface {
	Save(ctx context.Context, auth ecw.AuthTokens) (string, error)
	Load(ctx context.Context, id string) (ecw.AuthTokens, error)
	Delete(ctx context.Context, id string) error
}

// ECWHandlerConfig wires an ECWHandler.
type ECWHandlerConfig struct {
	NewIntegration IntegrationFactory
	// Sessions is optional; without it callers must send raw token headers.
	Sessions SessionStore
	// Gate serializes flows per portal session. A fresh gate is created when nil.
	Gate     *sessions.Gate
	Gatherer prometheus.Gatherer
	Logger   *logging.Logger
}

// ECWHandler exposes the portal flows over HTTP. Each request runs exactly
// one flow on its own integration.
type ECWHandler struct {
	newIntegration IntegrationFactory
	sessions       SessionStore
	gate           *sessions.Gate
	gatherer       prometheus.Gatherer
	logger         *logging.Logger
}

// NewECWHandler creates the handler.
func NewECWHandler(cfg ECWHandlerConfig) *ECWHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Gate == nil {
		cfg.Gate = sessions.NewGate()
	}
	return &ECWHandler{
		newIntegration: cfg.NewIntegration,
		sessions:       cfg.Sessions,
		gate:           cfg.Gate,
		gatherer:       cfg.Gatherer,
		logger:         cfg.Logger,
	}
}

// Routes mounts every endpoint on r.
func (h *ECWHandler) Routes(r chi.Router) {
	r.Post("/sessions", h.CreateSession)
	r.Delete("/sessions/{sessionID}", h.DeleteSession)
	r.Get("/stats", h.Stats)

	r.Get("/facilities", h.GetFacilities)
	r.Get("/providers", h.GetProviders)
	r.Get("/providers/search", h.SearchProvider)
	r.Get("/reasons", h.GetReasons)
	r.Post("/appointments/list", h.ListAppointments)
	r.Post("/patients/search", h.SearchPatients)
	r.Post("/appointments", h.CreateAppointment)
	r.Get("/encounters/{encounterID}/progress-notes", h.GetProgressNotes)
	r.Post("/history/surgical-hospitalization", h.AddHistoryItems)
	r.Post("/history/family", h.AddFamilyHistoryNote)
	r.Post("/history/social", h.AddSocialHistoryNote)
	r.Get("/allergies/search", h.SearchAllergies)
	r.Post("/history/medical-allergies", h.UpdateMedHxAndAllergies)
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// CreateSession stores auth tokens and returns their id.
// POST /ecw/sessions
func (h *ECWHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		jsonError(w, "session store disabled", http.StatusServiceUnavailable)
		return
	}
	var auth ecw.AuthTokens
	if err := decodeBody(r, &auth); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := auth.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	id, err := h.sessions.Save(r.Context(), auth)
	if err != nil {
		h.logger.Error("failed to store portal session", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: id})
}

// DeleteSession forgets stored tokens.
// DELETE /ecw/sessions/{sessionID}
func (h *ECWHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if h.sessions == nil {
		jsonError(w, "session store disabled", http.StatusServiceUnavailable)
		return
	}
	err := h.sessions.Delete(r.Context(), chi.URLParam(r, "sessionID"))
	switch {
	case errors.Is(err, sessions.ErrNotFound):
		jsonError(w, "session not found", http.StatusNotFound)
	case err != nil:
		h.logger.Error("failed to delete portal session", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Stats reports portal call and flow counters since process start.
// GET /ecw/stats
func (h *ECWHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := metrics.Snapshot(h.gatherer)
	if err != nil {
		h.logger.Error("failed to read metrics", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetFacilities handles GET /ecw/facilities.
func (h *ECWHandler) GetFacilities(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.GetFacilities(ctx)
	})
}

// GetProviders handles GET /ecw/providers?page=N. page defaults to 1.
func (h *ECWHandler) GetProviders(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			jsonError(w, "page must be a positive integer", http.StatusBadRequest)
			return
		}
		page = n
	}
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.GetProviders(ctx, page)
	})
}

// SearchProvider handles GET /ecw/providers/search?name=.
func (h *ECWHandler) SearchProvider(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		jsonError(w, "name is required", http.StatusBadRequest)
		return
	}
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.GetProvider(ctx, name)
	})
}

// GetReasons handles GET /ecw/reasons.
func (h *ECWHandler) GetReasons(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.GetReasons(ctx)
	})
}

// ListAppointments handles POST /ecw/appointments/list.
func (h *ECWHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	var req ecw.GetAppointmentsRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.GetAppointments(ctx, req)
	})
}

// SearchPatients handles POST /ecw/patients/search.
func (h *ECWHandler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	var req ecw.GetPatientsRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.GetPatients(ctx, req)
	})
}

// CreateAppointment handles POST /ecw/appointments. An encounterId in the
// body updates that appointment instead.
func (h *ECWHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req ecw.AppointmentRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.CreateAppointment(ctx, req)
	})
}

// GetProgressNotes handles GET /ecw/encounters/{encounterID}/progress-notes.
func (h *ECWHandler) GetProgressNotes(w http.ResponseWriter, r *http.Request) {
	encounterID := chi.URLParam(r, "encounterID")
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.GetProgressNotes(ctx, encounterID)
	})
}

// AddHistoryItems handles POST /ecw/history/surgical-hospitalization.
func (h *ECWHandler) AddHistoryItems(w http.ResponseWriter, r *http.Request) {
	var req ecw.AddSurgicalAndHospitalizationItemsRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.AddSurgicalAndHospitalizationItems(ctx, req)
	})
}

// AddFamilyHistoryNote handles POST /ecw/history/family.
func (h *ECWHandler) AddFamilyHistoryNote(w http.ResponseWriter, r *http.Request) {
	var req ecw.AddHistoryNoteRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.AddFamilyHistoryNote(ctx, req)
	})
}

// AddSocialHistoryNote handles POST /ecw/history/social.
func (h *ECWHandler) AddSocialHistoryNote(w http.ResponseWriter, r *http.Request) {
	var req ecw.AddHistoryNoteRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.AddSocialHistoryNote(ctx, req)
	})
}

// SearchAllergies handles GET /ecw/allergies/search?q=&limit=.
func (h *ECWHandler) SearchAllergies(w http.ResponseWriter, r *http.Request) {
	req := ecw.AllergySearchRequest{
		SearchText: strings.TrimSpace(r.URL.Query().Get("q")),
		Limit:      r.URL.Query().Get("limit"),
	}
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.SearchAllergies(ctx, req)
	})
}

// UpdateMedHxAndAllergies handles POST /ecw/history/medical-allergies.
func (h *ECWHandler) UpdateMedHxAndAllergies(w http.ResponseWriter, r *http.Request) {
	var req ecw.UpdateMedHxAllergyRequest
	if !decodeOrReject(w, r, &req) {
		return
	}
	h.run(w, r, func(ctx context.Context, i *ecw.Integration) (any, error) {
		return i.UpdateMedHxAndAllergies(ctx, req)
	})
}

func decodeOrReject(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeBody(r, dst); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// run resolves the caller's portal session, claims it, opens an integration
// and writes the flow's result. Stored and raw-header requests for the same
// session DID share one claim.
func (h *ECWHandler) run(w http.ResponseWriter, r *http.Request, flow func(context.Context, *ecw.Integration) (any, error)) {
	auth, status, err := h.resolveAuth(r)
	if err != nil {
		jsonError(w, err.Error(), status)
		return
	}
	sessionDID := strings.TrimSpace(auth.SessionDID)
	if !h.gate.Acquire(sessionDID) {
		jsonError(w, "portal session busy", http.StatusTooManyRequests)
		return
	}
	defer h.gate.Release(sessionDID)
	integration, err := h.newIntegration(auth)
	if err != nil {
		h.logger.Error("failed to open portal integration", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer integration.Close()

	result, err := flow(r.Context(), integration)
	if err != nil {
		h.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ECWHandler) resolveAuth(r *http.Request) (ecw.AuthTokens, int, error) {
	if id := strings.TrimSpace(r.Header.Get(middleware.SessionHeader)); id != "" {
		if h.sessions == nil {
			return ecw.AuthTokens{}, http.StatusBadRequest, errors.New("session store disabled; send portal token headers")
		}
		auth, err := h.sessions.Load(r.Context(), id)
		if errors.Is(err, sessions.ErrNotFound) {
			return ecw.AuthTokens{}, http.StatusUnauthorized, errors.New("portal session expired or unknown")
		}
		if err != nil {
			h.logger.Error("failed to load portal session", "error", err)
			return ecw.AuthTokens{}, http.StatusInternalServerError, errors.New("internal error")
		}
		return auth, 0, nil
	}

	auth := ecw.AuthTokens{
		SessionDID: r.Header.Get(middleware.SessionDIDHeader),
		TrUserID:   r.Header.Get(middleware.UserIDHeader),
		CSRFToken:  r.Header.Get(middleware.CSRFHeader),
		Cookie:     r.Header.Get(middleware.CookieHeader),
		ClientIP:   r.Header.Get(middleware.ClientIPHeader),
	}
	if err := auth.Validate(); err != nil {
		return ecw.AuthTokens{}, http.StatusUnauthorized, err
	}
	return auth, 0, nil
}

type validationErrorResponse struct {
	Error  string           `json:"error"`
	Fields []ecw.FieldError `json:"fields"`
}

type notFoundResponse struct {
	Error  string `json:"error"`
	Entity string `json:"entity"`
	Name   string `json:"name,omitempty"`
}

func (h *ECWHandler) writeFlowError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		valErr *ecw.ValidationError
		nfErr  *ecw.NotFoundError
		apiErr *ecw.APIError
		urlErr *url.Error
	)
	switch {
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusUnprocessableEntity, validationErrorResponse{Error: "invalid request", Fields: valErr.Fields})
	case errors.As(err, &nfErr):
		writeJSON(w, http.StatusNotFound, notFoundResponse{Error: nfErr.Error(), Entity: nfErr.Entity, Name: nfErr.Name})
	case errors.As(err, &apiErr):
		writeJSON(w, apiStatus(apiErr), apiErr.Response())
	case errors.Is(err, context.DeadlineExceeded):
		jsonError(w, "portal request timed out", http.StatusGatewayTimeout)
	case errors.As(err, &urlErr):
		h.logger.Warn("portal unreachable", "path", r.URL.Path, "caller", callerSubject(r), "error", err)
		jsonError(w, "portal unreachable", http.StatusBadGateway)
	default:
		h.logger.Error("portal flow failed", "path", r.URL.Path, "caller", callerSubject(r), "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// apiStatus is the status an APIError is written with. Portal statuses that
// cannot carry an error body (1xx, 2xx, 3xx) become 502; the body keeps the
// portal's status.
func apiStatus(apiErr *ecw.APIError) int {
	if apiErr.StatusCode >= 400 && apiErr.StatusCode <= 599 {
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}

// callerSubject is the API caller's JWT subject, empty when auth is disabled.
func callerSubject(r *http.Request) string {
	claims, ok := middleware.CallerClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject
}
