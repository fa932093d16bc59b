package ecw

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/ecw-bridge/internal/observability/metrics"
	"github.com/wolfman30/ecw-bridge/pkg/logging"
)

var integrationTracer = otel.Tracer("ecw.internal.ecw.integration")

// Config holds configuration for an Integration.
type Config struct {
	Auth AuthTokens
	// Catalog defaults to DefaultCatalog(BaseURL).
	Catalog   *Catalog
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Requester Requester
	Logger    *logging.Logger
	Metrics   *metrics.PortalMetrics
	Now       func() time.Time
}

// Integration runs the portal flows for one set of auth tokens. Every public
// method is one flow: its calls run in sequence and the session is released
// when it returns, so an Integration serves exactly one flow unless it was
// built with a shared Requester.
type Integration struct {
	session    *Session
	logger     *logging.Logger
	metrics    *metrics.PortalMetrics
	validator  *RequestValidator
	visitTypes []VisitType
	dryRun     bool
}

// Option configures an Integration.
type Option func(*Integration)

// WithDryRun logs portal writes and answers them locally instead of sending
// them. Lookups still reach the portal.
func WithDryRun(dryRun bool) Option {
	return func(i *Integration) {
		i.dryRun = dryRun
	}
}

// WithVisitTypes replaces the visit-type table.
func WithVisitTypes(types []VisitType) Option {
	return func(i *Integration) {
		if len(types) > 0 {
			i.visitTypes = types
		}
	}
}

// New opens a session for cfg.Auth.
func New(cfg Config, opts ...Option) (*Integration, error) {
	catalog := cfg.Catalog
	if catalog == nil {
		c, err := DefaultCatalog(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With("integration", "ecw")

	session, err := NewSession(SessionConfig{
		Auth:      cfg.Auth,
		Catalog:   catalog,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		Requester: cfg.Requester,
		Logger:    logger,
		Metrics:   cfg.Metrics,
		Now:       cfg.Now,
	})
	if err != nil {
		return nil, err
	}

	i := &Integration{
		session:    session,
		logger:     logger,
		metrics:    cfg.Metrics,
		validator:  NewRequestValidator(),
		visitTypes: DefaultVisitTypes,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Session exposes the underlying portal session.
func (i *Integration) Session() *Session { return i.session }

// Close releases the session without running a flow.
func (i *Integration) Close() { i.session.Close() }

// begin starts a flow. The returned func must be deferred with the flow's
// error; it records the outcome and releases the session.
func (i *Integration) begin(ctx context.Context, flow string) (context.Context, func(*error)) {
	ctx, span := integrationTracer.Start(ctx, "ecw."+flow)
	span.SetAttributes(attribute.String("ecw.flow", flow))
	return ctx, func(errp *error) {
		outcome := "ok"
		if err := *errp; err != nil {
			outcome = flowOutcome(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			i.logger.Debug("ecw: flow failed", "flow", flow, "outcome", outcome, "error", err)
		}
		i.metrics.ObserveFlow(flow, outcome)
		i.session.Close()
		span.End()
	}
}

func flowOutcome(err error) string {
	var (
		apiErr *APIError
		valErr *ValidationError
	)
	switch {
	case IsNotFound(err):
		return "not_found"
	case errors.As(err, &valErr):
		return "invalid_request"
	case errors.As(err, &apiErr):
		return apiErr.Kind.String()
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	default:
		return "error"
	}
}

func (i *Integration) get(ctx context.Context, op, u string) (any, error) {
	return i.session.Do(ctx, Call{Operation: op, Method: http.MethodGet, URL: u, Header: i.session.Headers("")})
}

func (i *Integration) post(ctx context.Context, op, u string, header http.Header, body string) (any, error) {
	return i.session.Do(ctx, Call{Operation: op, Method: http.MethodPost, URL: u, Header: header, Body: body})
}

// write posts a state-changing call, or answers it locally in dry-run mode.
func (i *Integration) write(ctx context.Context, op, u string, header http.Header, body string) (any, error) {
	if i.dryRun {
		i.logger.Info("ecw: dry run, portal write skipped", "operation", op, "body_bytes", len(body))
		return map[string]any{"status": "dry_run", "operation": op}, nil
	}
	return i.post(ctx, op, u, header, body)
}

// queryURL renders a placeholder-free endpoint with a schema-tagged query.
func (i *Integration) queryURL(key string, query any) (string, error) {
	values, err := encodeForm(query)
	if err != nil {
		return "", err
	}
	return i.session.Catalog().URLWithQuery(key, values)
}

// queryPath is queryURL relative to the portal origin, as batch entries need.
func (i *Integration) queryPath(key string, query any) (string, error) {
	values, err := encodeForm(query)
	if err != nil {
		return "", err
	}
	return i.session.Catalog().PathWithQuery(key, values)
}

func (i *Integration) submitBatch(ctx context.Context, batch *BatchEnvelope) (any, error) {
	body, err := batch.Encode(i.session.Auth().CSRFToken)
	if err != nil {
		return nil, err
	}
	u, err := i.session.Catalog().URL(EndpointBatch, nil)
	if err != nil {
		return nil, err
	}
	i.logger.Debug("ecw: submitting batch", "entries", batch.Len())
	return i.write(ctx, EndpointBatch, u, i.session.WriteHeaders(), body)
}

// GetFacilities lists the practice's facilities.
func (i *Integration) GetFacilities(ctx context.Context) (_ any, err error) {
	ctx, end := i.begin(ctx, "get_facilities")
	defer end(&err)
	return i.fetchFacilities(ctx)
}

// GetProviders lists one page of providers.
func (i *Integration) GetProviders(ctx context.Context, page int) (_ any, err error) {
	ctx, end := i.begin(ctx, "get_providers")
	defer end(&err)

	i.logger.Debug("ecw: fetching providers", "page", page)
	u, err := i.session.URL(EndpointProviders, map[string]string{"page": strconv.Itoa(page)})
	if err != nil {
		return nil, err
	}
	return i.post(ctx, EndpointProviders, u, i.session.Headers(""), "")
}

// GetProvider searches providers by name.
func (i *Integration) GetProvider(ctx context.Context, name string) (_ any, err error) {
	ctx, end := i.begin(ctx, "get_provider")
	defer end(&err)
	return i.fetchProvider(ctx, name)
}

// GetReasons lists the configured visit reasons.
func (i *Integration) GetReasons(ctx context.Context) (_ any, err error) {
	ctx, end := i.begin(ctx, "get_reasons")
	defer end(&err)
	return i.fetchReasons(ctx)
}

// GetAppointments lists office visits for a day.
func (i *Integration) GetAppointments(ctx context.Context, req GetAppointmentsRequest) (_ any, err error) {
	ctx, end := i.begin(ctx, "get_appointments")
	defer end(&err)

	if err := i.validator.Validate(req); err != nil {
		return nil, err
	}
	req = req.withDefaults(i.session.now())
	i.logger.Debug("ecw: fetching appointments", "date", req.EDate, "max_count", req.MaxCount)

	values, err := encodeForm(newAppointmentsForm(req))
	if err != nil {
		return nil, err
	}
	u, err := i.session.URL(EndpointAppointments, nil)
	if err != nil {
		return nil, err
	}
	return i.post(ctx, EndpointAppointments, u, i.session.Headers(formContentType), values.Encode())
}

// GetPatients searches active patients by name.
func (i *Integration) GetPatients(ctx context.Context, req GetPatientsRequest) (_ any, err error) {
	ctx, end := i.begin(ctx, "get_patients")
	defer end(&err)

	if err := i.validator.Validate(req); err != nil {
		return nil, err
	}
	return i.fetchPatients(ctx, req.withDefaults())
}

func (i *Integration) fetchFacilities(ctx context.Context) (any, error) {
	u, err := i.session.URL(EndpointFacilities, nil)
	if err != nil {
		return nil, err
	}
	return i.get(ctx, EndpointFacilities, u)
}

func (i *Integration) fetchProvider(ctx context.Context, name string) (any, error) {
	i.logger.Debug("ecw: looking up provider", "provider", name)
	u, err := i.session.URL(EndpointProviderSearch, map[string]string{"provider": strings.ToLower(strings.TrimSpace(name))})
	if err != nil {
		return nil, err
	}
	return i.post(ctx, EndpointProviderSearch, u, i.session.Headers(""), "")
}

func (i *Integration) fetchReasons(ctx context.Context) (any, error) {
	u, err := i.session.URL(EndpointReasons, nil)
	if err != nil {
		return nil, err
	}
	return i.get(ctx, EndpointReasons, u)
}

func (i *Integration) fetchPatients(ctx context.Context, req GetPatientsRequest) (any, error) {
	i.logger.Debug("ecw: searching patients", "has_first_name", req.FirstName != "")
	values, err := encodeForm(newPatientSearchForm(req))
	if err != nil {
		return nil, err
	}
	u, err := i.session.URL(EndpointPatients, nil)
	if err != nil {
		return nil, err
	}
	return i.post(ctx, EndpointPatients, u, i.session.Headers(formContentType), values.Encode())
}
