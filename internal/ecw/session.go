package ecw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/ecw-bridge/internal/observability/metrics"
	"github.com/wolfman30/ecw-bridge/pkg/logging"
)

var sessionTracer = otel.Tracer("ecw.internal.ecw.session")

// secChUA matches the Chrome build in the default user agent.
const secChUA = `"Chromium";v="134", "Not:A-Brand";v="24", "Google Chrome";v="134"`

const formContentType = "application/x-www-form-urlencoded; charset=UTF-8"

// Call is one outbound portal request.
type Call struct {
	// Operation names the call for logs and metrics, usually an endpoint key.
	Operation string
	Method    string
	URL       string
	Header    http.Header
	Body      string
	// Tolerant marks a call whose failure the flow recovers from; the
	// session stays open when it fails.
	Tolerant bool
}

// Requester is an externally owned transport. When a Session is built with
// one, calls are handed to it verbatim and its result is returned as is.
type Requester interface {
	Do(ctx context.Context, call Call) (any, error)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Auth      AuthTokens
	Catalog   *Catalog
	UserAgent string
	// Timeout bounds each call. Zero leaves deadlines to the caller's context.
	Timeout   time.Duration
	Requester Requester
	Logger    *logging.Logger
	Metrics   *metrics.PortalMetrics
	Now       func() time.Time
}

// Session issues authenticated portal calls for one AuthTokens value. It owns
// a private connection pool that Close releases; a closed Session rejects
// further calls. Sessions backed by a Requester are shared and never close.
type Session struct {
	auth      AuthTokens
	catalog   *Catalog
	userAgent string
	requester Requester
	transport *http.Transport
	client    *http.Client
	logger    *logging.Logger
	metrics   *metrics.PortalMetrics
	now       func() time.Time
	closed    atomic.Bool
}

// NewSession validates cfg and opens a session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if err := cfg.Auth.Validate(); err != nil {
		return nil, err
	}
	if cfg.Catalog == nil {
		return nil, errors.New("ecw: endpoint catalog is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	s := &Session{
		auth:      cfg.Auth,
		catalog:   cfg.Catalog,
		userAgent: userAgent,
		requester: cfg.Requester,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Now,
	}
	if s.requester == nil {
		s.transport = http.DefaultTransport.(*http.Transport).Clone()
		s.client = &http.Client{Transport: s.transport, Timeout: cfg.Timeout}
	}
	return s, nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36"

// Do issues call and returns the normalized payload. A non-2xx status or a
// transport failure releases the session before the error is returned,
// unless the call is Tolerant.
func (s *Session) Do(ctx context.Context, call Call) (any, error) {
	ctx, span := sessionTracer.Start(ctx, "ecw.portal.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("ecw.operation", call.Operation),
		attribute.String("http.method", call.Method),
	)

	start := time.Now()
	if s.requester != nil {
		payload, err := s.requester.Do(ctx, call)
		s.observe(call.Operation, outcomeOf(err), start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "requester failed")
		}
		return payload, err
	}

	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	status, body, err := s.roundTrip(ctx, call)
	if err != nil {
		s.release(call)
		s.observe(call.Operation, "transport_error", start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failed")
		return nil, fmt.Errorf("ecw: %s request failed: %w", call.Operation, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	payload, decoder, perr := Classify(body)
	if perr != nil {
		s.metrics.ObserveParseError(decoder)
		s.logger.Warn("ecw: response parsing failed",
			"operation", call.Operation,
			"decoder", decoder,
			"error", perr.Err,
		)
		payload = perr
	}

	result, err := applyStatus(status, payload)
	if err != nil {
		s.release(call)
		s.observe(call.Operation, outcomeOf(err), start)
		s.logger.Debug("ecw: portal returned error status",
			"operation", call.Operation,
			"status", status,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "portal error status")
		return nil, err
	}

	outcome := "ok"
	if perr != nil {
		outcome = "parse_error"
	}
	s.observe(call.Operation, outcome, start)
	return result, nil
}

func (s *Session) roundTrip(ctx context.Context, call Call) (int, string, error) {
	var body io.Reader
	if call.Body != "" {
		body = strings.NewReader(call.Body)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	s.logger.Debug("ecw: portal call",
		"operation", call.Operation,
		"method", call.Method,
		"path", req.URL.Path,
	)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, responseText(raw, resp.Header.Get("Content-Type")), nil
}

// Close releases the connection pool. It is idempotent and a no-op for
// Requester-backed sessions.
func (s *Session) Close() {
	if s.requester != nil {
		return
	}
	if s.closed.CompareAndSwap(false, true) {
		s.transport.CloseIdleConnections()
		s.logger.Debug("ecw: closed portal session")
	}
}

func (s *Session) release(call Call) {
	if !call.Tolerant {
		s.Close()
	}
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Auth returns the session's tokens.
func (s *Session) Auth() AuthTokens { return s.auth }

// Catalog returns the endpoint catalog the session renders URLs from.
func (s *Session) Catalog() *Catalog { return s.catalog }

// Timestamp is the portal's cache-busting millisecond clock.
func (s *Session) Timestamp() int64 {
	return s.now().UnixMilli()
}

// URL renders key with the session placeholders filled in. Entries in extra
// are added to, or override, the session values.
func (s *Session) URL(key string, extra map[string]string) (string, error) {
	values := map[string]string{
		"sessionDID":     s.auth.SessionDID,
		"TrUserId":       s.auth.TrUserID,
		"timestamp":      strconv.FormatInt(s.Timestamp(), 10),
		"clientTimezone": ClientTimezone,
	}
	for k, v := range extra {
		values[k] = v
	}
	return s.catalog.URL(key, values)
}

// Headers returns the browser header set every portal call carries.
func (s *Session) Headers(contentType string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", s.userAgent)
	h.Set("Cookie", s.auth.Cookie)
	h.Set("Sec-Ch-Ua", secChUA)
	h.Set("X-Csrf-Token", s.auth.CSRFToken)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	if s.auth.ClientIP != "" {
		h.Set("X-Forwarded-For", s.auth.ClientIP)
	}
	return h
}

// WriteHeaders extends Headers with the same-origin and AJAX markers the
// portal requires on form writes.
func (s *Session) WriteHeaders() http.Header {
	h := s.Headers(formContentType)
	base := s.catalog.BaseURL()
	h.Set("Origin", base)
	h.Set("Referer", base+"/mobiledoc/jsp/webemr/index.jsp")
	h.Set("X-Requested-With", "XMLHttpRequest")
	h.Set("isajaxrequest", "true")
	return h
}

// portalQuery is the session block appended to data-set query strings.
func (s *Session) portalQuery(timestamp int64) PortalQuery {
	return PortalQuery{
		SessionDID:     s.auth.SessionDID,
		TrUserID:       s.auth.TrUserID,
		Device:         "webemr",
		ProcessID:      "0",
		Timestamp:      timestamp,
		ClientTimezone: ClientTimezone,
	}
}

func (s *Session) observe(operation, outcome string, start time.Time) {
	s.metrics.ObserveCall(operation, outcome, time.Since(start).Seconds())
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind.String()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "transport_error"
	}
	return "error"
}
