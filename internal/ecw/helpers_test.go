package ecw

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/ecw-bridge/pkg/logging"
)

var testAuth = AuthTokens{
	SessionDID: "sess-123",
	TrUserID:   "42",
	CSRFToken:  "csrf-abc",
	Cookie:     "JSESSIONID=xyz",
}

var testNow = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

func fixedNow() time.Time { return testNow }

type recordedCall struct {
	Method string
	Path   string
	Query  url.Values
	Body   string
	Form   url.Values
	Header http.Header
}

type portalRoute struct {
	status int
	body   string
}

// fakePortal serves canned bodies by URL path and records every request.
type fakePortal struct {
	*httptest.Server

	mu     sync.Mutex
	calls  []recordedCall
	routes map[string]portalRoute
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	p := &fakePortal{routes: map[string]portalRoute{}}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Close)
	return p
}

func (p *fakePortal) serve(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(raw))

	p.mu.Lock()
	p.calls = append(p.calls, recordedCall{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Body:   string(raw),
		Form:   form,
		Header: r.Header.Clone(),
	})
	route, ok := p.routes[r.URL.Path]
	p.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"no route","code":"E404"}}`))
		return
	}
	w.WriteHeader(route.status)
	_, _ = w.Write([]byte(route.body))
}

// on registers a reply for path. path is relative to /mobiledoc/jsp/.
func (p *fakePortal) on(path string, status int, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes["/mobiledoc/jsp/"+path] = portalRoute{status: status, body: body}
}

func (p *fakePortal) callsTo(path string) []recordedCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []recordedCall
	for _, c := range p.calls {
		if c.Path == "/mobiledoc/jsp/"+path {
			out = append(out, c)
		}
	}
	return out
}

func (p *fakePortal) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func newTestIntegration(t *testing.T, p *fakePortal, opts ...Option) *Integration {
	t.Helper()
	i, err := New(Config{
		Auth:    testAuth,
		BaseURL: p.URL,
		Logger:  logging.Discard(),
		Now:     fixedNow,
	}, opts...)
	require.NoError(t, err)
	return i
}

func newTestSession(t *testing.T, baseURL string) *Session {
	t.Helper()
	catalog, err := DefaultCatalog(baseURL)
	require.NoError(t, err)
	s, err := NewSession(SessionConfig{
		Auth:    testAuth,
		Catalog: catalog,
		Logger:  logging.Discard(),
		Now:     fixedNow,
	})
	require.NoError(t, err)
	return s
}

// batchEntries decodes the x field of a recorded batch call.
func batchEntries(t *testing.T, c recordedCall) []BatchEntry {
	t.Helper()
	var entries []BatchEntry
	require.NoError(t, json.Unmarshal([]byte(c.Form.Get("x")), &entries))
	return entries
}

func entryQuery(t *testing.T, e BatchEntry) url.Values {
	t.Helper()
	_, query, ok := strings.Cut(e.URL, "?")
	require.True(t, ok, "entry url has no query: %s", e.URL)
	values, err := url.ParseQuery(query)
	require.NoError(t, err)
	return values
}

const (
	facilitiesXML = `<?xml version="1.0" encoding="UTF-8"?>
<facilities>
  <facility><Id>7</Id><Name>Main Street Clinic</Name><POS>11</POS></facility>
  <facility><Id>9</Id><Name>Uptown Surgery Center</Name><POS>24</POS></facility>
</facilities>`

	providerJSON = `{"result":[{"id":"501","name":"Smith, John"}]}`

	reasonsXML = `<?xml version="1.0"?><root><reasons><reason><name>Annual Exam</name></reason><reason><name>Knee Pain</name></reason></reasons></root>`

	patientsJSON = `{"patients":[{"id":"3001","name":"DOE, JANE"}]}`
)
