package ecw

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// UpstreamStatus replaces every portal 5xx so callers see one code for
// "the portal failed" regardless of what the vendor returned.
const UpstreamStatus = http.StatusNotImplemented

// ErrSessionClosed is returned when a Session is used after its flow released it.
var ErrSessionClosed = errors.New("ecw: session closed")

// ParseError is the value produced when a response body could not be decoded.
// On a 2xx response it is returned as the payload, not as an error.
type ParseError struct {
	Message string
	Raw     string
	Decoder string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ecw: %s (%s decoder: %v)", e.Message, e.Decoder, e.Err)
	}
	return "ecw: " + e.Message
}

func (e *ParseError) Unwrap() error { return e.Err }

// MarshalJSON renders the error in the shape callers already consume:
// {"error": {"message": "Parsing error", "raw": "..."}}.
func (e *ParseError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"error": map[string]any{
			"message": e.Message,
			"raw":     e.Raw,
		},
	})
}

// ErrorKind classifies a non-2xx portal response.
type ErrorKind int

const (
	// KindClient is a 4xx from the portal, surfaced with its original status.
	KindClient ErrorKind = iota + 1
	// KindUpstream is a portal 5xx, surfaced as UpstreamStatus.
	KindUpstream
	// KindGeneric is any other non-2xx status.
	KindGeneric
)

func (k ErrorKind) String() string {
	switch k {
	case KindClient:
		return "client_error"
	case KindUpstream:
		return "upstream_error"
	case KindGeneric:
		return "generic_error"
	default:
		return "unknown"
	}
}

// APIError is a portal response whose status was not 2xx.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Code       string
	// Detail holds the parsed body for client errors.
	Detail any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ecw: %s: %s (status %d, code %s)", e.Kind, e.Message, e.StatusCode, e.Code)
}

// ErrorResponse is the structured error object returned to callers.
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	ErrorCode  string `json:"error_code"`
	Detail     any    `json:"detail,omitempty"`
}

// Response converts the error into the caller-facing error object.
func (e *APIError) Response() ErrorResponse {
	return ErrorResponse{
		StatusCode: e.StatusCode,
		Message:    e.Message,
		ErrorCode:  e.Code,
		Detail:     e.Detail,
	}
}

// NotFoundError is returned when a named lookup (patient, facility, provider,
// resource, reason, visit type) has no match. Flows abort on it.
type NotFoundError struct {
	Entity string
	Name   string
}

func (e *NotFoundError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Name)
}

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
