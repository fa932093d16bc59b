package ecw

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Decoder names, also used as metric labels.
const (
	DecoderXML  = "xml"
	DecoderHTML = "html"
	DecoderJSON = "json"
	DecoderText = "text"
)

const parseErrorMessage = "Parsing error"

type bodyDecoder struct {
	name   string
	match  func(trimmed string) bool
	decode func(trimmed string) (any, error)
}

// Evaluated in order; the first matching predicate owns the body.
var bodyDecoders = []bodyDecoder{
	{name: DecoderXML, match: looksLikeXML, decode: decodeXML},
	{name: DecoderHTML, match: looksLikeHTML, decode: decodeHTMLNote},
	{name: DecoderJSON, match: looksLikeJSON, decode: decodeJSON},
}

var xmlMarkers = []string{"<?xml", "<root", "<Envelope"}

func looksLikeXML(s string) bool {
	for _, m := range xmlMarkers {
		if strings.HasPrefix(s, m) {
			return true
		}
	}
	return false
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(s[:min(len(s), 16)])
	return strings.HasPrefix(head, "<html") || strings.HasPrefix(head, "<!doctype html")
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{")
}

// Classify selects a decoder from the leading characters of body and runs it.
// Bodies no decoder claims are returned unchanged. A decoder failure yields a
// *ParseError carrying body verbatim; the underlying error never escapes.
func Classify(body string) (payload any, decoder string, perr *ParseError) {
	trimmed := strings.TrimSpace(body)
	for _, d := range bodyDecoders {
		if !d.match(trimmed) {
			continue
		}
		v, err := d.decode(trimmed)
		if err != nil {
			return nil, d.name, &ParseError{Message: parseErrorMessage, Raw: body, Decoder: d.name, Err: err}
		}
		return v, d.name, nil
	}
	return body, DecoderText, nil
}

// Normalize turns a raw status and body into a payload or an error, applying
// the status policy after decoding.
func Normalize(status int, body string) (any, error) {
	payload, _, perr := Classify(body)
	if perr != nil {
		payload = perr
	}
	return applyStatus(status, payload)
}

func applyStatus(status int, payload any) (any, error) {
	if status >= 200 && status < 300 {
		return payload, nil
	}

	message, code := errorFields(payload, status)
	switch {
	case status >= 400 && status < 500:
		return nil, &APIError{
			Kind:       KindClient,
			StatusCode: status,
			Message:    message,
			Code:       code,
			Detail:     payload,
		}
	case status >= 500:
		return nil, &APIError{
			Kind:       KindUpstream,
			StatusCode: UpstreamStatus,
			Message:    fmt.Sprintf("Downstream server error (translated to HTTP %d): %s", UpstreamStatus, message),
			Code:       code,
		}
	default:
		return nil, &APIError{
			Kind:       KindGeneric,
			StatusCode: status,
			Message:    fmt.Sprintf("%s (HTTP %d)", message, status),
			Code:       code,
		}
	}
}

// errorFields pulls error.message and error.code out of a decoded body.
func errorFields(payload any, status int) (message, code string) {
	message, code = "Unknown error", strconv.Itoa(status)

	if perr, ok := payload.(*ParseError); ok {
		return perr.Message, code
	}
	m, ok := payload.(map[string]any)
	if !ok {
		return message, code
	}
	errObj, ok := m["error"].(map[string]any)
	if !ok {
		return message, code
	}
	if v := stringValue(errObj["message"]); v != "" {
		message = v
	}
	if v := stringValue(errObj["code"]); v != "" {
		code = v
	}
	return message, code
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}
