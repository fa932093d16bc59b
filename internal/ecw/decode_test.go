package ecw

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySelectsXMLForXMLMarkers(t *testing.T) {
	bodies := []string{
		`<?xml version="1.0"?><root><a>1</a></root>`,
		`<root><a>1</a></root>`,
		`  <Envelope><Body><ok>true</ok></Body></Envelope>`,
		// Malformed XML must still go to the XML decoder, never JSON or HTML.
		`<root>{"a":1}`,
		`<?xml version="1.0"?><html><body>x</body></html>`,
	}
	for _, body := range bodies {
		_, decoder, _ := Classify(body)
		assert.Equal(t, DecoderXML, decoder, body)
	}
}

func TestClassifyDecoderSelection(t *testing.T) {
	tests := []struct {
		body    string
		decoder string
	}{
		{`<HTML><body><p>note</p></body></HTML>`, DecoderHTML},
		{`<!DOCTYPE html><html><body><p>note</p></body></html>`, DecoderHTML},
		{`{"ok":true}`, DecoderJSON},
		{`true`, DecoderText},
		{``, DecoderText},
		{`[1,2]`, DecoderText},
	}
	for _, tt := range tests {
		_, decoder, _ := Classify(tt.body)
		assert.Equal(t, tt.decoder, decoder, tt.body)
	}
}

func TestClassifyPassthroughReturnsBodyUnchanged(t *testing.T) {
	for _, body := range []string{"true", "false", "", "  saved  "} {
		payload, _, perr := Classify(body)
		require.Nil(t, perr)
		assert.Equal(t, body, payload)
	}
}

func TestClassifyParseErrorKeepsRawBody(t *testing.T) {
	bodies := []string{
		`<?xml version="1.0"?><root><a></root>`,
		"  <root><open>\n",
		`{"unterminated": `,
		`{"a":1} trailing`,
		`<html><body><script>var x;</script></body></html>`,
	}
	for _, body := range bodies {
		payload, _, perr := Classify(body)
		require.NotNil(t, perr, body)
		assert.Nil(t, payload)
		assert.Equal(t, body, perr.Raw)
		assert.Equal(t, "Parsing error", perr.Message)
	}
}

func TestClassifyJSONKeepsNumbers(t *testing.T) {
	payload, _, perr := Classify(`{"count": 12, "items": [{"id": 7}]}`)
	require.Nil(t, perr)
	m := payload.(map[string]any)
	assert.Equal(t, json.Number("12"), m["count"])
	assert.Equal(t, "7", field(records(m, "items")[0], "id"))
}

func TestNormalizeParseFailureOn2xxIsNotAnError(t *testing.T) {
	for _, status := range []int{200, 201, 204, 299} {
		payload, err := Normalize(status, `<root><broken>`)
		require.NoError(t, err)
		perr, ok := payload.(*ParseError)
		require.True(t, ok)
		assert.Equal(t, `<root><broken>`, perr.Raw)
	}
}

func TestNormalizeClientErrorKeepsStatus(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 422, 499} {
		_, err := Normalize(status, `{"error":{"message":"bad input","code":"E12"}}`)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, KindClient, apiErr.Kind)
		assert.Equal(t, status, apiErr.StatusCode)
		assert.Equal(t, "bad input", apiErr.Message)
		assert.Equal(t, "E12", apiErr.Code)
		assert.NotNil(t, apiErr.Detail)
	}
}

func TestNormalizeServerErrorIsTranslated(t *testing.T) {
	for _, status := range []int{500, 502, 503, 504, 599} {
		_, err := Normalize(status, `<html><body><p>Service Unavailable</p></body></html>`)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, KindUpstream, apiErr.Kind)
		assert.Equal(t, http.StatusNotImplemented, apiErr.StatusCode)
		assert.NotEqual(t, status, apiErr.StatusCode)
	}
}

func TestNormalizeServerErrorMessage(t *testing.T) {
	_, err := Normalize(503, `{"error":{"message":"maintenance","code":"M1"}}`)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Downstream server error (translated to HTTP 501): maintenance", apiErr.Message)
	assert.Equal(t, "M1", apiErr.Code)

	_, err = Normalize(500, "")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Downstream server error (translated to HTTP 501): Unknown error", apiErr.Message)
	assert.Equal(t, "500", apiErr.Code)
}

func TestNormalizeOtherStatusIsGeneric(t *testing.T) {
	_, err := Normalize(302, "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, KindGeneric, apiErr.Kind)
	assert.Equal(t, 302, apiErr.StatusCode)
	assert.Equal(t, "Unknown error (HTTP 302)", apiErr.Message)
	assert.Equal(t, "302", apiErr.Code)
}

func TestNormalizeParseFailureOnErrorStatus(t *testing.T) {
	_, err := Normalize(400, `{"broken"`)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Parsing error", apiErr.Message)
	perr, ok := apiErr.Detail.(*ParseError)
	require.True(t, ok)
	assert.Equal(t, `{"broken"`, perr.Raw)
}

func TestParseErrorJSONShape(t *testing.T) {
	perr := &ParseError{Message: "Parsing error", Raw: "<root>", Decoder: DecoderXML}
	b, err := json.Marshal(perr)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":{"message":"Parsing error","raw":"<root>"}}`, string(b))
}

func TestAPIErrorResponse(t *testing.T) {
	apiErr := &APIError{Kind: KindUpstream, StatusCode: 501, Message: "down", Code: "500"}
	b, err := json.Marshal(apiErr.Response())
	require.NoError(t, err)
	assert.JSONEq(t, `{"status_code":501,"message":"down","error_code":"500"}`, string(b))
}

func TestNotFoundError(t *testing.T) {
	err := error(&NotFoundError{Entity: "Provider", Name: "Dr Who"})
	assert.True(t, IsNotFound(err))
	assert.EqualError(t, err, "Provider not found: Dr Who")
	assert.False(t, IsNotFound(errors.New("other")))
}
