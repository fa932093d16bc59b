package ecw

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// BatchParam is one form field of a queued call.
type BatchParam struct {
	Name  string `json:"paramName"`
	Value string `json:"paramValue"`
}

// BatchEntry is one queued call: a portal-relative URL and its form data.
type BatchEntry struct {
	URL    string         `json:"url"`
	Params []BatchParam   `json:"param"`
	Args   map[string]any `json:"args"`
}

// BatchEnvelope queues portal writes that are submitted together through the
// batch endpoint. The portal runs entries in order, so a section's data-set
// call must be added before its changed flag. The portal's reply is not
// broken down per entry; a 2xx on the outer call does not prove that every
// entry was applied.
type BatchEnvelope struct {
	entries []BatchEntry
}

// Add queues url with fragment as its FormData parameter.
func (b *BatchEnvelope) Add(url, fragment string) {
	b.entries = append(b.entries, BatchEntry{
		URL:    url,
		Params: []BatchParam{{Name: "FormData", Value: fragment}},
		Args:   map[string]any{},
	})
}

func (b *BatchEnvelope) Len() int { return len(b.entries) }

// Encode renders the outer form body: _csrf plus the JSON entry list as x.
func (b *BatchEnvelope) Encode(csrf string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	entries := b.entries
	if entries == nil {
		entries = []BatchEntry{}
	}
	if err := enc.Encode(entries); err != nil {
		return "", fmt.Errorf("ecw: encode batch: %w", err)
	}
	return url.Values{
		"_csrf": {csrf},
		"x":     {strings.TrimSuffix(buf.String(), "\n")},
	}.Encode(), nil
}
