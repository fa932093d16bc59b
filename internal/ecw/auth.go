// Package ecw drives the eClinicalWorks web portal's internal AJAX and form
// endpoints the same way the portal's own browser UI does, and normalizes the
// portal's XML, HTML, JSON and plain-text responses into one result shape.
package ecw

import (
	"errors"
	"strings"
)

// AuthTokens is the material produced by the portal login flow. It is read
// to fill URL templates and headers and never modified.
type AuthTokens struct {
	SessionDID string `json:"session_did"`
	TrUserID   string `json:"tr_user_id"`
	CSRFToken  string `json:"csrf_token"`
	Cookie     string `json:"cookie"`
	ClientIP   string `json:"client_ip,omitempty"`
}

// Validate reports the first missing required field.
func (a AuthTokens) Validate() error {
	switch {
	case strings.TrimSpace(a.SessionDID) == "":
		return errors.New("ecw: session DID is required")
	case strings.TrimSpace(a.TrUserID) == "":
		return errors.New("ecw: TrUserId is required")
	case strings.TrimSpace(a.CSRFToken) == "":
		return errors.New("ecw: csrf token is required")
	case strings.TrimSpace(a.Cookie) == "":
		return errors.New("ecw: cookie is required")
	}
	return nil
}
