package middleware

// Portal session headers. Callers either reference a stored session with
// SessionHeader or pass the raw tokens.
const (
	SessionHeader    = "X-ECW-Session"
	SessionDIDHeader = "X-ECW-Session-DID"
	UserIDHeader     = "X-ECW-User-ID"
	CSRFHeader       = "X-CSRF-Token"
	CookieHeader     = "X-ECW-Cookie"
	ClientIPHeader   = "X-ECW-Client-IP"
)
