package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// PortalHeaders are the request headers a browser caller needs to reach the
// /ecw routes.
var PortalHeaders = []string{
	SessionHeader, SessionDIDHeader, UserIDHeader, CSRFHeader, CookieHeader, ClientIPHeader,
}

// CORSConfig configures the CORS middleware.
type CORSConfig struct {
	// Origins is the allowlist. "*" echoes any Origin back.
	Origins []string
	// Headers are allowed on top of Authorization, Content-Type and the
	// request id header. Matching is case-insensitive.
	Headers []string
	// MaxAge caches preflight answers; zero uses ten minutes.
	MaxAge time.Duration
}

// CORS answers preflights and tags responses for allowlisted origins.
// Requests from other origins pass through untagged.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	allowAny := false
	origins := map[string]struct{}{}
	for _, origin := range cfg.Origins {
		switch origin = strings.TrimSpace(origin); origin {
		case "":
		case "*":
			allowAny = true
		default:
			origins[origin] = struct{}{}
		}
	}

	allowedHeaders := strings.Join(headerList(cfg.Headers), ", ")
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	maxAgeSeconds := strconv.Itoa(int(maxAge / time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := origins[origin]; ok || allowAny {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Headers", allowedHeaders)
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Expose-Headers", RequestIDHeader)
				h.Set("Access-Control-Max-Age", maxAgeSeconds)
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// headerList is the base header set plus extra, deduplicated case-insensitively
// in first-seen order.
func headerList(extra []string) []string {
	base := []string{"Authorization", "Content-Type", RequestIDHeader}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(base)+len(extra))
	for _, name := range append(base, extra...) {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}
