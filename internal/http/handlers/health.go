package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthHandler reports liveness and, when a dependency check is wired, the
// state of the session store.
type HealthHandler struct {
	check func(ctx context.Context) error
}

// NewHealthHandler creates the handler. check may be nil.
func NewHealthHandler(check func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{check: check}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{"status": "ok"}
	if h.check == nil {
		writeJSON(w, http.StatusOK, response)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.check(ctx); err != nil {
		response["status"] = "degraded"
		response["sessions"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	response["sessions"] = "ok"
	writeJSON(w, http.StatusOK, response)
}
