package ai

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler provides HTTP handlers for the AI module
type Handler struct {
	client *Client
}

// NewHandler creates a new AI handler
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// Routes registers the AI routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.HealthCheck)

	return r
}

// HealthCheck checks AI service health. Upstream details are not exposed.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:  "healthy",
		Breaker: h.client.BreakerState(),
		Model:   h.client.Model(),
	}

	if err := h.client.Health(r.Context()); err != nil {
		h.client.log.Warn().Err(err).Msg("ai health check failed")
		status.Status = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
