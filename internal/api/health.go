package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthHandler reports service and database health.
type HealthHandler struct {
	*Handler
	aiEnabled bool
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(base *Handler, aiEnabled bool) *HealthHandler {
	return &HealthHandler{Handler: base, aiEnabled: aiEnabled}
}

// RegisterHealth registers the readiness route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ai := "disabled"
	if h.aiEnabled {
		ai = "enabled"
	}

	if err := h.repo.Ping(r.Context()); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"database": "unreachable",
			"ai":       ai,
		})
		return
	}
	JSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "ok",
		"ai":       ai,
	})
}
