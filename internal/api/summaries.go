package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evalubot/evalubot/internal/summary"
	"github.com/evalubot/evalubot/internal/textgen"
)

// SummaryHandler serves stored creator digests and on-demand generation.
type SummaryHandler struct {
	*Handler
	summaries SummaryService
	logger    *slog.Logger
}

// NewSummaryHandler creates the summary endpoint handler.
func NewSummaryHandler(base *Handler, summaries SummaryService, logger *slog.Logger) *SummaryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryHandler{
		Handler:   base,
		summaries: summaries,
		logger:    logger,
	}
}

// RegisterRoutes registers summary routes.
func (h *SummaryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/summaries/{creator}", h.handleGetSummary)
	r.Post("/api/summaries/{creator}/generate", h.handleGenerateSummary)
}

func (h *SummaryHandler) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	creator := strings.TrimSpace(chi.URLParam(r, "creator"))
	if creator == "" {
		Error(w, http.StatusBadRequest, "creator is required")
		return
	}

	sum, err := h.repo.GetSummary(r.Context(), creator)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load summary")
		return
	}
	if sum == nil {
		Error(w, http.StatusNotFound, "no summary for this creator yet")
		return
	}
	JSON(w, http.StatusOK, sum)
}

func (h *SummaryHandler) handleGenerateSummary(w http.ResponseWriter, r *http.Request) {
	creator := strings.TrimSpace(chi.URLParam(r, "creator"))
	if creator == "" {
		Error(w, http.StatusBadRequest, "creator is required")
		return
	}

	sum, err := h.summaries.Generate(r.Context(), creator)
	if err != nil {
		switch {
		case errors.Is(err, summary.ErrBelowThreshold):
			Error(w, http.StatusConflict, "not enough viewers have given feedback yet")
		case errors.Is(err, textgen.ErrGeneration), errors.Is(err, summary.ErrMalformed):
			h.logger.Error("summary generation failed", "creator", creator, "error", err)
			Error(w, http.StatusBadGateway, "summary generation failed")
		default:
			h.logger.Error("summary generation failed", "creator", creator, "error", err)
			Error(w, http.StatusInternalServerError, "summary generation failed")
		}
		return
	}
	JSON(w, http.StatusOK, sum)
}
