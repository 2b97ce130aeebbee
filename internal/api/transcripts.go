package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evalubot/evalubot/internal/store"
)

// TranscriptHandler exposes a creator's accumulated feedback transcript.
type TranscriptHandler struct {
	*Handler
}

// NewTranscriptHandler creates the transcript endpoint handler.
func NewTranscriptHandler(base *Handler) *TranscriptHandler {
	return &TranscriptHandler{Handler: base}
}

// RegisterRoutes registers transcript routes.
func (h *TranscriptHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/transcripts/{creator}", h.handleGetTranscript)
}

type transcriptResponse struct {
	CreatorName string             `json:"creator_name"`
	Viewers     int                `json:"viewers"`
	Turns       []store.StoredTurn `json:"turns"`
}

func (h *TranscriptHandler) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	creator := strings.TrimSpace(chi.URLParam(r, "creator"))
	if creator == "" {
		Error(w, http.StatusBadRequest, "creator is required")
		return
	}

	turns, err := h.repo.ListTurns(r.Context(), creator)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	viewers, err := h.repo.CountDistinctViewers(r.Context(), creator)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	if turns == nil {
		turns = []store.StoredTurn{}
	}
	JSON(w, http.StatusOK, transcriptResponse{
		CreatorName: creator,
		Viewers:     viewers,
		Turns:       turns,
	})
}
