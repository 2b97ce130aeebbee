// Package api provides HTTP handlers for the Evalubot API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/evalubot/evalubot/internal/domain"
	"github.com/evalubot/evalubot/internal/store"
)

// ChatService processes one viewer message and returns the bot reply.
type ChatService interface {
	HandleTurn(ctx context.Context, viewerID, creatorName, message string) (string, error)
}

// SummaryService generates the feedback digest for a creator on demand.
type SummaryService interface {
	Generate(ctx context.Context, creatorName string) (*domain.Summary, error)
}

// Handler provides common handler utilities.
type Handler struct {
	repo                store.Repository
	frontendRedirectURL string
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, frontendURL string) *Handler {
	return &Handler{
		repo:                repo,
		frontendRedirectURL: frontendURL,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// isDevelopment returns true if running in development mode.
func (h *Handler) isDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
	return h.frontendRedirectURL == "" ||
		strings.Contains(h.frontendRedirectURL, "localhost") ||
		strings.Contains(h.frontendRedirectURL, "127.0.0.1")
}
