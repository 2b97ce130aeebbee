package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evalubot/evalubot/internal/identity"
)

// maxChatBodySize caps the chat request body (64KB).
const maxChatBodySize = 64 << 10

// maxMessageLength caps a single viewer message.
const maxMessageLength = 2000

// ChatHandler serves the conversational endpoint.
type ChatHandler struct {
	*Handler
	chat    ChatService
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewChatHandler creates the chat endpoint handler.
func NewChatHandler(base *Handler, chat ChatService, limiter *RateLimiter, logger *slog.Logger) *ChatHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{
		Handler: base,
		chat:    chat,
		limiter: limiter,
		logger:  logger,
	}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", h.handleChat)
}

type chatRequest struct {
	ViewerID    string `json:"viewer_id,omitempty"`
	CreatorName string `json:"creator_name"`
	Message     string `json:"message"`
}

type chatResponse struct {
	ViewerID string `json:"viewer_id"`
	Reply    string `json:"reply"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxChatBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	viewerID := strings.TrimSpace(req.ViewerID)
	if viewerID == "" {
		viewerID = identity.ViewerIDFromContext(r.Context())
	}
	creatorName := strings.TrimSpace(req.CreatorName)

	switch {
	case viewerID == "":
		Error(w, http.StatusBadRequest, "viewer_id is required")
		return
	case creatorName == "":
		Error(w, http.StatusBadRequest, "creator_name is required")
		return
	case strings.TrimSpace(req.Message) == "":
		Error(w, http.StatusBadRequest, "message is required")
		return
	case len(req.Message) > maxMessageLength:
		Error(w, http.StatusBadRequest, "message too long")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(viewerID) {
		Error(w, http.StatusTooManyRequests, "too many messages, slow down")
		return
	}

	reply, err := h.chat.HandleTurn(r.Context(), viewerID, creatorName, req.Message)
	if err != nil {
		h.logger.Error("chat turn failed",
			"viewer_id", viewerID, "creator", creatorName, "error", err)
		Error(w, http.StatusInternalServerError, "failed to process message")
		return
	}

	JSON(w, http.StatusOK, chatResponse{ViewerID: viewerID, Reply: reply})
}
