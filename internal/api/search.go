package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/avdeev/chatwire/internal/auth"
	"github.com/avdeev/chatwire/internal/domain"
)

const (
	searchChatLimit    = 20
	searchMessageLimit = 50
)

type searchResponse struct {
	Chats    []*domain.Chat    `json:"chats"`
	Messages []*domain.Message `json:"messages"`
}

// Search finds chats and messages visible to the caller whose name or text
// contains q. An empty query matches nothing.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	result := searchResponse{Chats: []*domain.Chat{}, Messages: []*domain.Message{}}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		JSON(w, http.StatusOK, result)
		return
	}

	chats, err := h.repo.SearchChats(r.Context(), userID, q, searchChatLimit)
	if err != nil {
		slog.Error("Failed to search chats", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if chats != nil {
		result.Chats = chats
	}

	messages, err := h.repo.SearchMessages(r.Context(), userID, q, searchMessageLimit)
	if err != nil {
		slog.Error("Failed to search messages", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if messages != nil {
		result.Messages = messages
	}

	JSON(w, http.StatusOK, result)
}
