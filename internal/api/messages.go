package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avdeev/chatwire/internal/auth"
	"github.com/avdeev/chatwire/internal/domain"
)

const defaultPageSize = 30

type sendMessagePayload struct {
	Text        string              `json:"text"`
	Attachments []domain.Attachment `json:"attachments"`
}

type reactPayload struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

// ListMessages returns a page of chat history, oldest first.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := auth.UserIDFromContext(r.Context())

	chat, err := h.repo.GetChat(r.Context(), chatID)
	if err != nil {
		slog.Error("Failed to load chat", "error", err, "chat_id", chatID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if chat == nil {
		Error(w, http.StatusNotFound, "chat not found")
		return
	}
	if !chat.HasMember(userID) {
		Error(w, http.StatusForbidden, "forbidden")
		return
	}

	var before time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			Error(w, http.StatusBadRequest, "invalid before timestamp")
			return
		}
		before = parsed
	}
	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	messages, err := h.repo.ListMessages(r.Context(), chatID, before, limit)
	if err != nil {
		slog.Error("Failed to list messages", "error", err, "chat_id", chatID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}
	JSON(w, http.StatusOK, messages)
}

// SendMessage persists and broadcasts a new message.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var p sendMessagePayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p.Text == "" && len(p.Attachments) == 0 {
		Error(w, http.StatusBadRequest, "empty message")
		return
	}

	chatID := chi.URLParam(r, "chatID")
	userID := auth.UserIDFromContext(r.Context())

	msg, err := h.coord.SendMessage(r.Context(), chatID, userID, p.Text, p.Attachments)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, msg)
}

// React sets the caller's reaction on a message and broadcasts the delta.
func (h *Handler) React(w http.ResponseWriter, r *http.Request) {
	var p reactPayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(p); err != nil {
		Error(w, http.StatusBadRequest, "emoji required")
		return
	}

	chatID := chi.URLParam(r, "chatID")
	messageID := chi.URLParam(r, "messageID")
	userID := auth.UserIDFromContext(r.Context())

	msg, err := h.coord.React(r.Context(), chatID, messageID, userID, p.Emoji)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, msg)
}
