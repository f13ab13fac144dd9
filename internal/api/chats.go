package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/avdeev/chatwire/internal/auth"
	"github.com/avdeev/chatwire/internal/domain"
)

type dmPayload struct {
	UserID string `json:"user_id" validate:"required"`
}

type groupPayload struct {
	Name      string   `json:"name" validate:"required,max=100"`
	MemberIDs []string `json:"member_ids" validate:"required,min=1"`
}

type memberPayload struct {
	UserID string `json:"user_id" validate:"required"`
}

type adminPayload struct {
	UserID string `json:"user_id" validate:"required"`
	Action string `json:"action" validate:"required,oneof=add remove"`
}

// ListChats lists the authenticated user's chats, most recent first.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	chats, err := h.repo.ListChatsForUser(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list chats", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if chats == nil {
		chats = []*domain.Chat{}
	}
	JSON(w, http.StatusOK, chats)
}

// CreateDM gets or creates the 1:1 chat with another user.
func (h *Handler) CreateDM(w http.ResponseWriter, r *http.Request) {
	var p dmPayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(p); err != nil {
		Error(w, http.StatusBadRequest, "user_id required")
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	if p.UserID == userID {
		Error(w, http.StatusBadRequest, "cannot open a direct chat with yourself")
		return
	}

	chat, err := h.repo.FindDirectChat(r.Context(), userID, p.UserID)
	if err != nil {
		slog.Error("Failed to find direct chat", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if chat == nil {
		now := time.Now()
		chat = &domain.Chat{
			ID:            uuid.NewString(),
			IsGroup:       false,
			Members:       []string{userID, p.UserID},
			LastMessageAt: now,
			CreatedAt:     now,
		}
		if err := h.repo.CreateChat(r.Context(), chat); err != nil {
			slog.Error("Failed to create direct chat", "error", err, "user_id", userID)
			Error(w, http.StatusInternalServerError, "internal error")
			return
		}
		slog.Info("Direct chat created", "chat_id", chat.ID, "user_id", userID)
	}
	JSON(w, http.StatusOK, chat)
}

// CreateGroup creates a group chat with the creator as admin.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var p groupPayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(p); err != nil {
		Error(w, http.StatusBadRequest, "invalid group params")
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	now := time.Now()
	chat := &domain.Chat{
		ID:            uuid.NewString(),
		IsGroup:       true,
		Name:          p.Name,
		Members:       lo.Uniq(append([]string{userID}, p.MemberIDs...)),
		Admins:        []string{userID},
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := h.repo.CreateChat(r.Context(), chat); err != nil {
		slog.Error("Failed to create group chat", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("Group chat created", "chat_id", chat.ID, "user_id", userID)
	JSON(w, http.StatusOK, chat)
}

// adminChat loads a group chat and checks the acting user administers it.
func (h *Handler) adminChat(r *http.Request, chatID string) (*domain.Chat, error) {
	chat, err := h.repo.GetChat(r.Context(), chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil || !chat.IsGroup {
		return nil, domain.ErrNotFound
	}
	if !chat.HasAdmin(auth.UserIDFromContext(r.Context())) {
		return nil, domain.ErrForbidden
	}
	return chat, nil
}

// AddMember adds a user to a group chat (admin only).
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var p memberPayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(p); err != nil {
		Error(w, http.StatusBadRequest, "user_id required")
		return
	}

	chatID := chi.URLParam(r, "chatID")
	if _, err := h.adminChat(r, chatID); err != nil {
		ErrorFrom(w, err)
		return
	}
	if err := h.repo.AddChatMember(r.Context(), chatID, p.UserID); err != nil {
		slog.Error("Failed to add member", "error", err, "chat_id", chatID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	chat, err := h.repo.GetChat(r.Context(), chatID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	JSON(w, http.StatusOK, chat)
}

// RemoveMember removes a user from a group chat (admin only).
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	userID := chi.URLParam(r, "userID")

	if _, err := h.adminChat(r, chatID); err != nil {
		ErrorFrom(w, err)
		return
	}
	if err := h.repo.RemoveChatMember(r.Context(), chatID, userID); err != nil {
		slog.Error("Failed to remove member", "error", err, "chat_id", chatID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	chat, err := h.repo.GetChat(r.Context(), chatID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	JSON(w, http.StatusOK, chat)
}

// SetAdmin grants or revokes chat admin (admin only).
func (h *Handler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	var p adminPayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(p); err != nil {
		Error(w, http.StatusBadRequest, "invalid admin params")
		return
	}

	chatID := chi.URLParam(r, "chatID")
	chat, err := h.adminChat(r, chatID)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	if !chat.HasMember(p.UserID) {
		Error(w, http.StatusBadRequest, "not a member")
		return
	}

	if err := h.repo.SetChatAdmin(r.Context(), chatID, p.UserID, p.Action == "add"); err != nil {
		slog.Error("Failed to set admin", "error", err, "chat_id", chatID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	chat, err = h.repo.GetChat(r.Context(), chatID)
	if err != nil {
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	JSON(w, http.StatusOK, chat)
}
