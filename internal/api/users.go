package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/samber/lo"

	"github.com/avdeev/chatwire/internal/auth"
	"github.com/avdeev/chatwire/internal/domain"
)

func publicUsers(users []*domain.User) []map[string]any {
	return lo.Map(users, func(u *domain.User, _ int) map[string]any {
		return u.Public()
	})
}

// ListUsers returns other users for chat creation.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	users, err := h.repo.SearchUsers(r.Context(), userID, "", 50)
	if err != nil {
		slog.Error("Failed to list users", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	JSON(w, http.StatusOK, publicUsers(users))
}

// SearchUsers finds users by name or email.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	users, err := h.repo.SearchUsers(r.Context(), userID, q, 20)
	if err != nil {
		slog.Error("Failed to search users", "error", err, "query", q)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	JSON(w, http.StatusOK, publicUsers(users))
}

// OnlineUsers returns the users that currently have a live connection.
// Presence comes from the hub; profiles come from the store.
func (h *Handler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	ids := h.hub.OnlineUserIDs()
	users, err := h.repo.ListUsersByIDs(r.Context(), ids)
	if err != nil {
		slog.Error("Failed to load online users", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	JSON(w, http.StatusOK, publicUsers(users))
}
