package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/avdeev/chatwire/internal/auth"
	"github.com/avdeev/chatwire/internal/domain"
)

type registerPayload struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type profilePayload struct {
	Name      string `json:"name" validate:"required,max=100"`
	Bio       string `json:"bio" validate:"max=500"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,url"`
}

func (h *Handler) sessionResponse(w http.ResponseWriter, user *domain.User) {
	token, err := h.tokens.Sign(user.ID)
	if err != nil {
		slog.Error("Failed to sign token", "error", err, "user_id", user.ID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  user.Public(),
	})
}

// Register creates an account and returns a session token.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var p registerPayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(p); err != nil {
		Error(w, http.StatusBadRequest, "missing fields")
		return
	}

	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		slog.Error("Failed to hash password", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         p.Name,
		Email:        p.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		ErrorFrom(w, err)
		return
	}

	slog.Info("User registered", "user_id", user.ID)
	h.sessionResponse(w, user)
}

// Login verifies credentials and returns a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var p loginPayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(p); err != nil {
		Error(w, http.StatusBadRequest, "missing fields")
		return
	}

	user, err := h.repo.GetUserByEmail(r.Context(), p.Email)
	if err != nil {
		slog.Error("Failed to load user", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || !auth.CheckPassword(p.Password, user.PasswordHash) {
		Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.sessionResponse(w, user)
}

// GetMe returns the authenticated user's profile.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}
	JSON(w, http.StatusOK, user.Public())
}

// UpdateMe updates the authenticated user's profile.
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var p profilePayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(p); err != nil {
		Error(w, http.StatusBadRequest, "invalid profile fields")
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	user, err := h.repo.UpdateProfile(r.Context(), userID, p.Name, p.Bio, p.AvatarURL)
	if err != nil {
		slog.Error("Failed to update profile", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}
	JSON(w, http.StatusOK, user.Public())
}
