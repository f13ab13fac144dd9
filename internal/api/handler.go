// Package api provides HTTP handlers for the chatwire API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/avdeev/chatwire/internal/auth"
	"github.com/avdeev/chatwire/internal/delivery"
	"github.com/avdeev/chatwire/internal/domain"
	"github.com/avdeev/chatwire/internal/realtime"
	"github.com/avdeev/chatwire/internal/store"
)

var validate = validator.New()

// Handler provides the HTTP API handlers and their shared dependencies.
type Handler struct {
	repo   store.Repository
	hub    *realtime.Hub
	coord  *delivery.Coordinator
	tokens *auth.Service
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, hub *realtime.Hub, coord *delivery.Coordinator, tokens *auth.Service) *Handler {
	return &Handler{
		repo:   repo,
		hub:    hub,
		coord:  coord,
		tokens: tokens,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.tokens.Middleware)

			r.Get("/auth/me", h.GetMe)
			r.Put("/auth/me", h.UpdateMe)

			r.Get("/search", h.Search)

			r.Route("/users", func(r chi.Router) {
				r.Get("/all", h.ListUsers)
				r.Get("/search", h.SearchUsers)
				r.Get("/online", h.OnlineUsers)
			})

			r.Route("/chats", func(r chi.Router) {
				r.Get("/", h.ListChats)
				r.Post("/dm", h.CreateDM)
				r.Post("/group", h.CreateGroup)
				r.Post("/{chatID}/members", h.AddMember)
				r.Delete("/{chatID}/members/{userID}", h.RemoveMember)
				r.Post("/{chatID}/admins", h.SetAdmin)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/{chatID}", h.ListMessages)
				r.Post("/{chatID}", h.SendMessage)
				r.Post("/{chatID}/{messageID}/react", h.React)
			})

			r.Route("/requests", func(r chi.Router) {
				r.Post("/", h.CreateRequest)
				r.Get("/", h.ListMyRequests)
				r.Get("/all", h.ListAllRequests)
				r.Post("/{requestID}/solution", h.AddSolution)
				r.Post("/{requestID}/close", h.CloseRequest)
				r.Post("/{requestID}/status", h.SetRequestStatus)
			})
		})
	})
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

// ErrorFrom maps domain errors to HTTP status codes.
func ErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		Error(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForbidden):
		Error(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrUnauthenticated):
		Error(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrEmailTaken):
		Error(w, http.StatusConflict, "email already in use")
	default:
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

// decode parses a JSON request body into dst.
func decode(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
