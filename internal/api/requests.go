package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avdeev/chatwire/internal/auth"
	"github.com/avdeev/chatwire/internal/domain"
)

type createRequestPayload struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

type solutionPayload struct {
	Message     string              `json:"message" validate:"required"`
	Attachments []domain.Attachment `json:"attachments"`
}

type statusPayload struct {
	Status string `json:"status" validate:"required"`
}

// CreateRequest opens a support request and broadcasts it to everyone.
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var p createRequestPayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(p); err != nil {
		Error(w, http.StatusBadRequest, "title required")
		return
	}

	userID := auth.UserIDFromContext(r.Context())
	req, err := h.coord.CreateRequest(r.Context(), userID, p.Title, p.Description)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, req)
}

// ListMyRequests lists requests created by or assigned to the caller.
func (h *Handler) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	requests, err := h.repo.ListRequestsForUser(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list requests", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if requests == nil {
		requests = []*domain.Request{}
	}
	JSON(w, http.StatusOK, requests)
}

// ListAllRequests lists every request for the agent view.
func (h *Handler) ListAllRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.repo.ListAllRequests(r.Context())
	if err != nil {
		slog.Error("Failed to list all requests", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if requests == nil {
		requests = []*domain.Request{}
	}
	JSON(w, http.StatusOK, requests)
}

// AddSolution appends an agent answer and broadcasts the update.
func (h *Handler) AddSolution(w http.ResponseWriter, r *http.Request) {
	var p solutionPayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(p); err != nil {
		Error(w, http.StatusBadRequest, "message required")
		return
	}

	requestID := chi.URLParam(r, "requestID")
	userID := auth.UserIDFromContext(r.Context())

	req, err := h.coord.AddSolution(r.Context(), requestID, userID, p.Message, p.Attachments)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, req)
}

// CloseRequest closes a request (creator only) and broadcasts the update.
func (h *Handler) CloseRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	userID := auth.UserIDFromContext(r.Context())

	req, err := h.coord.UpdateStatus(r.Context(), requestID, userID, domain.RequestClosed)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, req)
}

// SetRequestStatus sets an arbitrary valid status and broadcasts the update.
func (h *Handler) SetRequestStatus(w http.ResponseWriter, r *http.Request) {
	var p statusPayload
	if err := decode(r, &p); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.ValidRequestStatus(p.Status) {
		Error(w, http.StatusBadRequest, "invalid status")
		return
	}

	requestID := chi.URLParam(r, "requestID")
	userID := auth.UserIDFromContext(r.Context())

	req, err := h.coord.UpdateStatus(r.Context(), requestID, userID, p.Status)
	if err != nil {
		ErrorFrom(w, err)
		return
	}
	JSON(w, http.StatusOK, req)
}
