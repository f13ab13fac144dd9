package domain

import (
	"time"
)

// Request status values. A request starts open, moves to awaiting_info when
// an agent posts a solution, and ends resolved or closed.
const (
	RequestOpen         = "open"
	RequestAwaitingInfo = "awaiting_info"
	RequestResolved     = "resolved"
	RequestClosed       = "closed"
)

// ValidRequestStatus reports whether s is one of the known status values.
func ValidRequestStatus(s string) bool {
	switch s {
	case RequestOpen, RequestAwaitingInfo, RequestResolved, RequestClosed:
		return true
	}
	return false
}

// SolutionEntry is one agent answer attached to a support request.
type SolutionEntry struct {
	Message     string       `json:"message"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Request is a customer-support ticket. Unlike chats, requests have no fixed
// membership: lifecycle events are broadcast to every connected client.
type Request struct {
	ID          string          `json:"id"`
	CreatedBy   string          `json:"created_by"`
	AssignedTo  string          `json:"assigned_to,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status"`
	Solutions   []SolutionEntry `json:"solutions,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
