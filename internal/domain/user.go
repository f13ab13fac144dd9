// Package domain contains core domain types for the chatwire server.
package domain

import (
	"time"
)

// User represents a registered account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Bio          string    `json:"bio,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Public returns the projection of the user that is safe to send to clients.
func (u *User) Public() map[string]any {
	return map[string]any{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"avatar_url": u.AvatarURL,
		"bio":        u.Bio,
	}
}
