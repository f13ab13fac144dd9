package domain

import (
	"slices"
	"time"
)

// Chat is a named conversation: either a 1:1 DM or a group.
// Members and Admins hold user IDs; for DMs Admins is empty.
type Chat struct {
	ID            string    `json:"id"`
	IsGroup       bool      `json:"is_group"`
	Name          string    `json:"name,omitempty"`
	Members       []string  `json:"members"`
	Admins        []string  `json:"admins,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasMember reports whether the user belongs to the chat.
func (c *Chat) HasMember(userID string) bool {
	return slices.Contains(c.Members, userID)
}

// HasAdmin reports whether the user administers the chat.
func (c *Chat) HasAdmin(userID string) bool {
	return slices.Contains(c.Admins, userID)
}
