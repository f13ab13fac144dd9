package domain

import (
	"time"
)

// Attachment describes an uploaded file referenced by a message or solution.
// Storage of the file itself is handled elsewhere; this is metadata only.
type Attachment struct {
	Type string `json:"type"` // image, video, or document
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Reaction is a single user's emoji on a message. A user has at most one
// reaction per message; a later reaction replaces the earlier one.
type Reaction struct {
	UserID string `json:"user_id"`
	Emoji  string `json:"emoji"`
}

// Message is one entry in a chat's history.
type Message struct {
	ID          string       `json:"id"`
	ChatID      string       `json:"chat_id"`
	Sender      string       `json:"sender"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Reactions   []Reaction   `json:"reactions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// SetReaction replaces any prior reaction by the same user, keeping at most
// one reaction per user on the message.
func (m *Message) SetReaction(userID, emoji string) {
	kept := m.Reactions[:0]
	for _, r := range m.Reactions {
		if r.UserID != userID {
			kept = append(kept, r)
		}
	}
	m.Reactions = append(kept, Reaction{UserID: userID, Emoji: emoji})
}
