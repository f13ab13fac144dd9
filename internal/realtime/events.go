package realtime

// Event names pushed to clients.
const (
	EventOnline         = "online"
	EventOffline        = "offline"
	EventMessageNew     = "message:new"
	EventMessageReact   = "message:react"
	EventChatTyping     = "chat:typing"
	EventRequestNew     = "request:new"
	EventRequestUpdated = "request:updated"
)

// Event is one unit of fan-out: a name plus a JSON-encodable payload.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// PresenceEvent is the payload of online/offline events.
type PresenceEvent struct {
	UserID string `json:"user_id"`
}

// TypingEvent is relayed verbatim to the other members of a room.
type TypingEvent struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}

// ReactionEvent is the delta broadcast after a reaction upsert. Consumers
// apply it to their local copy of the message.
type ReactionEvent struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}
