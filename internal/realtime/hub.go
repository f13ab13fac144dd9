// Package realtime provides WebSocket connection, presence, and room
// management plus the event fan-out primitive.
package realtime

import (
	"log/slog"
	"sync"
)

// Hub is the process-wide registry of live connections. It tracks which
// users are online (presence), which connections subscribe to which rooms,
// and fans events out to a room or to everyone.
//
// Presence lives in this one process only; running multiple server
// processes would need an external shared registry.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[*Conn]struct{}
	rooms map[string]map[*Conn]struct{}
	joins map[*Conn]map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		users: make(map[string]map[*Conn]struct{}),
		rooms: make(map[string]map[*Conn]struct{}),
		joins: make(map[*Conn]map[string]struct{}),
	}
}

// Register records a live connection under its user. The first connection
// of a previously-offline user broadcasts an online event to all other
// connections. Broadcasts happen under the hub lock so online/offline
// ordering per user is strict.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.users[c.UserID]
	if !ok {
		conns = make(map[*Conn]struct{})
		h.users[c.UserID] = conns
	}
	wasOffline := len(conns) == 0
	conns[c] = struct{}{}
	h.joins[c] = make(map[string]struct{})

	if wasOffline {
		h.broadcastLocked(Event{Name: EventOnline, Data: PresenceEvent{UserID: c.UserID}}, c)
	}
	slog.Info("Connection registered", "user_id", c.UserID, "conn_id", c.ID)
}

// Unregister removes the connection from presence and from every room it
// joined, closes it, and broadcasts an offline event if it was the user's
// last connection.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for roomID := range h.joins[c] {
		h.leaveLocked(c, roomID)
	}
	delete(h.joins, c)

	if conns, ok := h.users[c.UserID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.UserID)
			h.broadcastLocked(Event{Name: EventOffline, Data: PresenceEvent{UserID: c.UserID}}, c)
		}
	}
	c.Close()
	slog.Info("Connection unregistered", "user_id", c.UserID, "conn_id", c.ID)
}

// Join subscribes the connection to a room. Joining an already-joined room
// is a no-op. The hub performs no authorization; callers verify chat
// membership first.
func (h *Hub) Join(c *Conn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	joined, ok := h.joins[c]
	if !ok {
		// Not registered (already unregistered); ignore.
		return
	}
	if _, already := joined[roomID]; already {
		return
	}
	joined[roomID] = struct{}{}

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[roomID] = members
	}
	members[c] = struct{}{}
}

// Leave unsubscribes the connection from a room. Leaving a room the
// connection never joined is a no-op.
func (h *Hub) Leave(c *Conn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, roomID)
}

func (h *Hub) leaveLocked(c *Conn, roomID string) {
	if joined, ok := h.joins[c]; ok {
		delete(joined, roomID)
	}
	if members, ok := h.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// OnlineUserIDs returns the IDs of all users with a live connection.
func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.users))
	for id := range h.users {
		ids = append(ids, id)
	}
	return ids
}

// ToRoom delivers the event to every connection in the room except exclude
// (which may be nil). Delivery is fire-and-forget per connection; the
// returned count is how many connections accepted the event.
func (h *Hub) ToRoom(roomID, name string, data any, exclude *Conn) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ev := Event{Name: name, Data: data}
	delivered := 0
	for c := range h.rooms[roomID] {
		if c == exclude {
			continue
		}
		if c.TrySend(ev) {
			delivered++
		} else {
			slog.Debug("Event dropped", "event", name, "user_id", c.UserID, "room_id", roomID)
		}
	}
	return delivered
}

// ToAll delivers the event to every live connection except exclude.
func (h *Hub) ToAll(name string, data any, exclude *Conn) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sendAllLocked(Event{Name: name, Data: data}, exclude)
}

func (h *Hub) broadcastLocked(ev Event, exclude *Conn) {
	h.sendAllLocked(ev, exclude)
}

func (h *Hub) sendAllLocked(ev Event, exclude *Conn) int {
	delivered := 0
	for _, conns := range h.users {
		for c := range conns {
			if c == exclude {
				continue
			}
			if c.TrySend(ev) {
				delivered++
			} else {
				slog.Debug("Event dropped", "event", ev.Name, "user_id", c.UserID)
			}
		}
	}
	return delivered
}
