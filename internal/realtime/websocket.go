package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/avdeev/chatwire/internal/auth"
	"github.com/avdeev/chatwire/internal/store"
)

// StatusAuthenticationError is the close code sent when the credential is
// missing or invalid. Clients treat it as a signal to discard the stored
// token, unlike ordinary transport failures.
const StatusAuthenticationError websocket.StatusCode = 4401

// WebSocketHandler upgrades client connections, authenticates them, and
// runs the per-connection read and write loops.
type WebSocketHandler struct {
	repo          store.Repository
	hub           *Hub
	tokens        *auth.Service
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(repo store.Repository, hub *Hub, tokens *auth.Service, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		repo:          repo,
		hub:           hub,
		tokens:        tokens,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// clientMessage is an inbound control frame from the client.
type clientMessage struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id,omitempty"`
	Typing bool   `json:"typing,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}

	userID, err := h.tokens.Verify(auth.TokenFromRequest(r))
	if err != nil {
		// Distinguishable close reason so the client can invalidate its
		// stored credential. No handlers attach.
		slog.Info("WebSocket rejected", "ip", r.RemoteAddr)
		_ = ws.Close(StatusAuthenticationError, "authentication error")
		return
	}
	slog.Info("WebSocket connected", "user_id", userID, "ip", r.RemoteAddr)

	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	c := NewConn(userID)
	h.hub.Register(c)
	defer h.hub.Unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, ws, c)
	h.readLoop(ctx, ws, c)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop consumes control frames until the client disconnects.
func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, c *Conn) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", c.UserID)
			} else {
				slog.Debug("WebSocket read error", "error", err, "user_id", c.UserID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Debug("Malformed client frame", "error", err, "user_id", c.UserID)
			continue
		}

		switch msg.Type {
		case "chat:join":
			h.handleJoin(ctx, c, msg.ChatID)
		case "chat:leave":
			h.hub.Leave(c, msg.ChatID)
		case "chat:typing":
			// Pure pass-through: one relay per signal, sender excluded.
			h.hub.ToRoom(msg.ChatID, EventChatTyping, TypingEvent{
				ChatID: msg.ChatID,
				UserID: c.UserID,
				Typing: msg.Typing,
			}, c)
		case "ping":
			c.TrySend(Event{Name: "pong"})
		}
	}
}

// handleJoin verifies chat membership before subscribing the connection.
// The hub itself does no authorization.
func (h *WebSocketHandler) handleJoin(ctx context.Context, c *Conn, chatID string) {
	chat, err := h.repo.GetChat(ctx, chatID)
	if err != nil {
		slog.Warn("Failed to load chat for join", "error", err, "chat_id", chatID, "user_id", c.UserID)
		return
	}
	if chat == nil || !chat.HasMember(c.UserID) {
		slog.Debug("Join refused", "chat_id", chatID, "user_id", c.UserID)
		return
	}
	h.hub.Join(c, chatID)
	slog.Debug("Joined room", "chat_id", chatID, "user_id", c.UserID)
}

// writeLoop drains the connection's outbound queue onto the socket.
func (h *WebSocketHandler) writeLoop(ctx context.Context, ws *websocket.Conn, c *Conn) {
	for {
		select {
		case ev := <-c.Outbound():
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Error("Failed to encode event", "error", err, "event", ev.Name)
				continue
			}
			if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
				slog.Debug("WebSocket write error", "error", err, "user_id", c.UserID)
				c.Close()
				return
			}
		case <-c.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
