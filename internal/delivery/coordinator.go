// Package delivery binds durable mutations to their broadcast: a write must
// fully succeed before the single corresponding event is relayed.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avdeev/chatwire/internal/domain"
	"github.com/avdeev/chatwire/internal/realtime"
	"github.com/avdeev/chatwire/internal/store"
)

// Coordinator is the write-and-notify path for messages, reactions, and
// support requests. Every method performs exactly one durable write, then
// zero or one relay call; a failed write relays nothing. Relay failures for
// individual connections are dropped, never surfaced to the caller.
type Coordinator struct {
	repo store.Repository
	hub  *realtime.Hub

	mu        sync.Mutex
	chatLocks map[string]*sync.Mutex
}

// NewCoordinator creates a delivery coordinator.
func NewCoordinator(repo store.Repository, hub *realtime.Hub) *Coordinator {
	return &Coordinator{
		repo:      repo,
		hub:       hub,
		chatLocks: make(map[string]*sync.Mutex),
	}
}

// chatLock returns the per-chat mutex serializing persist-then-relay for a
// chat, so subscribers observe messages in the order their writes committed.
func (d *Coordinator) chatLock(chatID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.chatLocks[chatID]
	if !ok {
		l = &sync.Mutex{}
		d.chatLocks[chatID] = l
	}
	return l
}

// memberChat loads a chat and verifies the acting user belongs to it.
func (d *Coordinator) memberChat(ctx context.Context, chatID, userID string) (*domain.Chat, error) {
	chat, err := d.repo.GetChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if chat == nil {
		return nil, domain.ErrNotFound
	}
	if !chat.HasMember(userID) {
		return nil, domain.ErrForbidden
	}
	return chat, nil
}

// SendMessage persists a message to a chat the sender belongs to, updates
// the chat's activity timestamp, and relays message:new to the chat's room.
func (d *Coordinator) SendMessage(ctx context.Context, chatID, senderID, text string, attachments []domain.Attachment) (*domain.Message, error) {
	if _, err := d.memberChat(ctx, chatID, senderID); err != nil {
		return nil, err
	}

	// Hold the chat's ordering lock across persist and relay: two
	// concurrent senders must reach subscribers in commit order.
	lock := d.chatLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	msg := &domain.Message{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		Sender:      senderID,
		Text:        text,
		Attachments: attachments,
		CreatedAt:   time.Now(),
	}
	if err := d.repo.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := d.repo.TouchChatActivity(ctx, chatID, msg.CreatedAt); err != nil {
		// The message is durable; a stale activity timestamp is tolerable.
		slog.Warn("Failed to touch chat activity", "error", err, "chat_id", chatID)
	}

	d.hub.ToRoom(chatID, realtime.EventMessageNew, msg, nil)
	return msg, nil
}

// React sets the sender's reaction on a message, replacing any prior one,
// and relays a message:react delta to the chat's room.
func (d *Coordinator) React(ctx context.Context, chatID, messageID, senderID, emoji string) (*domain.Message, error) {
	if _, err := d.memberChat(ctx, chatID, senderID); err != nil {
		return nil, err
	}

	msg, err := d.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	if msg == nil || msg.ChatID != chatID {
		return nil, domain.ErrNotFound
	}

	updated, err := d.repo.UpsertReaction(ctx, messageID, senderID, emoji)
	if err != nil {
		return nil, fmt.Errorf("upsert reaction: %w", err)
	}
	if updated == nil {
		return nil, domain.ErrNotFound
	}

	d.hub.ToRoom(chatID, realtime.EventMessageReact, realtime.ReactionEvent{
		MessageID: messageID,
		UserID:    senderID,
		Emoji:     emoji,
	}, nil)
	return updated, nil
}

// CreateRequest opens a support request and relays request:new to every
// connection, since requests have no fixed membership.
func (d *Coordinator) CreateRequest(ctx context.Context, creatorID, title, description string) (*domain.Request, error) {
	now := time.Now()
	req := &domain.Request{
		ID:          uuid.NewString(),
		CreatedBy:   creatorID,
		Title:       title,
		Description: description,
		Status:      domain.RequestOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.repo.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	d.hub.ToAll(realtime.EventRequestNew, req, nil)
	return req, nil
}

// AddSolution appends an agent answer to a request, moving it to
// awaiting_info, and relays request:updated to every connection.
func (d *Coordinator) AddSolution(ctx context.Context, requestID, agentID, message string, attachments []domain.Attachment) (*domain.Request, error) {
	req, err := d.repo.AppendSolution(ctx, requestID, domain.SolutionEntry{
		Message:     message,
		Attachments: attachments,
	})
	if err != nil {
		return nil, fmt.Errorf("append solution: %w", err)
	}
	if req == nil {
		return nil, domain.ErrNotFound
	}

	slog.Info("Solution added", "request_id", requestID, "agent_id", agentID)
	d.hub.ToAll(realtime.EventRequestUpdated, req, nil)
	return req, nil
}

// UpdateStatus changes a request's status and relays request:updated to
// every connection. Closing is reserved to the creator; other transitions
// are open to any authenticated actor.
func (d *Coordinator) UpdateStatus(ctx context.Context, requestID, actorID, status string) (*domain.Request, error) {
	if !domain.ValidRequestStatus(status) {
		return nil, fmt.Errorf("invalid status %q", status)
	}

	req, err := d.repo.GetRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, domain.ErrNotFound
	}
	if status == domain.RequestClosed && req.CreatedBy != actorID {
		return nil, domain.ErrForbidden
	}

	updated, err := d.repo.SetRequestStatus(ctx, requestID, status)
	if err != nil {
		return nil, fmt.Errorf("set request status: %w", err)
	}
	if updated == nil {
		return nil, domain.ErrNotFound
	}

	d.hub.ToAll(realtime.EventRequestUpdated, updated, nil)
	return updated, nil
}
