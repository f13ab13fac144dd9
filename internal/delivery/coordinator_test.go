package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avdeev/chatwire/internal/domain"
	"github.com/avdeev/chatwire/internal/realtime"
)

type fakeRepo struct {
	mu       sync.Mutex
	chats    map[string]*domain.Chat
	messages map[string]*domain.Message
	requests map[string]*domain.Request
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		chats:    make(map[string]*domain.Chat),
		messages: make(map[string]*domain.Message),
		requests: make(map[string]*domain.Request),
	}
}

func (f *fakeRepo) CreateUser(_ context.Context, _ *domain.User) error { return nil }
func (f *fakeRepo) GetUser(_ context.Context, _ string) (*domain.User, error) {
	return nil, nil
}
func (f *fakeRepo) GetUserByEmail(_ context.Context, _ string) (*domain.User, error) {
	return nil, nil
}
func (f *fakeRepo) UpdateProfile(_ context.Context, _, _, _, _ string) (*domain.User, error) {
	return nil, nil
}
func (f *fakeRepo) SearchUsers(_ context.Context, _, _ string, _ int) ([]*domain.User, error) {
	return nil, nil
}
func (f *fakeRepo) ListUsersByIDs(_ context.Context, _ []string) ([]*domain.User, error) {
	return nil, nil
}

func (f *fakeRepo) CreateChat(_ context.Context, chat *domain.Chat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *chat
	f.chats[chat.ID] = &copied
	return nil
}

func (f *fakeRepo) GetChat(_ context.Context, chatID string) (*domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chat := f.chats[chatID]
	if chat == nil {
		return nil, nil
	}
	copied := *chat
	return &copied, nil
}

func (f *fakeRepo) FindDirectChat(_ context.Context, _, _ string) (*domain.Chat, error) {
	return nil, nil
}
func (f *fakeRepo) ListChatsForUser(_ context.Context, _ string) ([]*domain.Chat, error) {
	return nil, nil
}
func (f *fakeRepo) SearchChats(_ context.Context, _, _ string, _ int) ([]*domain.Chat, error) {
	return nil, nil
}
func (f *fakeRepo) SearchMessages(_ context.Context, _, _ string, _ int) ([]*domain.Message, error) {
	return nil, nil
}
func (f *fakeRepo) AddChatMember(_ context.Context, _, _ string) error    { return nil }
func (f *fakeRepo) RemoveChatMember(_ context.Context, _, _ string) error { return nil }
func (f *fakeRepo) SetChatAdmin(_ context.Context, _, _ string, _ bool) error {
	return nil
}
func (f *fakeRepo) TouchChatActivity(_ context.Context, chatID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if chat := f.chats[chatID]; chat != nil {
		chat.LastMessageAt = at
	}
	return nil
}

func (f *fakeRepo) CreateMessage(_ context.Context, msg *domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *msg
	f.messages[msg.ID] = &copied
	return nil
}

func (f *fakeRepo) GetMessage(_ context.Context, messageID string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := f.messages[messageID]
	if msg == nil {
		return nil, nil
	}
	copied := *msg
	return &copied, nil
}

func (f *fakeRepo) ListMessages(_ context.Context, chatID string, _ time.Time, _ int) ([]*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var messages []*domain.Message
	for _, msg := range f.messages {
		if msg.ChatID == chatID {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func (f *fakeRepo) UpsertReaction(_ context.Context, messageID, userID, emoji string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := f.messages[messageID]
	if msg == nil {
		return nil, nil
	}
	msg.SetReaction(userID, emoji)
	copied := *msg
	return &copied, nil
}

func (f *fakeRepo) CreateRequest(_ context.Context, req *domain.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *req
	f.requests[req.ID] = &copied
	return nil
}

func (f *fakeRepo) GetRequest(_ context.Context, requestID string) (*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[requestID]
	if req == nil {
		return nil, nil
	}
	copied := *req
	return &copied, nil
}

func (f *fakeRepo) ListRequestsForUser(_ context.Context, _ string) ([]*domain.Request, error) {
	return nil, nil
}
func (f *fakeRepo) ListAllRequests(_ context.Context) ([]*domain.Request, error) {
	return nil, nil
}

func (f *fakeRepo) AppendSolution(_ context.Context, requestID string, entry domain.SolutionEntry) (*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[requestID]
	if req == nil {
		return nil, nil
	}
	req.Solutions = append(req.Solutions, entry)
	req.Status = domain.RequestAwaitingInfo
	copied := *req
	return &copied, nil
}

func (f *fakeRepo) SetRequestStatus(_ context.Context, requestID, status string) (*domain.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[requestID]
	if req == nil {
		return nil, nil
	}
	req.Status = status
	copied := *req
	return &copied, nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return nil }
func (f *fakeRepo) Close() error                 { return nil }

func (f *fakeRepo) messageCount(chatID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, msg := range f.messages {
		if msg.ChatID == chatID {
			count++
		}
	}
	return count
}

func drain(c *realtime.Conn) []realtime.Event {
	var events []realtime.Event
	for {
		select {
		case ev := <-c.Outbound():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func setup(t *testing.T) (*fakeRepo, *realtime.Hub, *Coordinator) {
	t.Helper()
	repo := newFakeRepo()
	hub := realtime.NewHub()
	return repo, hub, NewCoordinator(repo, hub)
}

func seedChat(repo *fakeRepo, chatID string, members ...string) {
	_ = repo.CreateChat(context.Background(), &domain.Chat{
		ID:      chatID,
		Members: members,
	})
}

func TestSendMessage_DeliversToRoom(t *testing.T) {
	repo, hub, coord := setup(t)
	seedChat(repo, "chat1", "alice", "bob")

	bobConn := realtime.NewConn("bob")
	hub.Register(bobConn)
	hub.Join(bobConn, "chat1")
	drain(bobConn)

	msg, err := coord.SendMessage(context.Background(), "chat1", "alice", "hi", nil)
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if msg.Text != "hi" || msg.ChatID != "chat1" || msg.Sender != "alice" {
		t.Errorf("Unexpected message %+v", msg)
	}

	events := drain(bobConn)
	if len(events) != 1 || events[0].Name != realtime.EventMessageNew {
		t.Fatalf("Expected one message:new event, got %v", events)
	}
	got := events[0].Data.(*domain.Message)
	if got.Text != "hi" {
		t.Errorf("Expected full message in event, got %+v", got)
	}

	chat, _ := repo.GetChat(context.Background(), "chat1")
	if !chat.LastMessageAt.Equal(msg.CreatedAt) {
		t.Error("Expected chat activity timestamp updated")
	}
}

func TestSendMessage_NonMemberForbidden(t *testing.T) {
	repo, hub, coord := setup(t)
	seedChat(repo, "chat1", "bob")

	member := realtime.NewConn("bob")
	hub.Register(member)
	hub.Join(member, "chat1")
	drain(member)

	_, err := coord.SendMessage(context.Background(), "chat1", "alice", "hi", nil)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("Expected ErrForbidden, got %v", err)
	}

	if n := repo.messageCount("chat1"); n != 0 {
		t.Errorf("Expected message count unchanged, got %d", n)
	}
	if events := drain(member); len(events) != 0 {
		t.Errorf("Expected no events after rejected mutation, got %v", events)
	}
}

func TestSendMessage_ChatNotFound(t *testing.T) {
	_, _, coord := setup(t)

	_, err := coord.SendMessage(context.Background(), "missing", "alice", "hi", nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestSendMessage_ConcurrentSendsRelayInCommitOrder(t *testing.T) {
	repo, hub, coord := setup(t)
	seedChat(repo, "chat1", "alice", "bob")

	observer := realtime.NewConn("bob")
	hub.Register(observer)
	hub.Join(observer, "chat1")
	drain(observer)

	const senders = 40
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := coord.SendMessage(context.Background(), "chat1", "alice", "hi", nil); err != nil {
				t.Errorf("SendMessage failed: %v", err)
			}
		}()
	}
	wg.Wait()

	events := drain(observer)
	if len(events) != senders {
		t.Fatalf("Expected %d events, got %d", senders, len(events))
	}
	// Subscribers must observe messages in the order their writes committed.
	prev := events[0].Data.(*domain.Message)
	for _, ev := range events[1:] {
		msg := ev.Data.(*domain.Message)
		if msg.CreatedAt.Before(prev.CreatedAt) {
			t.Fatalf("Relay order diverged from commit order: %v before %v",
				msg.CreatedAt, prev.CreatedAt)
		}
		prev = msg
	}
}

func TestReact_LastWriteWins(t *testing.T) {
	repo, hub, coord := setup(t)
	seedChat(repo, "chat1", "alice", "bob")
	_ = repo.CreateMessage(context.Background(), &domain.Message{
		ID: "msg1", ChatID: "chat1", Sender: "bob", Text: "hello",
	})

	observer := realtime.NewConn("bob")
	hub.Register(observer)
	hub.Join(observer, "chat1")
	drain(observer)

	if _, err := coord.React(context.Background(), "chat1", "msg1", "alice", "👍"); err != nil {
		t.Fatalf("First react failed: %v", err)
	}
	updated, err := coord.React(context.Background(), "chat1", "msg1", "alice", "❤️")
	if err != nil {
		t.Fatalf("Second react failed: %v", err)
	}

	// Second reaction overwrites the first: exactly one stored.
	if len(updated.Reactions) != 1 {
		t.Fatalf("Expected 1 stored reaction, got %d", len(updated.Reactions))
	}
	if updated.Reactions[0].Emoji != "❤️" {
		t.Errorf("Expected last reaction to win, got %q", updated.Reactions[0].Emoji)
	}

	// The relay is per-call: two delta events.
	events := drain(observer)
	if len(events) != 2 {
		t.Fatalf("Expected 2 react events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Name != realtime.EventMessageReact {
			t.Errorf("Expected message:react, got %q", ev.Name)
		}
		delta := ev.Data.(realtime.ReactionEvent)
		if delta.MessageID != "msg1" || delta.UserID != "alice" {
			t.Errorf("Unexpected delta %+v", delta)
		}
	}
}

func TestReact_MessageFromOtherChatNotFound(t *testing.T) {
	repo, _, coord := setup(t)
	seedChat(repo, "chat1", "alice")
	seedChat(repo, "chat2", "alice")
	_ = repo.CreateMessage(context.Background(), &domain.Message{
		ID: "msg1", ChatID: "chat2", Sender: "alice",
	})

	_, err := coord.React(context.Background(), "chat1", "msg1", "alice", "👍")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for cross-chat message, got %v", err)
	}
}

func TestCreateRequest_BroadcastsToAll(t *testing.T) {
	_, hub, coord := setup(t)

	roomless := realtime.NewConn("carol")
	hub.Register(roomless)
	drain(roomless)

	req, err := coord.CreateRequest(context.Background(), "alice", "help", "it broke")
	if err != nil {
		t.Fatalf("CreateRequest failed: %v", err)
	}
	if req.Status != domain.RequestOpen {
		t.Errorf("Expected open status, got %q", req.Status)
	}

	// Request events bypass room filtering.
	events := drain(roomless)
	if len(events) != 1 || events[0].Name != realtime.EventRequestNew {
		t.Fatalf("Expected request:new on room-less connection, got %v", events)
	}
}

func TestAddSolution_SetsAwaitingInfo(t *testing.T) {
	repo, hub, coord := setup(t)
	_ = repo.CreateRequest(context.Background(), &domain.Request{
		ID: "req1", CreatedBy: "alice", Status: domain.RequestOpen,
	})

	observer := realtime.NewConn("bob")
	hub.Register(observer)
	drain(observer)

	req, err := coord.AddSolution(context.Background(), "req1", "agent", "try rebooting", nil)
	if err != nil {
		t.Fatalf("AddSolution failed: %v", err)
	}
	if req.Status != domain.RequestAwaitingInfo {
		t.Errorf("Expected awaiting_info, got %q", req.Status)
	}
	if len(req.Solutions) != 1 {
		t.Errorf("Expected 1 solution, got %d", len(req.Solutions))
	}

	events := drain(observer)
	if len(events) != 1 || events[0].Name != realtime.EventRequestUpdated {
		t.Fatalf("Expected request:updated, got %v", events)
	}
}

func TestUpdateStatus_CloseRestrictedToCreator(t *testing.T) {
	repo, hub, coord := setup(t)
	_ = repo.CreateRequest(context.Background(), &domain.Request{
		ID: "req1", CreatedBy: "alice", Status: domain.RequestOpen,
	})

	observer := realtime.NewConn("bob")
	hub.Register(observer)
	drain(observer)

	_, err := coord.UpdateStatus(context.Background(), "req1", "mallory", domain.RequestClosed)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("Expected ErrForbidden for non-creator close, got %v", err)
	}
	if events := drain(observer); len(events) != 0 {
		t.Errorf("Expected no events after rejected close, got %v", events)
	}

	req, err := coord.UpdateStatus(context.Background(), "req1", "alice", domain.RequestClosed)
	if err != nil {
		t.Fatalf("Creator close failed: %v", err)
	}
	if req.Status != domain.RequestClosed {
		t.Errorf("Expected closed, got %q", req.Status)
	}

	events := drain(observer)
	if len(events) != 1 || events[0].Name != realtime.EventRequestUpdated {
		t.Fatalf("Expected request:updated after close, got %v", events)
	}
	if got := events[0].Data.(*domain.Request).Status; got != domain.RequestClosed {
		t.Errorf("Expected closed status in event, got %q", got)
	}
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	repo, _, coord := setup(t)
	_ = repo.CreateRequest(context.Background(), &domain.Request{
		ID: "req1", CreatedBy: "alice", Status: domain.RequestOpen,
	})

	if _, err := coord.UpdateStatus(context.Background(), "req1", "alice", "bogus"); err == nil {
		t.Fatal("Expected error for invalid status")
	}
}

func TestSuccessfulMutationWithEmptyScope(t *testing.T) {
	repo, _, coord := setup(t)
	seedChat(repo, "chat1", "alice")

	// No subscribers at all: mutation still succeeds.
	msg, err := coord.SendMessage(context.Background(), "chat1", "alice", "into the void", nil)
	if err != nil {
		t.Fatalf("SendMessage with empty room failed: %v", err)
	}
	if repo.messageCount("chat1") != 1 {
		t.Error("Expected message persisted despite empty room")
	}
	if msg == nil {
		t.Fatal("Expected message returned")
	}
}
