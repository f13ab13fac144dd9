//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avdeev/chatwire/internal/auth"
	"github.com/avdeev/chatwire/internal/delivery"
	"github.com/avdeev/chatwire/internal/realtime"
	"github.com/avdeev/chatwire/internal/store"
)

type testServer struct {
	*httptest.Server
	hub *realtime.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	tokens, err := auth.NewService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	hub := realtime.NewHub()
	coord := delivery.NewCoordinator(repo, hub)
	handler := NewHandler(repo, hub, coord, tokens)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, s.URL+path, &buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (s *testServer) register(t *testing.T, name, email string) (token, userID string) {
	t.Helper()
	resp, body := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "longenough1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Register returned %d: %v", resp.StatusCode, body)
	}
	token, _ = body["token"].(string)
	user, _ := body["user"].(map[string]any)
	userID, _ = user["id"].(string)
	if token == "" || userID == "" {
		t.Fatalf("Register response missing token or user: %v", body)
	}
	return token, userID
}

func TestRegisterAndLogin(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "Alice", "alice@example.com")

	// Duplicate email is rejected.
	resp, _ := srv.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Clone", "email": "alice@example.com", "password": "longenough1",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate email, got %d", resp.StatusCode)
	}

	resp, body := srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "longenough1",
	})
	if resp.StatusCode != http.StatusOK || body["token"] == "" {
		t.Errorf("Expected login success, got %d: %v", resp.StatusCode, body)
	}

	resp, _ = srv.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad password, got %d", resp.StatusCode)
	}
}

func TestMe(t *testing.T) {
	srv := newTestServer(t)
	token, _ := srv.register(t, "Alice", "alice@example.com")

	resp, _ := srv.do(t, http.MethodGet, "/api/auth/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	resp, body := srv.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK || body["name"] != "Alice" {
		t.Errorf("Expected profile, got %d: %v", resp.StatusCode, body)
	}

	resp, body = srv.do(t, http.MethodPut, "/api/auth/me", token, map[string]string{
		"name": "Alice B", "bio": "hi",
	})
	if resp.StatusCode != http.StatusOK || body["name"] != "Alice B" {
		t.Errorf("Expected updated profile, got %d: %v", resp.StatusCode, body)
	}
}

func TestCreateDM_Idempotent(t *testing.T) {
	srv := newTestServer(t)
	aliceToken, _ := srv.register(t, "Alice", "alice@example.com")
	_, bobID := srv.register(t, "Bob", "bob@example.com")

	resp, first := srv.do(t, http.MethodPost, "/api/chats/dm", aliceToken, map[string]string{"user_id": bobID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("CreateDM returned %d: %v", resp.StatusCode, first)
	}
	resp, second := srv.do(t, http.MethodPost, "/api/chats/dm", aliceToken, map[string]string{"user_id": bobID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Second CreateDM returned %d: %v", resp.StatusCode, second)
	}
	if first["id"] != second["id"] {
		t.Errorf("Expected same DM, got %v and %v", first["id"], second["id"])
	}
}

func TestCreateDM_SelfRejected(t *testing.T) {
	srv := newTestServer(t)
	aliceToken, aliceID := srv.register(t, "Alice", "alice@example.com")

	resp, _ := srv.do(t, http.MethodPost, "/api/chats/dm", aliceToken, map[string]string{"user_id": aliceID})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for self-DM, got %d", resp.StatusCode)
	}

	resp, body := srv.do(t, http.MethodGet, "/api/chats/", aliceToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ListChats returned %d: %v", resp.StatusCode, body)
	}
}

func TestGroupMembership(t *testing.T) {
	srv := newTestServer(t)
	aliceToken, _ := srv.register(t, "Alice", "alice@example.com")
	bobToken, bobID := srv.register(t, "Bob", "bob@example.com")
	_, carolID := srv.register(t, "Carol", "carol@example.com")

	resp, group := srv.do(t, http.MethodPost, "/api/chats/group", aliceToken, map[string]any{
		"name": "team", "member_ids": []string{bobID},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("CreateGroup returned %d: %v", resp.StatusCode, group)
	}
	chatID := group["id"].(string)

	// Non-admin cannot add members.
	resp, _ = srv.do(t, http.MethodPost, "/api/chats/"+chatID+"/members", bobToken, map[string]string{"user_id": carolID})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin add, got %d", resp.StatusCode)
	}

	resp, updated := srv.do(t, http.MethodPost, "/api/chats/"+chatID+"/members", aliceToken, map[string]string{"user_id": carolID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("AddMember returned %d: %v", resp.StatusCode, updated)
	}
	members := updated["members"].([]any)
	if len(members) != 3 {
		t.Errorf("Expected 3 members, got %v", members)
	}
}

func TestSendMessage_MembershipEnforced(t *testing.T) {
	srv := newTestServer(t)
	aliceToken, _ := srv.register(t, "Alice", "alice@example.com")
	_, bobID := srv.register(t, "Bob", "bob@example.com")
	outsiderToken, _ := srv.register(t, "Mallory", "mallory@example.com")

	_, group := srv.do(t, http.MethodPost, "/api/chats/group", aliceToken, map[string]any{
		"name": "team", "member_ids": []string{bobID},
	})
	chatID := group["id"].(string)

	resp, msg := srv.do(t, http.MethodPost, "/api/messages/"+chatID, aliceToken, map[string]string{"text": "hi"})
	if resp.StatusCode != http.StatusOK || msg["text"] != "hi" {
		t.Fatalf("SendMessage returned %d: %v", resp.StatusCode, msg)
	}

	resp, _ = srv.do(t, http.MethodPost, "/api/messages/"+chatID, outsiderToken, map[string]string{"text": "let me in"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for outsider, got %d", resp.StatusCode)
	}

	// History is member-only too.
	resp, _ = srv.do(t, http.MethodGet, "/api/messages/"+chatID, outsiderToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for outsider history, got %d", resp.StatusCode)
	}

	resp, _ = srv.do(t, http.MethodGet, "/api/messages/"+chatID, aliceToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for member history, got %d", resp.StatusCode)
	}
}

func TestReactEndpoint(t *testing.T) {
	srv := newTestServer(t)
	aliceToken, _ := srv.register(t, "Alice", "alice@example.com")
	bobToken, bobID := srv.register(t, "Bob", "bob@example.com")

	_, group := srv.do(t, http.MethodPost, "/api/chats/group", aliceToken, map[string]any{
		"name": "team", "member_ids": []string{bobID},
	})
	chatID := group["id"].(string)
	_, msg := srv.do(t, http.MethodPost, "/api/messages/"+chatID, aliceToken, map[string]string{"text": "hi"})
	messageID := msg["id"].(string)

	resp, reacted := srv.do(t, http.MethodPost, "/api/messages/"+chatID+"/"+messageID+"/react", bobToken,
		map[string]string{"emoji": "👍"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("React returned %d: %v", resp.StatusCode, reacted)
	}
	reactions := reacted["reactions"].([]any)
	if len(reactions) != 1 {
		t.Errorf("Expected 1 reaction, got %v", reactions)
	}
}

func TestRequestLifecycleEndpoints(t *testing.T) {
	srv := newTestServer(t)
	aliceToken, _ := srv.register(t, "Alice", "alice@example.com")
	agentToken, _ := srv.register(t, "Agent", "agent@example.com")

	resp, req := srv.do(t, http.MethodPost, "/api/requests/", aliceToken, map[string]string{
		"title": "broken", "description": "help",
	})
	if resp.StatusCode != http.StatusOK || req["status"] != "open" {
		t.Fatalf("CreateRequest returned %d: %v", resp.StatusCode, req)
	}
	requestID := req["id"].(string)

	resp, updated := srv.do(t, http.MethodPost, "/api/requests/"+requestID+"/solution", agentToken,
		map[string]string{"message": "try rebooting"})
	if resp.StatusCode != http.StatusOK || updated["status"] != "awaiting_info" {
		t.Fatalf("AddSolution returned %d: %v", resp.StatusCode, updated)
	}

	// Only the creator may close.
	resp, _ = srv.do(t, http.MethodPost, "/api/requests/"+requestID+"/close", agentToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for non-creator close, got %d", resp.StatusCode)
	}

	resp, closed := srv.do(t, http.MethodPost, "/api/requests/"+requestID+"/close", aliceToken, nil)
	if resp.StatusCode != http.StatusOK || closed["status"] != "closed" {
		t.Errorf("Expected closed request, got %d: %v", resp.StatusCode, closed)
	}

	// Agent view lists every request.
	respAll, _ := srv.do(t, http.MethodGet, "/api/requests/all", agentToken, nil)
	if respAll.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for agent list, got %d", respAll.StatusCode)
	}
}

func TestSearchEndpoint(t *testing.T) {
	srv := newTestServer(t)
	aliceToken, _ := srv.register(t, "Alice", "alice@example.com")
	_, bobID := srv.register(t, "Bob", "bob@example.com")
	outsiderToken, _ := srv.register(t, "Mallory", "mallory@example.com")

	_, group := srv.do(t, http.MethodPost, "/api/chats/group", aliceToken, map[string]any{
		"name": "release crew", "member_ids": []string{bobID},
	})
	chatID := group["id"].(string)
	srv.do(t, http.MethodPost, "/api/messages/"+chatID, aliceToken, map[string]string{"text": "ship the release"})
	srv.do(t, http.MethodPost, "/api/messages/"+chatID, aliceToken, map[string]string{"text": "unrelated"})

	resp, body := srv.do(t, http.MethodGet, "/api/search?q=release", aliceToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Search returned %d: %v", resp.StatusCode, body)
	}
	chats := body["chats"].([]any)
	messages := body["messages"].([]any)
	if len(chats) != 1 || len(messages) != 1 {
		t.Fatalf("Expected 1 chat and 1 message, got %v / %v", chats, messages)
	}
	if got := messages[0].(map[string]any)["text"]; got != "ship the release" {
		t.Errorf("Unexpected message match %v", got)
	}

	// Empty query matches nothing.
	resp, body = srv.do(t, http.MethodGet, "/api/search?q=", aliceToken, nil)
	if resp.StatusCode != http.StatusOK || len(body["chats"].([]any)) != 0 {
		t.Errorf("Expected empty result for empty query, got %d: %v", resp.StatusCode, body)
	}

	// Results are scoped to the caller's chats.
	resp, body = srv.do(t, http.MethodGet, "/api/search?q=release", outsiderToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Search returned %d: %v", resp.StatusCode, body)
	}
	if len(body["chats"].([]any)) != 0 || len(body["messages"].([]any)) != 0 {
		t.Errorf("Expected no results for non-member, got %v", body)
	}
}

func TestOnlineUsersEndpoint(t *testing.T) {
	srv := newTestServer(t)
	aliceToken, _ := srv.register(t, "Alice", "alice@example.com")
	_, bobID := srv.register(t, "Bob", "bob@example.com")

	// Simulate bob connecting to the hub.
	conn := realtime.NewConn(bobID)
	srv.hub.Register(conn)
	defer srv.hub.Unregister(conn)

	resp, _ := srv.do(t, http.MethodGet, "/api/users/online", aliceToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("OnlineUsers returned %d", resp.StatusCode)
	}
}
