// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/avdeev/chatwire/internal/domain"
)

// Repository defines the durable storage consumed by the delivery and API
// layers. Lookup methods return (nil, nil) when the entity does not exist;
// callers decide whether absence is an error.
type Repository interface {
	// CreateUser inserts a new account. Returns domain.ErrEmailTaken if the
	// email is already registered.
	CreateUser(ctx context.Context, user *domain.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// GetUserByEmail retrieves a user by email address.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdateProfile updates the mutable profile fields of a user.
	UpdateProfile(ctx context.Context, userID, name, bio, avatarURL string) (*domain.User, error)

	// SearchUsers finds users whose name or email contains q, excluding
	// excludeID. An empty q matches everyone.
	SearchUsers(ctx context.Context, excludeID, q string, limit int) ([]*domain.User, error)

	// ListUsersByIDs retrieves the users with the given IDs, skipping unknowns.
	ListUsersByIDs(ctx context.Context, ids []string) ([]*domain.User, error)

	// CreateChat inserts a chat together with its member and admin lists.
	CreateChat(ctx context.Context, chat *domain.Chat) error

	// GetChat retrieves a chat with members and admins populated.
	GetChat(ctx context.Context, chatID string) (*domain.Chat, error)

	// FindDirectChat finds the existing 1:1 chat between two users, if any.
	FindDirectChat(ctx context.Context, userA, userB string) (*domain.Chat, error)

	// ListChatsForUser lists chats the user belongs to, most recent activity first.
	ListChatsForUser(ctx context.Context, userID string) ([]*domain.Chat, error)

	// SearchChats finds the user's chats matching q: group chats whose name
	// contains q, direct chats unconditionally.
	SearchChats(ctx context.Context, userID, q string, limit int) ([]*domain.Chat, error)

	// AddChatMember adds a user to a chat; a no-op if already a member.
	AddChatMember(ctx context.Context, chatID, userID string) error

	// RemoveChatMember removes a user from a chat's members and admins.
	RemoveChatMember(ctx context.Context, chatID, userID string) error

	// SetChatAdmin grants or revokes admin on an existing member.
	SetChatAdmin(ctx context.Context, chatID, userID string, admin bool) error

	// TouchChatActivity updates the chat's last-activity timestamp.
	TouchChatActivity(ctx context.Context, chatID string, at time.Time) error

	// CreateMessage inserts a message.
	CreateMessage(ctx context.Context, msg *domain.Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, messageID string) (*domain.Message, error)

	// ListMessages returns up to limit messages of a chat created before the
	// given time (zero means no bound), oldest first.
	ListMessages(ctx context.Context, chatID string, before time.Time, limit int) ([]*domain.Message, error)

	// SearchMessages finds messages whose text contains q across the user's
	// chats, newest first.
	SearchMessages(ctx context.Context, userID, q string, limit int) ([]*domain.Message, error)

	// UpsertReaction sets the user's reaction on a message, replacing any
	// prior reaction by the same user, and returns the updated message.
	UpsertReaction(ctx context.Context, messageID, userID, emoji string) (*domain.Message, error)

	// CreateRequest inserts a support request.
	CreateRequest(ctx context.Context, req *domain.Request) error

	// GetRequest retrieves a support request by ID.
	GetRequest(ctx context.Context, requestID string) (*domain.Request, error)

	// ListRequestsForUser lists requests created by or assigned to the user,
	// most recently updated first.
	ListRequestsForUser(ctx context.Context, userID string) ([]*domain.Request, error)

	// ListAllRequests lists every request, most recently updated first.
	ListAllRequests(ctx context.Context) ([]*domain.Request, error)

	// AppendSolution appends a solution entry and moves the request to
	// awaiting_info, returning the updated request.
	AppendSolution(ctx context.Context, requestID string, entry domain.SolutionEntry) (*domain.Request, error)

	// SetRequestStatus updates the request status and returns the updated request.
	SetRequestStatus(ctx context.Context, requestID, status string) (*domain.Request, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
