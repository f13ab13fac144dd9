package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
	_ "modernc.org/sqlite"

	"github.com/avdeev/chatwire/internal/domain"
	"github.com/avdeev/chatwire/internal/shared"
)

// conflictRetries bounds SQLITE_BUSY retries on the read-modify-write
// transactions (reaction upserts, solution appends).
const conflictRetries = 5

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency. The _pragma
	// params apply to every pooled connection; _txlock=immediate makes
	// transactions take the write lock up front so concurrent
	// read-modify-write transactions queue on the busy timeout instead of
	// failing on upgrade.
	dsn := dbPath + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		avatar_url TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		is_group INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL DEFAULT '',
		last_message_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_members (
		chat_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		is_admin INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (chat_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		attachments_json TEXT,
		reactions_json TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		created_by TEXT NOT NULL,
		assigned_to TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'open',
		solutions_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_requests_updated ON requests(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new account.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, name, email, password_hash, avatar_url, bio, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash,
		user.AvatarURL, user.Bio, user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if shared.IsSQLiteConstraintError(err) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*domain.User, error) {
	var user domain.User
	var createdAt, updatedAt int64

	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&user.AvatarURL, &user.Bio, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT id, name, email, password_hash, avatar_url, bio, created_at, updated_at
		FROM users WHERE id = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, userID))
}

// GetUserByEmail retrieves a user by email address.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, name, email, password_hash, avatar_url, bio, created_at, updated_at
		FROM users WHERE email = ?`
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// UpdateProfile updates the mutable profile fields of a user.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, userID, name, bio, avatarURL string) (*domain.User, error) {
	query := `
	UPDATE users SET name = ?, bio = ?, avatar_url = ?, updated_at = ?
	WHERE id = ?`

	res, err := s.db.ExecContext(ctx, query, name, bio, avatarURL, time.Now().Unix(), userID)
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetUser(ctx, userID)
}

// SearchUsers finds users whose name or email contains q, excluding excludeID.
func (s *SQLiteStore) SearchUsers(ctx context.Context, excludeID, q string, limit int) ([]*domain.User, error) {
	query := `
		SELECT id, name, email, password_hash, avatar_url, bio, created_at, updated_at
		FROM users
		WHERE id != ? AND (name LIKE ? OR email LIKE ?)
		ORDER BY name LIMIT ?`
	pattern := "%" + q + "%"

	rows, err := s.db.QueryContext(ctx, query, excludeID, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

// ListUsersByIDs retrieves the users with the given IDs.
func (s *SQLiteStore) ListUsersByIDs(ctx context.Context, ids []string) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := ""
	args := make([]any, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, id)
	}

	query := `
		SELECT id, name, email, password_hash, avatar_url, bio, created_at, updated_at
		FROM users WHERE id IN (` + placeholders + `) ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users by ids: %w", err)
	}
	defer rows.Close()

	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]*domain.User, error) {
	var users []*domain.User
	for rows.Next() {
		var user domain.User
		var createdAt, updatedAt int64
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash,
			&user.AvatarURL, &user.Bio, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		user.CreatedAt = time.Unix(createdAt, 0)
		user.UpdatedAt = time.Unix(updatedAt, 0)
		users = append(users, &user)
	}
	return users, rows.Err()
}

// CreateChat inserts a chat together with its member and admin lists.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *domain.Chat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin chat insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chats (id, is_group, name, last_message_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		chat.ID, boolToInt(chat.IsGroup), chat.Name,
		chat.LastMessageAt.Unix(), chat.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}

	for _, member := range lo.Uniq(chat.Members) {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id, is_admin) VALUES (?, ?, ?)`,
			chat.ID, member, boolToInt(chat.HasAdmin(member)),
		)
		if err != nil {
			return fmt.Errorf("insert chat member: %w", err)
		}
	}

	return tx.Commit()
}

// GetChat retrieves a chat with members and admins populated.
func (s *SQLiteStore) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, is_group, name, last_message_at, created_at FROM chats WHERE id = ?`, chatID)

	var chat domain.Chat
	var isGroup int
	var lastMessageAt, createdAt int64
	err := row.Scan(&chat.ID, &isGroup, &chat.Name, &lastMessageAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat row: %w", err)
	}
	chat.IsGroup = isGroup != 0
	chat.LastMessageAt = time.Unix(lastMessageAt, 0)
	chat.CreatedAt = time.Unix(createdAt, 0)

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, is_admin FROM chat_members WHERE chat_id = ? ORDER BY user_id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query chat members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var isAdmin int
		if err := rows.Scan(&userID, &isAdmin); err != nil {
			return nil, fmt.Errorf("scan chat member: %w", err)
		}
		chat.Members = append(chat.Members, userID)
		if isAdmin != 0 {
			chat.Admins = append(chat.Admins, userID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &chat, nil
}

// FindDirectChat finds the existing 1:1 chat between two users, if any.
func (s *SQLiteStore) FindDirectChat(ctx context.Context, userA, userB string) (*domain.Chat, error) {
	query := `
		SELECT c.id FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		WHERE c.is_group = 0 AND m.user_id IN (?, ?)
		GROUP BY c.id
		HAVING COUNT(DISTINCT m.user_id) = 2
		   AND (SELECT COUNT(*) FROM chat_members WHERE chat_id = c.id) = 2
		LIMIT 1`

	var chatID string
	err := s.db.QueryRowContext(ctx, query, userA, userB).Scan(&chatID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find direct chat: %w", err)
	}
	return s.GetChat(ctx, chatID)
}

// ListChatsForUser lists chats the user belongs to, most recent activity first.
func (s *SQLiteStore) ListChatsForUser(ctx context.Context, userID string) ([]*domain.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		WHERE m.user_id = ?
		ORDER BY c.last_message_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chats := make([]*domain.Chat, 0, len(ids))
	for _, id := range ids {
		chat, err := s.GetChat(ctx, id)
		if err != nil {
			return nil, err
		}
		if chat != nil {
			chats = append(chats, chat)
		}
	}
	return chats, nil
}

// SearchChats finds the user's chats matching q: group chats by name,
// direct chats always (their display name is the peer, resolved client-side).
func (s *SQLiteStore) SearchChats(ctx context.Context, userID, q string, limit int) ([]*domain.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		WHERE m.user_id = ? AND (c.is_group = 0 OR c.name LIKE ?)
		ORDER BY c.last_message_at DESC LIMIT ?`, userID, "%"+q+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search chats: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chats := make([]*domain.Chat, 0, len(ids))
	for _, id := range ids {
		chat, err := s.GetChat(ctx, id)
		if err != nil {
			return nil, err
		}
		if chat != nil {
			chats = append(chats, chat)
		}
	}
	return chats, nil
}

// AddChatMember adds a user to a chat; a no-op if already a member.
func (s *SQLiteStore) AddChatMember(ctx context.Context, chatID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id, is_admin) VALUES (?, ?, 0)
		 ON CONFLICT(chat_id, user_id) DO NOTHING`, chatID, userID)
	if err != nil {
		return fmt.Errorf("add chat member: %w", err)
	}
	return nil
}

// RemoveChatMember removes a user from a chat's members and admins.
func (s *SQLiteStore) RemoveChatMember(ctx context.Context, chatID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_members WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return fmt.Errorf("remove chat member: %w", err)
	}
	return nil
}

// SetChatAdmin grants or revokes admin on an existing member.
func (s *SQLiteStore) SetChatAdmin(ctx context.Context, chatID, userID string, admin bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_members SET is_admin = ? WHERE chat_id = ? AND user_id = ?`,
		boolToInt(admin), chatID, userID)
	if err != nil {
		return fmt.Errorf("set chat admin: %w", err)
	}
	return nil
}

// TouchChatActivity updates the chat's last-activity timestamp.
func (s *SQLiteStore) TouchChatActivity(ctx context.Context, chatID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET last_message_at = ? WHERE id = ?`, at.Unix(), chatID)
	if err != nil {
		return fmt.Errorf("touch chat activity: %w", err)
	}
	return nil
}

// CreateMessage inserts a message. Timestamps are stored at nanosecond
// resolution so per-chat ordering follows creation order.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *domain.Message) error {
	attachments, err := marshalJSON(msg.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	reactions, err := marshalJSON(msg.Reactions)
	if err != nil {
		return fmt.Errorf("encode reactions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender, text, attachments_json, reactions_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatID, msg.Sender, msg.Text, attachments, reactions, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func scanMessage(scan func(dest ...any) error) (*domain.Message, error) {
	var msg domain.Message
	var attachments, reactions sql.NullString
	var createdAt int64

	err := scan(&msg.ID, &msg.ChatID, &msg.Sender, &msg.Text, &attachments, &reactions, &createdAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(attachments, &msg.Attachments); err != nil {
		return nil, fmt.Errorf("decode attachments: %w", err)
	}
	if err := unmarshalJSON(reactions, &msg.Reactions); err != nil {
		return nil, fmt.Errorf("decode reactions: %w", err)
	}
	msg.CreatedAt = time.Unix(0, createdAt)
	return &msg, nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*domain.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, sender, text, attachments_json, reactions_json, created_at
		FROM messages WHERE id = ?`, messageID)

	msg, err := scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}
	return msg, nil
}

// ListMessages returns up to limit messages created before the given time,
// oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID string, before time.Time, limit int) ([]*domain.Message, error) {
	cutoff := int64(1<<63 - 1)
	if !before.IsZero() {
		cutoff = before.UnixNano()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, sender, text, attachments_json, reactions_json, created_at
		FROM messages WHERE chat_id = ? AND created_at < ?
		ORDER BY created_at DESC LIMIT ?`, chatID, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first for the LIMIT; callers want oldest first.
	lo.Reverse(messages)
	return messages, nil
}

// SearchMessages finds messages whose text contains q across every chat the
// user belongs to, newest first.
func (s *SQLiteStore) SearchMessages(ctx context.Context, userID, q string, limit int) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.chat_id, m.sender, m.text, m.attachments_json, m.reactions_json, m.created_at
		FROM messages m
		JOIN chat_members cm ON cm.chat_id = m.chat_id
		WHERE cm.user_id = ? AND m.text LIKE ?
		ORDER BY m.created_at DESC LIMIT ?`, userID, "%"+q+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UpsertReaction sets the user's reaction on a message, replacing any prior
// reaction by the same user.
func (s *SQLiteStore) UpsertReaction(ctx context.Context, messageID, userID, emoji string) (*domain.Message, error) {
	var msg *domain.Message
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		msg, err = s.upsertReactionOnce(ctx, messageID, userID, emoji)
		if !shared.IsSQLiteConflictError(err) {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return msg, err
}

func (s *SQLiteStore) upsertReactionOnce(ctx context.Context, messageID, userID, emoji string) (*domain.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reaction upsert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRowContext(ctx, `
		SELECT id, chat_id, sender, text, attachments_json, reactions_json, created_at
		FROM messages WHERE id = ?`, messageID)

	msg, err := scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}

	msg.SetReaction(userID, emoji)
	reactions, err := marshalJSON(msg.Reactions)
	if err != nil {
		return nil, fmt.Errorf("encode reactions: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET reactions_json = ? WHERE id = ?`, reactions, messageID); err != nil {
		return nil, fmt.Errorf("update reactions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reaction upsert: %w", err)
	}
	return msg, nil
}

// CreateRequest inserts a support request.
func (s *SQLiteStore) CreateRequest(ctx context.Context, req *domain.Request) error {
	solutions, err := marshalJSON(req.Solutions)
	if err != nil {
		return fmt.Errorf("encode solutions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO requests (id, created_by, assigned_to, title, description, status, solutions_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.CreatedBy, req.AssignedTo, req.Title, req.Description,
		req.Status, solutions, req.CreatedAt.Unix(), req.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func scanRequest(scan func(dest ...any) error) (*domain.Request, error) {
	var req domain.Request
	var solutions sql.NullString
	var createdAt, updatedAt int64

	err := scan(&req.ID, &req.CreatedBy, &req.AssignedTo, &req.Title,
		&req.Description, &req.Status, &solutions, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSON(solutions, &req.Solutions); err != nil {
		return nil, fmt.Errorf("decode solutions: %w", err)
	}
	req.CreatedAt = time.Unix(createdAt, 0)
	req.UpdatedAt = time.Unix(updatedAt, 0)
	return &req, nil
}

// GetRequest retrieves a support request by ID.
func (s *SQLiteStore) GetRequest(ctx context.Context, requestID string) (*domain.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_by, assigned_to, title, description, status, solutions_json, created_at, updated_at
		FROM requests WHERE id = ?`, requestID)

	req, err := scanRequest(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan request row: %w", err)
	}
	return req, nil
}

func (s *SQLiteStore) listRequests(ctx context.Context, query string, args ...any) ([]*domain.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []*domain.Request
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan request row: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// ListRequestsForUser lists requests created by or assigned to the user.
func (s *SQLiteStore) ListRequestsForUser(ctx context.Context, userID string) ([]*domain.Request, error) {
	return s.listRequests(ctx, `
		SELECT id, created_by, assigned_to, title, description, status, solutions_json, created_at, updated_at
		FROM requests WHERE created_by = ? OR assigned_to = ?
		ORDER BY updated_at DESC`, userID, userID)
}

// ListAllRequests lists every request, most recently updated first.
func (s *SQLiteStore) ListAllRequests(ctx context.Context) ([]*domain.Request, error) {
	return s.listRequests(ctx, `
		SELECT id, created_by, assigned_to, title, description, status, solutions_json, created_at, updated_at
		FROM requests ORDER BY updated_at DESC`)
}

// AppendSolution appends a solution entry and moves the request to
// awaiting_info. The read and the update run in one transaction so
// concurrent appends to the same request never overwrite each other.
func (s *SQLiteStore) AppendSolution(ctx context.Context, requestID string, entry domain.SolutionEntry) (*domain.Request, error) {
	var req *domain.Request
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		req, err = s.appendSolutionOnce(ctx, requestID, entry)
		if !shared.IsSQLiteConflictError(err) {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
	}
	return req, err
}

func (s *SQLiteStore) appendSolutionOnce(ctx context.Context, requestID string, entry domain.SolutionEntry) (*domain.Request, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin solution append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRowContext(ctx, `
		SELECT id, created_by, assigned_to, title, description, status, solutions_json, created_at, updated_at
		FROM requests WHERE id = ?`, requestID)

	req, err := scanRequest(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan request row: %w", err)
	}

	req.Solutions = append(req.Solutions, entry)
	req.Status = domain.RequestAwaitingInfo
	req.UpdatedAt = time.Now()

	solutions, err := marshalJSON(req.Solutions)
	if err != nil {
		return nil, fmt.Errorf("encode solutions: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE requests SET solutions_json = ?, status = ?, updated_at = ? WHERE id = ?`,
		solutions, req.Status, req.UpdatedAt.Unix(), requestID); err != nil {
		return nil, fmt.Errorf("append solution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit solution append: %w", err)
	}
	return req, nil
}

// SetRequestStatus updates the request status.
func (s *SQLiteStore) SetRequestStatus(ctx context.Context, requestID, status string) (*domain.Request, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil || req == nil {
		return nil, err
	}

	req.Status = status
	req.UpdatedAt = time.Now()

	_, err = s.db.ExecContext(ctx,
		`UPDATE requests SET status = ?, updated_at = ? WHERE id = ?`,
		status, req.UpdatedAt.Unix(), requestID)
	if err != nil {
		return nil, fmt.Errorf("set request status: %w", err)
	}
	return req, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalJSON(v any) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalJSON(src sql.NullString, dst any) error {
	if !src.Valid || src.String == "" || src.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(src.String), dst)
}
