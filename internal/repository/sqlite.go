package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/streamchat/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	// SQLite allows one writer at a time. A single pooled connection queues
	// writers in database/sql instead of failing them with "database is locked",
	// and keeps in-memory databases from splitting across connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable foreign keys")
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate database")
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(deleted, updated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			deleted INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at, id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation creates a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, c *domain.Conversation) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (title, created_at, updated_at, deleted) VALUES (?, ?, ?, ?)`,
		c.Title, c.CreatedAt.UTC(), c.UpdatedAt.UTC(), boolToInt(c.Deleted))
	if err != nil {
		return 0, errors.Wrap(err, "insert conversation")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "conversation id")
	}
	c.ID = id
	return id, nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	var c domain.Conversation
	var deleted int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at, deleted FROM conversations WHERE id = ?`,
		id).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &deleted)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(domain.ErrNotFound, "conversation %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select conversation")
	}
	c.Deleted = deleted != 0
	return &c, nil
}

// UpdateConversation overwrites the mutable fields of a conversation.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, c *domain.Conversation) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ?, deleted = ? WHERE id = ?`,
		c.Title, c.UpdatedAt.UTC(), boolToInt(c.Deleted), c.ID)
	if err != nil {
		return errors.Wrap(err, "update conversation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update conversation")
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrNotFound, "conversation %d", c.ID)
	}
	return nil
}

// ListConversations lists conversations, most recently updated first.
func (s *SQLiteStore) ListConversations(ctx context.Context, excludeDeleted bool) ([]domain.Conversation, error) {
	query := `SELECT id, title, created_at, updated_at, deleted FROM conversations`
	if excludeDeleted {
		query += ` WHERE deleted = 0`
	}
	query += ` ORDER BY updated_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()

	conversations := []domain.Conversation{}
	for rows.Next() {
		var c domain.Conversation
		var deleted int
		if err := rows.Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &deleted); err != nil {
			return nil, errors.Wrap(err, "scan conversation")
		}
		c.Deleted = deleted != 0
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

// SoftDeleteConversation marks a conversation deleted. It reports false when
// no live conversation had that ID.
func (s *SQLiteStore) SoftDeleteConversation(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET deleted = 1 WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return false, errors.Wrap(err, "delete conversation")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "delete conversation")
	}
	return n > 0, nil
}

// CreateMessage creates a new message.
func (s *SQLiteStore) CreateMessage(ctx context.Context, m *domain.Message) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at, deleted) VALUES (?, ?, ?, ?, ?)`,
		m.ConversationID, string(m.Role), m.Content, m.CreatedAt.UTC(), boolToInt(m.Deleted))
	if err != nil {
		return 0, errors.Wrap(err, "insert message")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "message id")
	}
	m.ID = id
	return id, nil
}

// ListMessages retrieves the messages of a conversation in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64, excludeDeleted bool) ([]domain.Message, error) {
	query := `SELECT id, conversation_id, role, content, created_at, deleted FROM messages WHERE conversation_id = ?`
	if excludeDeleted {
		query += ` AND deleted = 0`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var role string
		var deleted int
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.CreatedAt, &deleted); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		msg.Role = domain.Role(role)
		msg.Deleted = deleted != 0
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// SoftDeleteMessages marks every message of a conversation deleted.
func (s *SQLiteStore) SoftDeleteMessages(ctx context.Context, conversationID int64) (bool, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE messages SET deleted = 1 WHERE conversation_id = ? AND deleted = 0`, conversationID); err != nil {
		return false, errors.Wrap(err, "delete messages")
	}
	return true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
