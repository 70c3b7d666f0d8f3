// Package store defines the storage interfaces and implementations.
package store

import (
	"context"

	"github.com/xiaot623/gogo/streamchat/internal/domain"
)

// ConversationStore persists conversations.
type ConversationStore interface {
	// CreateConversation inserts c and returns its assigned ID (also set on c).
	CreateConversation(ctx context.Context, c *domain.Conversation) (int64, error)
	// GetConversation returns domain.ErrNotFound when no row exists. Soft-deleted
	// rows are returned with Deleted set.
	GetConversation(ctx context.Context, id int64) (*domain.Conversation, error)
	UpdateConversation(ctx context.Context, c *domain.Conversation) error
	// ListConversations orders by UpdatedAt descending.
	ListConversations(ctx context.Context, excludeDeleted bool) ([]domain.Conversation, error)
	SoftDeleteConversation(ctx context.Context, id int64) (bool, error)
}

// HistoryStore persists messages.
type HistoryStore interface {
	// CreateMessage inserts m and returns its assigned ID (also set on m).
	CreateMessage(ctx context.Context, m *domain.Message) (int64, error)
	// ListMessages orders by CreatedAt ascending, ties broken by ID.
	ListMessages(ctx context.Context, conversationID int64, excludeDeleted bool) ([]domain.Message, error)
	SoftDeleteMessages(ctx context.Context, conversationID int64) (bool, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	ConversationStore
	HistoryStore
	Close() error
}
