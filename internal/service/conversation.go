package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/streamchat/internal/domain"
)

// ListConversations returns the live conversations, most recently active first.
func (s *Service) ListConversations(ctx context.Context) ([]domain.Conversation, error) {
	convs, err := s.conversations.ListConversations(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	return convs, nil
}

// RenameConversation replaces the title of a live conversation.
func (s *Service) RenameConversation(ctx context.Context, id int64, title string) (*domain.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "title is required")
	}

	unlock := s.locks.lock(id)
	defer unlock()

	conv, err := s.liveConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Title = title
	conv.UpdatedAt = s.now()
	if err := s.conversations.UpdateConversation(ctx, conv); err != nil {
		return nil, errors.Wrap(err, "rename conversation")
	}
	return conv, nil
}

// DeleteConversation soft-deletes a conversation and its messages. It returns
// domain.ErrNotFound when there was nothing to delete.
func (s *Service) DeleteConversation(ctx context.Context, id int64) error {
	unlock := s.locks.lock(id)
	defer unlock()

	if _, err := s.liveConversation(ctx, id); err != nil {
		return err
	}
	if _, err := s.history.SoftDeleteMessages(ctx, id); err != nil {
		return errors.Wrap(err, "delete messages")
	}
	deleted, err := s.conversations.SoftDeleteConversation(ctx, id)
	if err != nil {
		return errors.Wrap(err, "delete conversation")
	}
	if !deleted {
		return domain.ErrNotFound
	}
	log.Info().Str("component", "orchestrator").Int64("conversation_id", id).Msg("conversation deleted")
	return nil
}

// History returns the live messages of a live conversation in order.
func (s *Service) History(ctx context.Context, id int64) ([]domain.Message, error) {
	if _, err := s.liveConversation(ctx, id); err != nil {
		return nil, err
	}
	msgs, err := s.history.ListMessages(ctx, id, true)
	if err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	return msgs, nil
}

func (s *Service) liveConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.Deleted {
		return nil, domain.ErrNotFound
	}
	return conv, nil
}
