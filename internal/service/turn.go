package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/streamchat/internal/domain"
	"github.com/xiaot623/gogo/streamchat/internal/policy"
)

// RunTurn executes one chat turn on the calling goroutine. Results are only
// reported through sink: a sequence of chunks followed by exactly one Done or
// Error event, unless the text is blank (no events) or the sink goes away.
func (s *Service) RunTurn(ctx context.Context, ref domain.ConversationRef, userText string, sink domain.Sink) {
	logger := log.With().
		Str("component", "orchestrator").
		Str("turn_id", uuid.NewString()[:8]).
		Stringer("conversation", ref).
		Logger()

	trimmed := strings.TrimSpace(userText)
	if trimmed == "" {
		logger.Debug().Msg("blank message, turn ignored")
		return
	}

	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	t := &turn{
		svc:    s,
		ref:    ref,
		text:   userText,
		out:    &emitter{sink: sink},
		logger: logger,
	}
	t.run(ctx, trimmed)
}

type turn struct {
	svc    *Service
	ref    domain.ConversationRef
	text   string
	out    *emitter
	logger zerolog.Logger
}

func (t *turn) run(ctx context.Context, trimmed string) {
	s := t.svc

	if reason, err := s.admit(ctx, t.ref, trimmed); err != nil {
		t.logger.Info().Err(err).Str("reason", reason).Msg("turn rejected")
		t.fail(ctx, reason)
		return
	}

	if id, ok := t.ref.Existing(); ok {
		unlock := s.locks.lock(id)
		defer unlock()
	}

	conv, err := s.resolve(ctx, t.ref, trimmed)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			id, _ := t.ref.Existing()
			t.notFound(ctx, id)
			return
		}
		t.logger.Error().Err(err).Msg("failed to resolve conversation")
		t.fail(ctx, "failed to save conversation: "+errors.Cause(err).Error())
		return
	}
	t.logger = t.logger.With().Int64("conversation_id", conv.ID).Logger()

	if _, existing := t.ref.Existing(); !existing {
		// The ID is visible to list and delete as soon as the row exists.
		unlock := s.locks.lock(conv.ID)
		defer unlock()
		if _, err := s.liveConversation(ctx, conv.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				t.notFound(ctx, conv.ID)
				return
			}
			t.logger.Error().Err(err).Msg("failed to reload conversation")
			t.fail(ctx, "failed to save conversation: "+errors.Cause(err).Error())
			return
		}
	}

	if _, err := s.history.CreateMessage(ctx, &domain.Message{
		ConversationID: conv.ID,
		Role:           domain.RoleUser,
		Content:        t.text,
		CreatedAt:      s.now(),
	}); err != nil {
		t.logger.Error().Err(err).Msg("failed to save user message")
		t.fail(ctx, "failed to save message: "+errors.Cause(err).Error())
		return
	}

	reply, ok := t.stream(ctx)
	if !ok {
		return
	}

	if err := s.finalize(ctx, conv.ID, reply); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			t.notFound(ctx, conv.ID)
			return
		}
		t.logger.Error().Err(err).Msg("failed to save assistant reply")
		t.fail(ctx, "failed to save assistant reply: "+errors.Cause(err).Error())
		return
	}

	if err := t.out.send(ctx, domain.DoneEvent()); err != nil {
		t.logger.Debug().Err(err).Msg("done event not delivered")
		return
	}
	t.logger.Info().Int("reply_chars", utf8.RuneCountInString(reply)).Msg("turn completed")
}

// stream forwards backend deltas to the sink and returns the accumulated
// reply. ok is false when the turn already ended.
func (t *turn) stream(ctx context.Context) (string, bool) {
	st, err := t.svc.backend.StreamCompletion(ctx, t.text)
	if err != nil {
		t.logger.Error().Err(err).Msg("backend stream failed to open")
		t.fail(ctx, "AI service error: "+errors.Cause(err).Error())
		return "", false
	}
	defer st.Close()

	var reply strings.Builder
	for {
		delta, err := st.Recv()
		if err == io.EOF {
			return reply.String(), true
		}
		if err != nil {
			t.logger.Error().Err(err).Msg("backend stream failed")
			t.fail(ctx, "AI service error: "+errors.Cause(err).Error())
			return "", false
		}

		reply.WriteString(delta)
		if err := t.out.send(ctx, domain.ChunkEvent(delta)); err != nil {
			t.logger.Warn().Err(err).Msg("sink closed mid-stream, abandoning turn")
			return "", false
		}
	}
}

func (t *turn) notFound(ctx context.Context, id int64) {
	t.logger.Info().Int64("id", id).Msg("conversation not found or deleted")
	t.fail(ctx, fmt.Sprintf("conversation not found or deleted: id=%d", id))
}

func (t *turn) fail(ctx context.Context, message string) {
	if err := t.out.send(ctx, domain.ErrorEvent(message)); err != nil {
		t.logger.Debug().Err(err).Msg("error event not delivered")
	}
}

// admit runs the admission policy. A non-nil error means the turn must not
// start; the returned reason is what the client is told.
func (s *Service) admit(ctx context.Context, ref domain.ConversationRef, trimmed string) (string, error) {
	if s.admitter == nil {
		return "", nil
	}
	_, existing := ref.Existing()
	decision, reason, err := s.admitter.Evaluate(ctx, policy.Input{
		ContentLength:    utf8.RuneCountInString(trimmed),
		MaxContentLength: s.maxInputChars,
		NewConversation:  !existing,
	})
	if err != nil {
		return "request denied: policy evaluation failed", errors.Wrap(err, "evaluate admission policy")
	}
	if decision != policy.DecisionDeny {
		return "", nil
	}
	if reason == "" {
		reason = "request denied by policy"
	}
	return reason, domain.ErrPolicyDenied
}

// resolve creates a new conversation or loads and touches an existing one.
func (s *Service) resolve(ctx context.Context, ref domain.ConversationRef, trimmed string) (*domain.Conversation, error) {
	now := s.now()

	id, ok := ref.Existing()
	if !ok {
		conv := &domain.Conversation{
			Title:     Title(trimmed),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := s.conversations.CreateConversation(ctx, conv); err != nil {
			return nil, errors.Wrap(err, "create conversation")
		}
		return conv, nil
	}

	conv, err := s.conversations.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.Deleted {
		return nil, domain.ErrNotFound
	}
	conv.UpdatedAt = now
	if err := s.conversations.UpdateConversation(ctx, conv); err != nil {
		return nil, errors.Wrap(err, "touch conversation")
	}
	return conv, nil
}

// finalize persists the assistant reply and bumps the conversation's
// UpdatedAt. It returns domain.ErrNotFound without writing anything when the
// conversation is no longer live.
func (s *Service) finalize(ctx context.Context, conversationID int64, reply string) error {
	conv, err := s.liveConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return errors.Wrap(err, "reload conversation")
	}

	if _, err := s.history.CreateMessage(ctx, &domain.Message{
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        reply,
		CreatedAt:      s.now(),
	}); err != nil {
		return errors.Wrap(err, "create assistant message")
	}

	conv.UpdatedAt = s.now()
	if err := s.conversations.UpdateConversation(ctx, conv); err != nil {
		return errors.Wrap(err, "touch conversation")
	}
	return nil
}

// emitter guards a turn's sink: nothing is sent after a terminal event or
// after the sink reported a failure.
type emitter struct {
	sink     domain.Sink
	finished bool
	broken   bool
}

func (e *emitter) send(ctx context.Context, ev domain.StreamEvent) error {
	if e.finished || e.broken {
		return domain.ErrSinkClosed
	}
	if ev.Terminal() {
		e.finished = true
		// Terminal events must reach the sink even when the turn deadline passed.
		ctx = context.WithoutCancel(ctx)
	}
	if err := e.sink.Send(ctx, ev); err != nil {
		e.broken = true
		return err
	}
	return nil
}
