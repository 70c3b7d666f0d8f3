// Package service implements the streaming chat orchestrator and the
// conversation operations around it.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/streamchat/internal/adapter/llm"
	"github.com/xiaot623/gogo/streamchat/internal/domain"
	"github.com/xiaot623/gogo/streamchat/internal/policy"
	store "github.com/xiaot623/gogo/streamchat/internal/repository"
)

// Admitter decides whether a turn may start.
type Admitter interface {
	Evaluate(ctx context.Context, input policy.Input) (decision string, reason string, err error)
}

// Service runs chat turns against the stores and the generation backend.
type Service struct {
	conversations store.ConversationStore
	history       store.HistoryStore
	backend       llm.Backend

	admitter      Admitter
	maxInputChars int
	turnTimeout   time.Duration
	now           func() time.Time

	locks    *keyedMutex
	workers  sync.WaitGroup
	stopping context.Context
	stop     context.CancelFunc
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAdmitter installs an admission policy; maxInputChars is passed to it as
// the content limit.
func WithAdmitter(a Admitter, maxInputChars int) Option {
	return func(s *Service) {
		s.admitter = a
		s.maxInputChars = maxInputChars
	}
}

// WithTurnTimeout bounds each turn. Zero means no bound.
func WithTurnTimeout(d time.Duration) Option {
	return func(s *Service) { s.turnTimeout = d }
}

// New creates a Service.
func New(conversations store.ConversationStore, history store.HistoryStore, backend llm.Backend, opts ...Option) *Service {
	s := &Service{
		conversations: conversations,
		history:       history,
		backend:       backend,
		now:           time.Now,
		locks:         newKeyedMutex(),
	}
	s.stopping, s.stop = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch runs a turn on its own goroutine. The returned channel is closed
// when the turn has finished.
func (s *Service) Dispatch(ctx context.Context, ref domain.ConversationRef, userText string, sink domain.Sink) <-chan struct{} {
	done := make(chan struct{})
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("component", "orchestrator").Interface("panic", r).Msg("turn worker panicked")
			}
		}()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		defer context.AfterFunc(s.stopping, cancel)()
		s.RunTurn(ctx, ref, userText, sink)
	}()
	return done
}

// Wait blocks until every dispatched turn has finished.
func (s *Service) Wait() {
	s.workers.Wait()
}

// Shutdown waits for dispatched turns to finish. When ctx is done first, the
// remaining turns are cancelled and Shutdown returns ctx.Err() once they have
// ended.
func (s *Service) Shutdown(ctx context.Context) error {
	idle := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(idle)
	}()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
	}
	log.Warn().Str("component", "orchestrator").Msg("shutdown deadline reached, cancelling in-flight turns")
	s.stop()
	<-idle
	return ctx.Err()
}
