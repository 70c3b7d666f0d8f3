package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/streamchat/internal/adapter/llm"
	"github.com/xiaot623/gogo/streamchat/internal/domain"
	store "github.com/xiaot623/gogo/streamchat/internal/repository"
)

var errInjected = errors.New("disk full")

// scriptedBackend replays fixed deltas, optionally failing to open or failing
// after failAfter deltas.
type scriptedBackend struct {
	mu        sync.Mutex
	deltas    []string
	openErr   error
	failAfter int
	failErr   error
	prompts   []string
	streams   []*scriptedStream
}

func newScriptedBackend(deltas ...string) *scriptedBackend {
	return &scriptedBackend{deltas: deltas, failAfter: -1}
}

func (b *scriptedBackend) StreamCompletion(ctx context.Context, prompt string) (llm.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, prompt)
	if b.openErr != nil {
		return nil, b.openErr
	}
	st := &scriptedStream{deltas: b.deltas, failAfter: b.failAfter, failErr: b.failErr}
	b.streams = append(b.streams, st)
	return st, nil
}

type scriptedStream struct {
	mu        sync.Mutex
	deltas    []string
	failAfter int
	failErr   error
	recvs     int
	closed    bool
}

func (s *scriptedStream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", io.EOF
	}
	n := s.recvs
	s.recvs++
	if s.failAfter >= 0 && n == s.failAfter {
		return "", s.failErr
	}
	if n >= len(s.deltas) {
		return "", io.EOF
	}
	return s.deltas[n], nil
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// recordingSink keeps every accepted event. With limit > 0 it behaves like a
// destination that goes away after limit events.
type recordingSink struct {
	mu       sync.Mutex
	limit    int
	events   []domain.StreamEvent
	rejected int
}

func (r *recordingSink) Send(_ context.Context, ev domain.StreamEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.events) >= r.limit {
		r.rejected++
		return domain.ErrSinkClosed
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) Events() []domain.StreamEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.StreamEvent(nil), r.events...)
}

// faultyStore injects failures into an in-memory SQLite store.
type faultyStore struct {
	*store.SQLiteStore
	failCreateConversation bool
	failMessageRole        domain.Role
	failUpdateConversation bool
}

func (f *faultyStore) CreateConversation(ctx context.Context, c *domain.Conversation) (int64, error) {
	if f.failCreateConversation {
		return 0, errInjected
	}
	return f.SQLiteStore.CreateConversation(ctx, c)
}

func (f *faultyStore) UpdateConversation(ctx context.Context, c *domain.Conversation) error {
	if f.failUpdateConversation {
		return errInjected
	}
	return f.SQLiteStore.UpdateConversation(ctx, c)
}

func (f *faultyStore) CreateMessage(ctx context.Context, m *domain.Message) (int64, error) {
	if f.failMessageRole != "" && m.Role == f.failMessageRole {
		return 0, errInjected
	}
	return f.SQLiteStore.CreateMessage(ctx, m)
}

// stepClock advances one second on every reading.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) *faultyStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return &faultyStore{SQLiteStore: st}
}

func newTestService(t *testing.T, backend llm.Backend, opts ...Option) (*Service, *faultyStore) {
	t.Helper()
	st := newTestStore(t)
	clock := &stepClock{t: time.Date(2026, 1, 14, 14, 33, 45, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(st, st, backend, opts...), st
}

func allConversations(t *testing.T, st *faultyStore) []domain.Conversation {
	t.Helper()
	convs, err := st.ListConversations(context.Background(), false)
	require.NoError(t, err)
	return convs
}

func allMessages(t *testing.T, st *faultyStore, id int64) []domain.Message {
	t.Helper()
	msgs, err := st.ListMessages(context.Background(), id, false)
	require.NoError(t, err)
	return msgs
}

func requireSingleTerminal(t *testing.T, events []domain.StreamEvent) {
	t.Helper()
	require.NotEmpty(t, events)
	for i, ev := range events {
		if i < len(events)-1 {
			require.Equal(t, domain.EventChunk, ev.Kind, "event %d", i)
		}
	}
	require.True(t, events[len(events)-1].Terminal())
}
