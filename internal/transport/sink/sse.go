// Package sink adapts transports to domain.Sink.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/xiaot623/gogo/streamchat/internal/adapter/llm"
	"github.com/xiaot623/gogo/streamchat/internal/domain"
)

// sseChunk is the OpenAI-style chunk written for every text increment.
type sseChunk struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Created int64       `json:"created"`
	Model   string      `json:"model"`
	Choices []sseChoice `json:"choices"`
}

type sseChoice struct {
	Index        int      `json:"index"`
	Delta        sseDelta `json:"delta"`
	FinishReason *string  `json:"finish_reason"`
}

type sseDelta struct {
	Content string `json:"content"`
}

// SSE writes a single turn to one HTTP response as server-sent events. It
// closes itself after the terminal event.
type SSE struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	id      string
	model   string

	closed    chan struct{}
	closeOnce sync.Once
}

// NewSSE binds a sink to w. model is reported in every chunk.
func NewSSE(w io.Writer, flusher http.Flusher, model string) *SSE {
	return &SSE{
		w:       w,
		flusher: flusher,
		id:      "chatcmpl-" + uuid.NewString()[:8],
		model:   model,
		closed:  make(chan struct{}),
	}
}

// Send writes one event as a "data:" frame.
func (s *SSE) Send(_ context.Context, ev domain.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return domain.ErrSinkClosed
	default:
	}

	payload, err := s.encode(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		s.Close()
		return errors.Wrapf(domain.ErrSinkClosed, "write: %v", err)
	}
	s.flusher.Flush()

	if ev.Terminal() {
		s.Close()
	}
	return nil
}

func (s *SSE) encode(ev domain.StreamEvent) ([]byte, error) {
	switch ev.Kind {
	case domain.EventChunk:
		return json.Marshal(sseChunk{
			ID:      s.id,
			Object:  "chat.completion.chunk",
			Created: time.Now().Unix(),
			Model:   s.model,
			Choices: []sseChoice{{Delta: sseDelta{Content: ev.Text}}},
		})
	case domain.EventDone:
		return []byte("[DONE]"), nil
	case domain.EventError:
		return json.Marshal(llm.ErrorResponse{
			Error: &llm.APIError{Message: ev.Message, Type: "invalid_request_error"},
		})
	}
	return nil, errors.Errorf("unknown event kind %q", ev.Kind)
}

// Close stops the sink. Later sends return domain.ErrSinkClosed.
func (s *SSE) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Closed is closed once the sink accepts no more events.
func (s *SSE) Closed() <-chan struct{} {
	return s.closed
}
