package llm

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"
)

// MockClient is a deterministic Backend for local runs and tests.
type MockClient struct {
	chunkSize int
}

// NewMockClient creates a new mock client.
func NewMockClient() *MockClient {
	return &MockClient{chunkSize: 10}
}

// Ensure MockClient implements Backend interface.
var _ Backend = (*MockClient)(nil)

// StreamCompletion streams a canned reply that quotes the prompt.
func (m *MockClient) StreamCompletion(ctx context.Context, prompt string) (Stream, error) {
	reply := fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(prompt, 100))
	return &sliceStream{ctx: ctx, chunks: splitIntoChunks(reply, m.chunkSize)}, nil
}

// sliceStream replays a fixed list of deltas.
type sliceStream struct {
	ctx    context.Context
	chunks []string
	pos    int
	closed bool
}

func (s *sliceStream) Recv() (string, error) {
	if s.closed {
		return "", io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// splitIntoChunks splits s into pieces of at most chunkSize runes.
func splitIntoChunks(s string, chunkSize int) []string {
	var chunks []string
	for len(s) > 0 {
		end, n := 0, 0
		for end < len(s) && n < chunkSize {
			_, size := utf8.DecodeRuneInString(s[end:])
			end += size
			n++
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}

// truncate truncates a string to the given number of runes.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
