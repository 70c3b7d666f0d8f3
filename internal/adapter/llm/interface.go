// Package llm provides the streaming text-generation backend.
package llm

import "context"

// Backend produces completions for a prompt.
type Backend interface {
	// StreamCompletion starts generating a reply to prompt. The returned Stream
	// must be closed by the caller, and its Recv returns once ctx is done.
	StreamCompletion(ctx context.Context, prompt string) (Stream, error)
}

// Stream is a lazy, finite sequence of text deltas.
type Stream interface {
	// Recv returns the next delta. It returns io.EOF once the backend reports
	// success and any other error on failure.
	Recv() (string, error)
	// Close stops the stream and releases the underlying connection. Recv must
	// not be called after Close.
	Close() error
}

// Ensure Client implements Backend interface.
var _ Backend = (*Client)(nil)
