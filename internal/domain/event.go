package domain

import "context"

// StreamEvent is one transient event of a turn. Kind selects which fields are
// meaningful: Text for EventChunk, Message for EventError.
type StreamEvent struct {
	Kind    EventKind
	Text    string
	Message string
}

// ChunkEvent carries one increment of generated text.
func ChunkEvent(text string) StreamEvent {
	return StreamEvent{Kind: EventChunk, Text: text}
}

// DoneEvent marks successful completion of a turn.
func DoneEvent() StreamEvent {
	return StreamEvent{Kind: EventDone}
}

// ErrorEvent marks a failed turn.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Kind: EventError, Message: message}
}

// Terminal reports whether no further events may follow e within a turn.
func (e StreamEvent) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// Sink is the destination of a turn's events. Implementations return
// ErrSinkClosed once the destination can no longer accept events.
type Sink interface {
	Send(ctx context.Context, ev StreamEvent) error
}
