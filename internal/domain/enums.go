// Package domain defines the core domain models for streamchat.
package domain

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// EventKind tags the variant of a StreamEvent.
type EventKind string

const (
	EventChunk EventKind = "chunk"
	EventDone  EventKind = "done"
	EventError EventKind = "error"
)
