package domain

import "fmt"

// ConversationRef says which conversation a turn belongs to: either a new one,
// created when the turn starts, or an existing one by ID.
type ConversationRef struct {
	id       int64
	existing bool
}

// NewConversation refers to a conversation that does not exist yet.
func NewConversation() ConversationRef {
	return ConversationRef{}
}

// ExistingConversation refers to a stored conversation.
func ExistingConversation(id int64) ConversationRef {
	return ConversationRef{id: id, existing: true}
}

// RefFromNullable converts a nullable wire identifier.
func RefFromNullable(id *int64) ConversationRef {
	if id == nil {
		return NewConversation()
	}
	return ExistingConversation(*id)
}

// Existing returns the referenced ID and true, or 0 and false for a new conversation.
func (r ConversationRef) Existing() (int64, bool) {
	return r.id, r.existing
}

func (r ConversationRef) String() string {
	if !r.existing {
		return "new"
	}
	return fmt.Sprintf("%d", r.id)
}
