package domain

import "time"

// Conversation is a titled thread of messages.
type Conversation struct {
	ID        int64     `json:"sessionId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Deleted   bool      `json:"-"`
}

// Message is one immutable entry of a conversation's history.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"sessionId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	Deleted        bool      `json:"-"`
}
