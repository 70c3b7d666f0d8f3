package domain

// ChatRequest is the inbound turn request shared by the SSE endpoint and the
// WebSocket protocol.
type ChatRequest struct {
	SessionID *int64 `json:"sessionId"`
	Content   string `json:"content"`
}

// Ref resolves the nullable session id into a ConversationRef.
func (r ChatRequest) Ref() ConversationRef {
	return RefFromNullable(r.SessionID)
}

// UpdateTitleRequest renames a conversation.
type UpdateTitleRequest struct {
	Title string `json:"title"`
}
