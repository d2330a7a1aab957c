package model

import "time"

// ChatRole identifies the author of a chat message.
type ChatRole string

// Chat roles.
const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry of an append-only chat session.
type ChatMessage struct {
	CreatedAt          time.Time `json:"timestamp"`
	SessionID          string    `json:"sessionId"`
	Role               ChatRole  `json:"role"`
	Content            string    `json:"content"`
	Intent             string    `json:"intent,omitempty"`
	SQL                string    `json:"sql,omitempty"`
	ReferencedReceipts []int64   `json:"referencedReceipts,omitempty"`
	ID                 int64     `json:"id,omitempty"`
}
