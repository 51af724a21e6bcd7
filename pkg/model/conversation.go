package model

import (
	"time"

	"github.com/google/uuid"
)

type ConversationID string

// NewConversationID generates a new unique ConversationID
func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RoleTool      TurnRole = "tool"
)

// ToolInvocation records one capability call made during a turn
type ToolInvocation struct {
	Capability string         `firestore:"capability" json:"capability"`
	Args       map[string]any `firestore:"args" json:"args"`
	Success    bool           `firestore:"success" json:"success"`
	Error      string         `firestore:"error" json:"error,omitempty"`
}

// Turn is one entry of a conversation: a user message, an assistant
// response, or a tool result. The sequence is append-only within one
// orchestration run and persisted afterward.
type Turn struct {
	Role       TurnRole        `firestore:"role" json:"role"`
	Content    string          `firestore:"content" json:"content"`
	Invocation *ToolInvocation `firestore:"invocation" json:"invocation,omitempty"`
	CreatedAt  time.Time       `firestore:"created_at" json:"created_at"`
}

// Conversation is the persisted history of one conversation thread
type Conversation struct {
	ID        ConversationID `firestore:"id" json:"id"`
	UserID    UserID         `firestore:"user_id" json:"user_id"`
	Turns     []Turn         `firestore:"turns" json:"turns"`
	CreatedAt time.Time      `firestore:"created_at" json:"created_at"`
	UpdatedAt time.Time      `firestore:"updated_at" json:"updated_at"`
}
