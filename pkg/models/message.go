package models

import (
	"time"
)

// Role indicates the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// SessionStatus describes the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
	SessionError    SessionStatus = "error"
)

// CanTransition reports whether a status change is allowed. Transitions
// are forward-only: active -> archived and active -> error.
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	if s == to {
		return true
	}
	return s == SessionActive && (to == SessionArchived || to == SessionError)
}

// Session is a persistent container for a sequence of messages sharing a
// single system prompt. The system prompt is frozen at creation time;
// changing it later means creating a new session.
type Session struct {
	ID           string         `json:"id"`
	Title        string         `json:"title,omitempty"`
	ParentID     string         `json:"parent_id,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	Model        string         `json:"model,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Status       SessionStatus  `json:"status"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	MessageCount int            `json:"message_count"`
	TotalCost    float64        `json:"total_cost"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	// Messages is populated only by reads that request full history.
	Messages []*Message `json:"messages,omitempty"`
}

// Message is a single entry in a session transcript. Insertion order
// within a session is the replay order.
type Message struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a role=tool message back to the assistant tool
	// call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	Provider     string         `json:"provider,omitempty"`
	Model        string         `json:"model,omitempty"`
	InputTokens  int            `json:"input_tokens,omitempty"`
	OutputTokens int            `json:"output_tokens,omitempty"`
	Cost         float64        `json:"cost,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// ToolCall is an LLM request to execute a named tool. The ID is opaque
// and assigned by the provider.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// TodoStatus describes a todo item state.
type TodoStatus string

const (
	TodoPending   TodoStatus = "pending"
	TodoCompleted TodoStatus = "completed"
)

// Todo is a task item. SessionID is empty for global items.
type Todo struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id,omitempty"`
	Content   string     `json:"content"`
	Status    TodoStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
