package models

import "time"

// EventType identifies a realtime notification topic.
type EventType string

const (
	EventMessageUserNew      EventType = "message.user.new"
	EventMessageAssistantNew EventType = "message.assistant.new"
	EventToolStatus          EventType = "tool.status"
)

// ToolStatusValue is the reported stage of a tool call.
type ToolStatusValue string

const (
	ToolStatusRunning   ToolStatusValue = "running"
	ToolStatusCompleted ToolStatusValue = "completed"
	ToolStatusFailed    ToolStatusValue = "failed"
)

// Event is one realtime notification. Exactly one of Message or Tool is
// set, matching the Type.
type Event struct {
	Type      EventType        `json:"type"`
	SessionID string           `json:"session_id"`
	Timestamp time.Time        `json:"timestamp"`
	Message   *Message         `json:"message,omitempty"`
	Tool      *ToolStatusEvent `json:"tool,omitempty"`
}

// ToolStatusEvent reports progress of one tool call.
type ToolStatusEvent struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name,omitempty"`
	Status     ToolStatusValue `json:"status"`
	Message    string          `json:"message,omitempty"`
}

// ToolExecution is an audit record of one completed tool call.
type ToolExecution struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	ToolName   string    `json:"tool_name"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
