// Package sessions provides durable persistence for sessions, messages,
// tool execution records, and todos. Three backends implement the same
// Store contract: SQLite for local single-process use, Postgres for
// shared deployments, and an in-memory store for tests.
package sessions

import (
	"context"

	"github.com/strandlabs/loom/pkg/models"
)

// Store is the interface for session persistence. Every write is
// individually durable before the call returns; multi-statement updates
// run inside a transaction.
type Store interface {
	// Session CRUD
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error)
	UpdateSession(ctx context.Context, id string, upd SessionUpdate) error
	DeleteSession(ctx context.Context, id string) error

	// Message history. AddMessage is append-only within a session and
	// bumps the session's updated_at, message_count, and total_cost.
	AddMessage(ctx context.Context, msg *models.Message) error
	GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error)

	// Todos
	AddTodo(ctx context.Context, todo *models.Todo) error
	ListTodos(ctx context.Context, filter TodoFilter) ([]*models.Todo, error)
	UpdateTodoStatus(ctx context.Context, id string, status models.TodoStatus) error

	// Tool execution audit
	RecordToolExecution(ctx context.Context, exec *models.ToolExecution) error
	ListToolExecutions(ctx context.Context, sessionID string, limit int) ([]*models.ToolExecution, error)

	// Health reports connectivity and key tuning parameters.
	Health(ctx context.Context) (*Health, error)

	Close() error
}

// ListOptions configures session listing. Results are ordered by
// updated_at descending.
type ListOptions struct {
	Status models.SessionStatus
	Limit  int
	Offset int
}

// SessionUpdate is a partial session update; nil fields are untouched.
type SessionUpdate struct {
	Title        *string
	Status       *models.SessionStatus
	Provider     *string
	Model        *string
	SystemPrompt *string
	Metadata     map[string]any
}

// TodoFilter selects todos by scope and state. Empty SessionID matches
// global todos only when Global is set; otherwise all todos are listed.
type TodoFilter struct {
	SessionID string
	Global    bool
	Status    models.TodoStatus
}

// Health describes the state of a store backend.
type Health struct {
	Backend   string         `json:"backend"`
	Connected bool           `json:"connected"`
	Details   map[string]any `json:"details,omitempty"`
}
