package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for tests and
// ephemeral local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	messages map[string][]*models.Message
	todos    []*models.Todo
	execs    map[string][]*models.ToolExecution
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		messages: map[string][]*models.Message{},
		execs:    map[string][]*models.ToolExecution{},
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errdefs.New(errdefs.CodeValidationError, "session is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := cloneSession(session)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if _, exists := m.sessions[clone.ID]; exists {
		return errdefs.Newf(errdefs.CodeValidationError, "session already exists: %s", clone.ID)
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = clone.CreatedAt
	if clone.Status == "" {
		clone.Status = models.SessionActive
	}
	// Reflect generated fields back to the caller.
	session.ID = clone.ID
	session.CreatedAt = clone.CreatedAt
	session.UpdatedAt = clone.UpdatedAt
	session.Status = clone.Status
	m.sessions[clone.ID] = clone
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, errdefs.Newf(errdefs.CodeSessionNotFound, "session not found: %s", id)
	}
	return cloneSession(session), nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if opts.Status != "" && session.Status != opts.Status {
			continue
		}
		out = append(out, cloneSession(session))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})

	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > len(out) {
		return []*models.Session{}, nil
	}
	end := len(out)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return out[start:end], nil
}

func (m *MemoryStore) UpdateSession(ctx context.Context, id string, upd SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return errdefs.Newf(errdefs.CodeSessionNotFound, "session not found: %s", id)
	}
	if upd.Status != nil && !session.Status.CanTransition(*upd.Status) {
		return errdefs.Newf(errdefs.CodeValidationError,
			"invalid status transition %s -> %s", session.Status, *upd.Status)
	}
	applyUpdate(session, upd)
	session.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return errdefs.Newf(errdefs.CodeSessionNotFound, "session not found: %s", id)
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	delete(m.execs, id)
	kept := m.todos[:0]
	for _, todo := range m.todos {
		if todo.SessionID != id {
			kept = append(kept, todo)
		}
	}
	m.todos = kept
	return nil
}

func (m *MemoryStore) AddMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errdefs.New(errdefs.CodeValidationError, "message is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[msg.SessionID]
	if !ok {
		return errdefs.Newf(errdefs.CodeSessionNotFound, "session not found: %s", msg.SessionID)
	}
	clone := cloneMessage(msg)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	msg.ID = clone.ID
	msg.CreatedAt = clone.CreatedAt
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], clone)

	session.MessageCount++
	session.TotalCost += clone.Cost
	session.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, errdefs.Newf(errdefs.CodeSessionNotFound, "session not found: %s", sessionID)
	}
	messages := m.messages[sessionID]
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}
	out := make([]*models.Message, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func (m *MemoryStore) AddTodo(ctx context.Context, todo *models.Todo) error {
	if todo == nil {
		return errdefs.New(errdefs.CodeValidationError, "todo is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *todo
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.Status == "" {
		clone.Status = models.TodoPending
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.UpdatedAt = clone.CreatedAt
	todo.ID = clone.ID
	todo.Status = clone.Status
	todo.CreatedAt = clone.CreatedAt
	todo.UpdatedAt = clone.UpdatedAt
	m.todos = append(m.todos, &clone)
	return nil
}

func (m *MemoryStore) ListTodos(ctx context.Context, filter TodoFilter) ([]*models.Todo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Todo
	for _, todo := range m.todos {
		if filter.SessionID != "" && todo.SessionID != filter.SessionID {
			continue
		}
		if filter.SessionID == "" && filter.Global && todo.SessionID != "" {
			continue
		}
		if filter.Status != "" && todo.Status != filter.Status {
			continue
		}
		clone := *todo
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MemoryStore) UpdateTodoStatus(ctx context.Context, id string, status models.TodoStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, todo := range m.todos {
		if todo.ID == id {
			todo.Status = status
			todo.UpdatedAt = time.Now()
			return nil
		}
	}
	return errdefs.Newf(errdefs.CodeNotFound, "todo not found: %s", id)
}

func (m *MemoryStore) RecordToolExecution(ctx context.Context, exec *models.ToolExecution) error {
	if exec == nil {
		return errdefs.New(errdefs.CodeValidationError, "execution record is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *exec
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	m.execs[clone.SessionID] = append(m.execs[clone.SessionID], &clone)
	return nil
}

func (m *MemoryStore) ListToolExecutions(ctx context.Context, sessionID string, limit int) ([]*models.ToolExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	execs := m.execs[sessionID]
	start := 0
	if limit > 0 && len(execs) > limit {
		start = len(execs) - limit
	}
	out := make([]*models.ToolExecution, 0, len(execs)-start)
	for _, e := range execs[start:] {
		clone := *e
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MemoryStore) Health(ctx context.Context) (*Health, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Health{
		Backend:   "memory",
		Connected: true,
		Details:   map[string]any{"sessions": len(m.sessions)},
	}, nil
}

func (m *MemoryStore) Close() error { return nil }

func applyUpdate(session *models.Session, upd SessionUpdate) {
	if upd.Title != nil {
		session.Title = *upd.Title
	}
	if upd.Status != nil {
		session.Status = *upd.Status
	}
	if upd.Provider != nil {
		session.Provider = *upd.Provider
	}
	if upd.Model != nil {
		session.Model = *upd.Model
	}
	if upd.SystemPrompt != nil {
		session.SystemPrompt = *upd.SystemPrompt
	}
	if upd.Metadata != nil {
		session.Metadata = deepCloneMap(upd.Metadata)
	}
}

// deepCloneMap creates a deep copy of a map[string]any to prevent shared
// references between callers and stored rows.
func deepCloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = deepCloneValue(v)
	}
	return clone
}

func deepCloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCloneMap(val)
	case []any:
		cloned := make([]any, len(val))
		for i, item := range val {
			cloned[i] = deepCloneValue(item)
		}
		return cloned
	case []string:
		cloned := make([]string, len(val))
		copy(cloned, val)
		return cloned
	default:
		return v
	}
}

func cloneSession(session *models.Session) *models.Session {
	if session == nil {
		return nil
	}
	clone := *session
	if session.Metadata != nil {
		clone.Metadata = deepCloneMap(session.Metadata)
	}
	clone.Messages = nil
	return &clone
}

func cloneMessage(msg *models.Message) *models.Message {
	if msg == nil {
		return nil
	}
	clone := *msg
	if msg.Metadata != nil {
		clone.Metadata = deepCloneMap(msg.Metadata)
	}
	if len(msg.ToolCalls) > 0 {
		clone.ToolCalls = make([]models.ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			clone.ToolCalls[i] = tc
			clone.ToolCalls[i].Input = deepCloneMap(tc.Input)
		}
	}
	return &clone
}
