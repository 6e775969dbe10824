// Package todo hosts the todo tool, backed by the session store.
package todo

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/internal/sessions"
	"github.com/strandlabs/loom/pkg/models"
)

// Tool manages todo items. Items created during a turn are scoped to
// that turn's session unless global is set.
type Tool struct {
	store sessions.Store
}

// New creates a todo tool over the given store.
func New(store sessions.Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "todo",
		Description: "Manage todo items: add, list, or complete. Items are session-scoped unless global is set.",
		Category:    models.CategoryManagement,
		Parameters: []models.ToolParameter{
			{Name: "action", Type: models.TypeString, Description: "One of add, list, complete.", Required: true},
			{Name: "content", Type: models.TypeString, Description: "Item text (add)."},
			{Name: "id", Type: models.TypeString, Description: "Item id (complete)."},
			{Name: "status", Type: models.TypeString, Description: "Filter by status (list): pending or completed."},
			{Name: "global", Type: models.TypeBoolean, Description: "Operate on global items instead of the session's.", Default: false},
		},
		Examples: []string{`{"action": "add", "content": "run the linter"}`},
	}
}

func (t *Tool) Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error) {
	action := strings.ToLower(strings.TrimSpace(stringParam(params, "action")))

	sessionID := ""
	if !boolParam(params, "global") {
		if ec, ok := agent.ExecutionContextFrom(ctx); ok {
			sessionID = ec.SessionID
		}
	}

	switch action {
	case "add":
		return t.add(ctx, sessionID, stringParam(params, "content"))
	case "list":
		return t.list(ctx, sessionID, stringParam(params, "status"), boolParam(params, "global"))
	case "complete":
		return t.complete(ctx, stringParam(params, "id"))
	default:
		return failure("unsupported action: " + action), nil
	}
}

func (t *Tool) add(ctx context.Context, sessionID, content string) (*models.ExecutionResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return failure("content is required"), nil
	}
	item := &models.Todo{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   content,
		Status:    models.TodoPending,
	}
	if err := t.store.AddTodo(ctx, item); err != nil {
		return failure("add todo: " + err.Error()), nil
	}
	return success(map[string]any{"todo": item}), nil
}

func (t *Tool) list(ctx context.Context, sessionID, status string, global bool) (*models.ExecutionResult, error) {
	filter := sessions.TodoFilter{SessionID: sessionID, Global: global}
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "":
	case "pending":
		filter.Status = models.TodoPending
	case "completed":
		filter.Status = models.TodoCompleted
	default:
		return failure("invalid status filter: " + status), nil
	}

	items, err := t.store.ListTodos(ctx, filter)
	if err != nil {
		return failure("list todos: " + err.Error()), nil
	}
	return success(map[string]any{"todos": items, "count": len(items)}), nil
}

func (t *Tool) complete(ctx context.Context, id string) (*models.ExecutionResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return failure("id is required"), nil
	}
	if err := t.store.UpdateTodoStatus(ctx, id, models.TodoCompleted); err != nil {
		return failure("complete todo: " + err.Error()), nil
	}
	return success(map[string]any{"id": id, "status": string(models.TodoCompleted)}), nil
}

func success(payload map[string]any) *models.ExecutionResult {
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return failure("encode result: " + err.Error())
	}
	return &models.ExecutionResult{Success: true, Output: string(out)}
}

func failure(message string) *models.ExecutionResult {
	return &models.ExecutionResult{Success: false, Error: message}
}

func stringParam(params map[string]any, name string) string {
	v, _ := params[name].(string)
	return v
}

func boolParam(params map[string]any, name string) bool {
	v, _ := params[name].(bool)
	return v
}
