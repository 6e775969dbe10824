package todo

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/internal/sessions"
	"github.com/strandlabs/loom/pkg/models"
)

func sessionCtx(sessionID string) context.Context {
	return agent.WithExecutionContext(context.Background(),
		models.ExecutionContext{SessionID: sessionID})
}

func TestTodoAddAndList(t *testing.T) {
	store := sessions.NewMemoryStore()
	tool := New(store)
	ctx := sessionCtx("s1")

	result, err := tool.Execute(ctx, map[string]any{"action": "add", "content": "write tests"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("add failed: %s", result.Error)
	}

	result, err = tool.Execute(ctx, map[string]any{"action": "list"})
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Todos []models.Todo `json:"todos"`
		Count int           `json:"count"`
	}
	if err := json.Unmarshal([]byte(result.Output), &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 1 || out.Todos[0].Content != "write tests" {
		t.Fatalf("out = %+v", out)
	}
	if out.Todos[0].SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", out.Todos[0].SessionID)
	}
	if out.Todos[0].Status != models.TodoPending {
		t.Errorf("status = %s, want pending", out.Todos[0].Status)
	}
}

func TestTodoComplete(t *testing.T) {
	store := sessions.NewMemoryStore()
	tool := New(store)
	ctx := sessionCtx("s1")

	result, err := tool.Execute(ctx, map[string]any{"action": "add", "content": "item"})
	if err != nil {
		t.Fatal(err)
	}
	var added struct {
		Todo models.Todo `json:"todo"`
	}
	if err := json.Unmarshal([]byte(result.Output), &added); err != nil {
		t.Fatal(err)
	}

	result, err = tool.Execute(ctx, map[string]any{"action": "complete", "id": added.Todo.ID})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("complete failed: %s", result.Error)
	}

	result, err = tool.Execute(ctx, map[string]any{"action": "list", "status": "completed"})
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(result.Output), &out); err != nil {
		t.Fatal(err)
	}
	if out.Count != 1 {
		t.Errorf("completed count = %d, want 1", out.Count)
	}
}

func TestTodoGlobalScope(t *testing.T) {
	store := sessions.NewMemoryStore()
	tool := New(store)

	// Global add from within a session context.
	if _, err := tool.Execute(sessionCtx("s1"), map[string]any{
		"action": "add", "content": "global item", "global": true,
	}); err != nil {
		t.Fatal(err)
	}

	result, err := tool.Execute(context.Background(), map[string]any{"action": "list", "global": true})
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Todos []models.Todo `json:"todos"`
	}
	if err := json.Unmarshal([]byte(result.Output), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Todos) != 1 || out.Todos[0].SessionID != "" {
		t.Fatalf("out = %+v", out)
	}
}

func TestTodoInvalidAction(t *testing.T) {
	tool := New(sessions.NewMemoryStore())
	result, err := tool.Execute(context.Background(), map[string]any{"action": "purge"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("unknown action should fail")
	}
}

func TestTodoAddRequiresContent(t *testing.T) {
	tool := New(sessions.NewMemoryStore())
	result, err := tool.Execute(context.Background(), map[string]any{"action": "add", "content": "  "})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("empty content should fail")
	}
}
