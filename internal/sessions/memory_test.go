package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/pkg/models"
)

func newTestSession(id string) *models.Session {
	return &models.Session{
		ID:           id,
		Title:        "test",
		SystemPrompt: "You are a coding assistant.",
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := newTestSession("s1")
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Status != models.SessionActive {
		t.Errorf("status = %s, want active", session.Status)
	}
	if session.CreatedAt.IsZero() || !session.UpdatedAt.Equal(session.CreatedAt) {
		t.Error("timestamps not set on create")
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.SystemPrompt != session.SystemPrompt {
		t.Errorf("system prompt = %q", got.SystemPrompt)
	}
}

func TestMemoryStoreDuplicateCreate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.CreateSession(ctx, newTestSession("dup")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	first, _ := store.GetSession(ctx, "dup")

	err := store.CreateSession(ctx, &models.Session{ID: "dup", Title: "other"})
	if err == nil {
		t.Fatal("second create with same id should fail")
	}
	if !errdefs.IsCode(err, errdefs.CodeValidationError) {
		t.Errorf("code = %s", errdefs.CodeOf(err))
	}

	// The first session must be unchanged.
	after, _ := store.GetSession(ctx, "dup")
	if after.Title != first.Title {
		t.Errorf("title changed to %q after failed duplicate create", after.Title)
	}
}

func TestMemoryStoreGetMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.GetSession(context.Background(), "nope")
	if !errdefs.IsCode(err, errdefs.CodeSessionNotFound) {
		t.Errorf("code = %s, want SESSION_NOT_FOUND", errdefs.CodeOf(err))
	}
	_, err = store.GetSessionMessages(context.Background(), "nope", 10)
	if !errdefs.IsCode(err, errdefs.CodeSessionNotFound) {
		t.Errorf("messages code = %s, want SESSION_NOT_FOUND", errdefs.CodeOf(err))
	}
}

func TestMemoryStoreUpdatePartial(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.CreateSession(ctx, newTestSession("u1")); err != nil {
		t.Fatal(err)
	}

	title := "renamed"
	if err := store.UpdateSession(ctx, "u1", SessionUpdate{Title: &title}); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	got, _ := store.GetSession(ctx, "u1")
	if got.Title != "renamed" {
		t.Errorf("title = %q", got.Title)
	}
	if got.SystemPrompt == "" {
		t.Error("untouched fields must survive a partial update")
	}
	if !got.UpdatedAt.After(got.CreatedAt) && !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Error("updated_at must be >= created_at")
	}

	err := store.UpdateSession(ctx, "missing", SessionUpdate{Title: &title})
	if !errdefs.IsCode(err, errdefs.CodeSessionNotFound) {
		t.Errorf("code = %s, want SESSION_NOT_FOUND", errdefs.CodeOf(err))
	}
}

func TestMemoryStoreStatusTransitions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.CreateSession(ctx, newTestSession("t1")); err != nil {
		t.Fatal(err)
	}

	archived := models.SessionArchived
	if err := store.UpdateSession(ctx, "t1", SessionUpdate{Status: &archived}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	active := models.SessionActive
	err := store.UpdateSession(ctx, "t1", SessionUpdate{Status: &active})
	if err == nil {
		t.Fatal("archived -> active should be rejected")
	}
}

func TestMemoryStoreMessagesOrderAndCounters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.CreateSession(ctx, newTestSession("m1")); err != nil {
		t.Fatal(err)
	}

	roles := []models.Role{models.RoleSystem, models.RoleUser, models.RoleAssistant}
	for i, role := range roles {
		msg := &models.Message{
			SessionID: "m1",
			Role:      role,
			Content:   string(role),
			Cost:      float64(i) * 0.001,
		}
		if err := store.AddMessage(ctx, msg); err != nil {
			t.Fatalf("AddMessage(%s): %v", role, err)
		}
		if msg.ID == "" {
			t.Fatal("AddMessage must assign an id")
		}
	}

	msgs, err := store.GetSessionMessages(ctx, "m1", 0)
	if err != nil {
		t.Fatalf("GetSessionMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, role := range roles {
		if msgs[i].Role != role {
			t.Errorf("message %d role = %s, want %s", i, msgs[i].Role, role)
		}
	}

	session, _ := store.GetSession(ctx, "m1")
	if session.MessageCount != 3 {
		t.Errorf("message_count = %d, want 3", session.MessageCount)
	}
	if session.TotalCost != 0.003 {
		t.Errorf("total_cost = %f, want 0.003", session.TotalCost)
	}

	// Limit returns the most recent N, still chronological.
	tail, _ := store.GetSessionMessages(ctx, "m1", 2)
	if len(tail) != 2 || tail[0].Role != models.RoleUser || tail[1].Role != models.RoleAssistant {
		t.Errorf("limited fetch = %v", tail)
	}
}

func TestMemoryStoreAppendIsPrefixStable(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.CreateSession(ctx, newTestSession("ps")); err != nil {
		t.Fatal(err)
	}

	var prefix []string
	for i := 0; i < 10; i++ {
		msg := &models.Message{SessionID: "ps", Role: models.RoleUser, Content: "m"}
		if err := store.AddMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
		msgs, _ := store.GetSessionMessages(ctx, "ps", 0)
		for j, p := range prefix {
			if msgs[j].ID != p {
				t.Fatalf("append reordered prior messages at %d", j)
			}
		}
		prefix = append(prefix, msgs[len(msgs)-1].ID)
	}
}

func TestMemoryStoreListOrderedByUpdatedAt(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.CreateSession(ctx, newTestSession(id)); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	// Touch "a" so it becomes most recent.
	if err := store.AddMessage(ctx, &models.Message{SessionID: "a", Role: models.RoleSystem}); err != nil {
		t.Fatal(err)
	}

	sessions, err := store.ListSessions(ctx, ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 3 || sessions[0].ID != "a" {
		t.Errorf("first listed = %v, want a", sessions[0].ID)
	}

	limited, _ := store.ListSessions(ctx, ListOptions{Limit: 1, Offset: 1})
	if len(limited) != 1 || limited[0].ID != "c" {
		t.Errorf("limit/offset slice = %v", limited)
	}
}

func TestMemoryStoreDeleteCascades(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.CreateSession(ctx, newTestSession("d1")); err != nil {
		t.Fatal(err)
	}
	if err := store.AddMessage(ctx, &models.Message{SessionID: "d1", Role: models.RoleSystem}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddTodo(ctx, &models.Todo{SessionID: "d1", Content: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordToolExecution(ctx, &models.ToolExecution{SessionID: "d1", ToolName: "read", Success: true}); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteSession(ctx, "d1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := store.GetSession(ctx, "d1"); !errdefs.IsCode(err, errdefs.CodeSessionNotFound) {
		t.Error("session should be gone")
	}
	todos, _ := store.ListTodos(ctx, TodoFilter{SessionID: "d1"})
	if len(todos) != 0 {
		t.Error("session todos should cascade")
	}
	execs, _ := store.ListToolExecutions(ctx, "d1", 0)
	if len(execs) != 0 {
		t.Error("tool executions should cascade")
	}
}

func TestMemoryStoreTodos(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.CreateSession(ctx, newTestSession("s1")); err != nil {
		t.Fatal(err)
	}

	global := &models.Todo{Content: "global task"}
	scoped := &models.Todo{SessionID: "s1", Content: "scoped task"}
	for _, todo := range []*models.Todo{global, scoped} {
		if err := store.AddTodo(ctx, todo); err != nil {
			t.Fatal(err)
		}
	}

	scopedList, _ := store.ListTodos(ctx, TodoFilter{SessionID: "s1"})
	if len(scopedList) != 1 || scopedList[0].Content != "scoped task" {
		t.Errorf("scoped list = %v", scopedList)
	}
	globalList, _ := store.ListTodos(ctx, TodoFilter{Global: true})
	if len(globalList) != 1 || globalList[0].Content != "global task" {
		t.Errorf("global list = %v", globalList)
	}

	if err := store.UpdateTodoStatus(ctx, scoped.ID, models.TodoCompleted); err != nil {
		t.Fatal(err)
	}
	done, _ := store.ListTodos(ctx, TodoFilter{SessionID: "s1", Status: models.TodoCompleted})
	if len(done) != 1 {
		t.Error("completed filter should match updated todo")
	}

	if err := store.UpdateTodoStatus(ctx, "missing", models.TodoCompleted); !errdefs.IsCode(err, errdefs.CodeNotFound) {
		t.Errorf("code = %s, want NOT_FOUND", errdefs.CodeOf(err))
	}
}

func TestMemoryStoreCloneIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	session := newTestSession("iso")
	session.Metadata = map[string]any{"k": "v"}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetSession(ctx, "iso")
	got.Metadata["k"] = "mutated"
	again, _ := store.GetSession(ctx, "iso")
	if again.Metadata["k"] != "v" {
		t.Error("store rows must not share maps with callers")
	}
}

func TestMemoryStoreHealth(t *testing.T) {
	store := NewMemoryStore()
	h, err := store.Health(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if h.Backend != "memory" || !h.Connected {
		t.Errorf("health = %+v", h)
	}
}
