package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/pkg/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}

	mock.ExpectPrepare("INSERT INTO sessions")
	mock.ExpectPrepare("SELECT (.+) FROM sessions WHERE id")
	mock.ExpectPrepare("DELETE FROM sessions")
	mock.ExpectPrepare("INSERT INTO messages")
	mock.ExpectPrepare("SELECT (.+) FROM messages WHERE session_id")
	mock.ExpectPrepare("INSERT INTO todos")
	mock.ExpectPrepare("INSERT INTO tool_executions")

	store, err := NewPostgresStoreWithDB(db)
	if err != nil {
		t.Fatalf("NewPostgresStoreWithDB: %v", err)
	}
	return store, mock
}

func TestPostgresCreateSession(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.CreateSession(context.Background(), newTestSession("s1"))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresCreateSessionDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.CreateSession(context.Background(), newTestSession("dup"))
	if !errdefs.IsCode(err, errdefs.CodeValidationError) {
		t.Errorf("code = %s, want VALIDATION_ERROR", errdefs.CodeOf(err))
	}
}

func TestPostgresGetSessionNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetSession(context.Background(), "missing")
	if !errdefs.IsCode(err, errdefs.CodeSessionNotFound) {
		t.Errorf("code = %s, want SESSION_NOT_FOUND", errdefs.CodeOf(err))
	}
}

func TestPostgresGetSession(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "title", "parent_id", "provider", "model", "system_prompt",
		"status", "metadata", "message_count", "total_cost", "created_at", "updated_at",
	}).AddRow("s1", "t", "", "anthropic", "claude-sonnet-4-5", "prompt",
		"active", []byte(`{"k":"v"}`), 2, 0.01, now, now)
	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE id").WillReturnRows(rows)

	session, err := store.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.Provider != "anthropic" || session.MessageCount != 2 {
		t.Errorf("session = %+v", session)
	}
	if session.Metadata["k"] != "v" {
		t.Errorf("metadata = %v", session.Metadata)
	}
}

func TestPostgresAddMessageTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg := &models.Message{SessionID: "s1", Role: models.RoleUser, Content: "hi"}
	if err := store.AddMessage(context.Background(), msg); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if msg.ID == "" {
		t.Error("AddMessage must assign an id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresAddMessageUnknownSessionRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	msg := &models.Message{SessionID: "ghost", Role: models.RoleUser}
	err := store.AddMessage(context.Background(), msg)
	if !errdefs.IsCode(err, errdefs.CodeSessionNotFound) {
		t.Errorf("code = %s, want SESSION_NOT_FOUND", errdefs.CodeOf(err))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPostgresUpdateSessionNoRows(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE sessions SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	title := "x"
	err := store.UpdateSession(context.Background(), "missing", SessionUpdate{Title: &title})
	if !errdefs.IsCode(err, errdefs.CodeSessionNotFound) {
		t.Errorf("code = %s, want SESSION_NOT_FOUND", errdefs.CodeOf(err))
	}
}

func TestPostgresGetSessionMessagesChronological(t *testing.T) {
	store, mock := newMockStore(t)
	base := time.Now()
	sessionRows := sqlmock.NewRows([]string{
		"id", "title", "parent_id", "provider", "model", "system_prompt",
		"status", "metadata", "message_count", "total_cost", "created_at", "updated_at",
	}).AddRow("s1", "t", "", "anthropic", "claude-sonnet-4-5", "",
		"active", nil, 2, 0.0, base, base)
	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE id").WillReturnRows(sessionRows)
	// Statement returns newest-first; store reverses to chronological.
	rows := sqlmock.NewRows([]string{
		"id", "session_id", "role", "content", "tool_calls", "tool_call_id",
		"provider", "model", "input_tokens", "output_tokens", "cost", "metadata", "created_at",
	}).
		AddRow("m2", "s1", "user", "second", nil, "", "", "", 0, 0, 0.0, nil, base.Add(time.Second)).
		AddRow("m1", "s1", "system", "first", nil, "", "", "", 0, 0, 0.0, nil, base)
	mock.ExpectQuery("SELECT (.+) FROM messages WHERE session_id").WillReturnRows(rows)

	msgs, err := store.GetSessionMessages(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("GetSessionMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("order = %v, %v", msgs[0].ID, msgs[1].ID)
	}
}

func TestPostgresGetSessionMessagesUnknownSession(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM sessions WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetSessionMessages(context.Background(), "ghost", 10)
	if !errdefs.IsCode(err, errdefs.CodeSessionNotFound) {
		t.Errorf("code = %s, want SESSION_NOT_FOUND", errdefs.CodeOf(err))
	}
}
