package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/pkg/models"
)

// SQLiteStore implements the Store interface on a local SQLite file.
// It is the default backend for single-process deployments.
type SQLiteStore struct {
	db *sql.DB

	stmtCreateSession *sql.Stmt
	stmtGetSession    *sql.Stmt
	stmtDeleteSession *sql.Stmt
	stmtAddMessage    *sql.Stmt
	stmtGetMessages   *sql.Stmt
	stmtAddTodo       *sql.Stmt
	stmtRecordExec    *sql.Stmt
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	parent_id     TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	metadata      TEXT,
	message_count INTEGER NOT NULL DEFAULT 0,
	total_cost    REAL NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role          TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	tool_calls    TEXT,
	tool_call_id  TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost          REAL NOT NULL DEFAULT 0,
	metadata      TEXT,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);

CREATE TABLE IF NOT EXISTS tool_executions (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	tool_call_id TEXT NOT NULL DEFAULT '',
	tool_name    TEXT NOT NULL,
	success      INTEGER NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_executions_session ON tool_executions(session_id);

CREATE TABLE IF NOT EXISTS todos (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// NewSQLiteStore opens (creating if needed) a SQLite database at path
// and bootstraps the schema. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errdefs.New(errdefs.CodeValidationError, "database path is required")
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDatabaseConnection, "failed to open database", err)
	}

	// SQLite permits one writer; a single connection avoids SQLITE_BUSY
	// churn under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, errdefs.Wrap(errdefs.CodeDatabaseMigration, "failed to bootstrap schema", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.stmtCreateSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, title, parent_id, provider, model, system_prompt, status, metadata, message_count, total_cost, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare create session", err)
	}

	s.stmtGetSession, err = s.db.Prepare(`
		SELECT id, title, parent_id, provider, model, system_prompt, status, metadata, message_count, total_cost, created_at, updated_at
		FROM sessions WHERE id = ?
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare get session", err)
	}

	s.stmtDeleteSession, err = s.db.Prepare(`DELETE FROM sessions WHERE id = ?`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare delete session", err)
	}

	s.stmtAddMessage, err = s.db.Prepare(`
		INSERT INTO messages (id, session_id, role, content, tool_calls, tool_call_id, provider, model, input_tokens, output_tokens, cost, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare add message", err)
	}

	s.stmtGetMessages, err = s.db.Prepare(`
		SELECT id, session_id, role, content, tool_calls, tool_call_id, provider, model, input_tokens, output_tokens, cost, metadata, created_at
		FROM messages WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare get messages", err)
	}

	s.stmtAddTodo, err = s.db.Prepare(`
		INSERT INTO todos (id, session_id, content, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare add todo", err)
	}

	s.stmtRecordExec, err = s.db.Prepare(`
		INSERT INTO tool_executions (id, session_id, tool_call_id, tool_name, success, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare record execution", err)
	}

	return nil
}

// Close closes the prepared statements and the database.
func (s *SQLiteStore) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.stmtCreateSession, s.stmtGetSession, s.stmtDeleteSession,
		s.stmtAddMessage, s.stmtGetMessages, s.stmtAddTodo, s.stmtRecordExec,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

// DB exposes the underlying connection for related stores.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return errdefs.New(errdefs.CodeValidationError, "session is required")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.UpdatedAt = session.CreatedAt
	if session.Status == "" {
		session.Status = models.SessionActive
	}

	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeValidationError, "failed to marshal metadata", err)
	}

	_, err = s.stmtCreateSession.ExecContext(ctx,
		session.ID, session.Title, session.ParentID, session.Provider,
		session.Model, session.SystemPrompt, session.Status, metadata,
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return errdefs.Newf(errdefs.CodeValidationError, "session already exists: %s", session.ID)
		}
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to create session", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := scanSession(s.stmtGetSession.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, errdefs.Newf(errdefs.CodeSessionNotFound, "session not found: %s", id)
	}
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to get session", err)
	}
	return session, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	query := `
		SELECT id, title, parent_id, provider, model, system_prompt, status, metadata, message_count, total_cost, created_at, updated_at
		FROM sessions
	`
	var args []any
	if opts.Status != "" {
		query += " WHERE status = ?"
		args = append(args, opts.Status)
	}
	query += " ORDER BY updated_at DESC, id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to list sessions", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to scan session", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "error iterating sessions", err)
	}
	return sessions, nil
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, id string, upd SessionUpdate) error {
	if upd.Status != nil {
		current, err := s.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(*upd.Status) {
			return errdefs.Newf(errdefs.CodeValidationError,
				"invalid status transition %s -> %s", current.Status, *upd.Status)
		}
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now()}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.Provider != nil {
		sets = append(sets, "provider = ?")
		args = append(args, *upd.Provider)
	}
	if upd.Model != nil {
		sets = append(sets, "model = ?")
		args = append(args, *upd.Model)
	}
	if upd.SystemPrompt != nil {
		sets = append(sets, "system_prompt = ?")
		args = append(args, *upd.SystemPrompt)
	}
	if upd.Metadata != nil {
		metadata, err := json.Marshal(upd.Metadata)
		if err != nil {
			return errdefs.Wrap(errdefs.CodeValidationError, "failed to marshal metadata", err)
		}
		sets = append(sets, "metadata = ?")
		args = append(args, metadata)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to update session", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to get rows affected", err)
	}
	if rows == 0 {
		return errdefs.Newf(errdefs.CodeSessionNotFound, "session not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.stmtDeleteSession.ExecContext(ctx, id)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to delete session", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to get rows affected", err)
	}
	if rows == 0 {
		return errdefs.Newf(errdefs.CodeSessionNotFound, "session not found: %s", id)
	}
	return nil
}

// AddMessage inserts the message and bumps the session counters in one
// transaction.
func (s *SQLiteStore) AddMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil || msg.SessionID == "" {
		return errdefs.New(errdefs.CodeValidationError, "message with session_id is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	toolCalls, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeValidationError, "failed to marshal tool calls", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeValidationError, "failed to marshal metadata", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseTransaction, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.StmtContext(ctx, s.stmtAddMessage).ExecContext(ctx,
		msg.ID, msg.SessionID, msg.Role, msg.Content, toolCalls, msg.ToolCallID,
		msg.Provider, msg.Model, msg.InputTokens, msg.OutputTokens, msg.Cost,
		metadata, msg.CreatedAt,
	)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to add message", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET updated_at = ?, message_count = message_count + 1, total_cost = total_cost + ?
		WHERE id = ?
	`, time.Now(), msg.Cost, msg.SessionID)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to update session counters", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to get rows affected", err)
	}
	if rows == 0 {
		return errdefs.Newf(errdefs.CodeSessionNotFound, "session not found: %s", msg.SessionID)
	}

	if err := tx.Commit(); err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseTransaction, "failed to commit message", err)
	}
	return nil
}

func (s *SQLiteStore) GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.stmtGetMessages.QueryContext(ctx, sessionID, limit)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to get messages", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to scan message", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "error iterating messages", err)
	}

	// Query returns newest-first for the LIMIT; reverse to chronological.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *SQLiteStore) AddTodo(ctx context.Context, todo *models.Todo) error {
	if todo == nil || todo.Content == "" {
		return errdefs.New(errdefs.CodeValidationError, "todo content is required")
	}
	if todo.ID == "" {
		todo.ID = uuid.NewString()
	}
	if todo.Status == "" {
		todo.Status = models.TodoPending
	}
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = time.Now()
	}
	todo.UpdatedAt = todo.CreatedAt

	_, err := s.stmtAddTodo.ExecContext(ctx,
		todo.ID, todo.SessionID, todo.Content, todo.Status, todo.CreatedAt, todo.UpdatedAt)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to add todo", err)
	}
	return nil
}

func (s *SQLiteStore) ListTodos(ctx context.Context, filter TodoFilter) ([]*models.Todo, error) {
	query := `SELECT id, session_id, content, status, created_at, updated_at FROM todos`
	var conds []string
	var args []any
	if filter.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, filter.SessionID)
	} else if filter.Global {
		conds = append(conds, "session_id = ''")
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to list todos", err)
	}
	defer rows.Close()

	var todos []*models.Todo
	for rows.Next() {
		todo := &models.Todo{}
		if err := rows.Scan(&todo.ID, &todo.SessionID, &todo.Content, &todo.Status, &todo.CreatedAt, &todo.UpdatedAt); err != nil {
			return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to scan todo", err)
		}
		todos = append(todos, todo)
	}
	return todos, rows.Err()
}

func (s *SQLiteStore) UpdateTodoStatus(ctx context.Context, id string, status models.TodoStatus) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE todos SET status = ?, updated_at = ? WHERE id = ?", status, time.Now(), id)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to update todo", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to get rows affected", err)
	}
	if rows == 0 {
		return errdefs.Newf(errdefs.CodeNotFound, "todo not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) RecordToolExecution(ctx context.Context, exec *models.ToolExecution) error {
	if exec == nil || exec.SessionID == "" {
		return errdefs.New(errdefs.CodeValidationError, "execution record with session_id is required")
	}
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = time.Now()
	}
	_, err := s.stmtRecordExec.ExecContext(ctx,
		exec.ID, exec.SessionID, exec.ToolCallID, exec.ToolName,
		exec.Success, exec.Error, exec.DurationMS, exec.CreatedAt)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to record tool execution", err)
	}
	return nil
}

func (s *SQLiteStore) ListToolExecutions(ctx context.Context, sessionID string, limit int) ([]*models.ToolExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tool_call_id, tool_name, success, error, duration_ms, created_at
		FROM tool_executions WHERE session_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to list tool executions", err)
	}
	defer rows.Close()

	var execs []*models.ToolExecution
	for rows.Next() {
		e := &models.ToolExecution{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ToolCallID, &e.ToolName, &e.Success, &e.Error, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to scan tool execution", err)
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

func (s *SQLiteStore) Health(ctx context.Context) (*Health, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return &Health{Backend: "sqlite", Connected: false},
			errdefs.Wrap(errdefs.CodeDatabaseConnection, "ping failed", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&count); err != nil {
		return &Health{Backend: "sqlite", Connected: false},
			errdefs.Wrap(errdefs.CodeDatabaseQuery, "count failed", err)
	}
	return &Health{
		Backend:   "sqlite",
		Connected: true,
		Details:   map[string]any{"sessions": count, "max_open_conns": 1},
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	session := &models.Session{}
	var metadataJSON []byte
	err := row.Scan(
		&session.ID, &session.Title, &session.ParentID, &session.Provider,
		&session.Model, &session.SystemPrompt, &session.Status, &metadataJSON,
		&session.MessageCount, &session.TotalCost, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 && string(metadataJSON) != "null" {
		if err := json.Unmarshal(metadataJSON, &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return session, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	msg := &models.Message{}
	var toolCallsJSON, metadataJSON []byte
	err := row.Scan(
		&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &toolCallsJSON,
		&msg.ToolCallID, &msg.Provider, &msg.Model, &msg.InputTokens,
		&msg.OutputTokens, &msg.Cost, &metadataJSON, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(toolCallsJSON) > 0 && string(toolCallsJSON) != "null" {
		if err := json.Unmarshal(toolCallsJSON, &msg.ToolCalls); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tool calls: %w", err)
		}
	}
	if len(metadataJSON) > 0 && string(metadataJSON) != "null" {
		if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return msg, nil
}
