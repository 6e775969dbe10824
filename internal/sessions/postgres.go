package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/pkg/models"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB

	// Prepared statements for performance
	stmtCreateSession *sql.Stmt
	stmtGetSession    *sql.Stmt
	stmtDeleteSession *sql.Stmt
	stmtAddMessage    *sql.Stmt
	stmtGetMessages   *sql.Stmt
	stmtAddTodo       *sql.Stmt
	stmtRecordExec    *sql.Stmt
}

// PostgresConfig holds configuration for the PostgreSQL connection.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns default configuration.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "loom",
		Password:        "",
		Database:        "loom",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	parent_id     TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	metadata      JSONB,
	message_count INTEGER NOT NULL DEFAULT 0,
	total_cost    DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT NOT NULL UNIQUE,
	session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role          TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	tool_calls    JSONB,
	tool_call_id  TEXT NOT NULL DEFAULT '',
	provider      TEXT NOT NULL DEFAULT '',
	model         TEXT NOT NULL DEFAULT '',
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	metadata      JSONB,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);

CREATE TABLE IF NOT EXISTS tool_executions (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	tool_call_id TEXT NOT NULL DEFAULT '',
	tool_name    TEXT NOT NULL,
	success      BOOLEAN NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_executions_session ON tool_executions(session_id);

CREATE TABLE IF NOT EXISTS todos (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL DEFAULT '',
	content    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		config.Host, config.Port, config.User, config.Password,
		config.Database, config.SSLMode, int(config.ConnectTimeout.Seconds()),
	)
	return newPostgresStoreWithDSN(dsn, config)
}

// NewPostgresStoreFromDSN creates a new PostgreSQL store from a raw DSN/URL.
func NewPostgresStoreFromDSN(dsn string, config *PostgresConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errdefs.New(errdefs.CodeValidationError, "dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}
	return newPostgresStoreWithDSN(dsn, config)
}

func newPostgresStoreWithDSN(dsn string, config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDatabaseConnection, "failed to open database", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errdefs.Wrap(errdefs.CodeDatabaseConnection, "failed to ping database", err)
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, errdefs.Wrap(errdefs.CodeDatabaseMigration, "failed to bootstrap schema", err)
	}

	store := &PostgresStore{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreWithDB wraps an existing connection without schema
// bootstrap or ping. Used by tests.
func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{db: db}
	if err := store.prepareStatements(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) prepareStatements() error {
	var err error

	s.stmtCreateSession, err = s.db.Prepare(`
		INSERT INTO sessions (id, title, parent_id, provider, model, system_prompt, status, metadata, message_count, total_cost, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0, $9, $10)
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare create session", err)
	}

	s.stmtGetSession, err = s.db.Prepare(`
		SELECT id, title, parent_id, provider, model, system_prompt, status, metadata, message_count, total_cost, created_at, updated_at
		FROM sessions WHERE id = $1
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare get session", err)
	}

	s.stmtDeleteSession, err = s.db.Prepare(`DELETE FROM sessions WHERE id = $1`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare delete session", err)
	}

	s.stmtAddMessage, err = s.db.Prepare(`
		INSERT INTO messages (id, session_id, role, content, tool_calls, tool_call_id, provider, model, input_tokens, output_tokens, cost, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare add message", err)
	}

	s.stmtGetMessages, err = s.db.Prepare(`
		SELECT id, session_id, role, content, tool_calls, tool_call_id, provider, model, input_tokens, output_tokens, cost, metadata, created_at
		FROM messages WHERE session_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare get messages", err)
	}

	s.stmtAddTodo, err = s.db.Prepare(`
		INSERT INTO todos (id, session_id, content, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare add todo", err)
	}

	s.stmtRecordExec, err = s.db.Prepare(`
		INSERT INTO tool_executions (id, session_id, tool_call_id, tool_name, success, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to prepare record execution", err)
	}

	return nil
}

// Close closes the prepared statements and the database connection.
func (s *PostgresStore) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{
		s.stmtCreateSession, s.stmtGetSession, s.stmtDeleteSession,
		s.stmtAddMessage, s.stmtGetMessages, s.stmtAddTodo, s.stmtRecordExec,
	} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing store: %v", errs)
	}
	return nil
}

// DB exposes the underlying database connection for related stores.
func (s *PostgresStore) DB() *sql.DB { return s.db }

func (s *PostgresStore) CreateSession(ctx context.Context, session *models.Session) error {
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
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errdefs.Newf(errdefs.CodeValidationError, "session already exists: %s", session.ID)
		}
		return errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to create session", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session, err := scanSession(s.stmtGetSession.QueryRowContext(ctx, id))
	if err == sql.ErrNoRows {
		return nil, errdefs.Newf(errdefs.CodeSessionNotFound, "session not found: %s", id)
	}
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeDatabaseQuery, "failed to get session", err)
	}
	return session, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, opts ListOptions) ([]*models.Session, error) {
	query := `
		SELECT id, title, parent_id, provider, model, system_prompt, status, metadata, message_count, total_cost, created_at, updated_at
		FROM sessions
	`
	var args []any
	argPos := 1
	if opts.Status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argPos)
		args = append(args, opts.Status)
		argPos++
	}
	query += " ORDER BY updated_at DESC, id"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, opts.Limit)
		argPos++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
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

func (s *PostgresStore) UpdateSession(ctx context.Context, id string, upd SessionUpdate) error {
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

	sets := []string{"updated_at = $1"}
	args := []any{time.Now()}
	argPos := 2
	add := func(col string, val any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argPos))
		args = append(args, val)
		argPos++
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Provider != nil {
		add("provider", *upd.Provider)
	}
	if upd.Model != nil {
		add("model", *upd.Model)
	}
	if upd.SystemPrompt != nil {
		add("system_prompt", *upd.SystemPrompt)
	}
	if upd.Metadata != nil {
		metadata, err := json.Marshal(upd.Metadata)
		if err != nil {
			return errdefs.Wrap(errdefs.CodeValidationError, "failed to marshal metadata", err)
		}
		add("metadata", metadata)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE sessions SET %s WHERE id = $%d", strings.Join(sets, ", "), argPos),
		args...)
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

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
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

// AddMessage wraps the message insert and the session counter update in
// a transaction so both succeed or fail together.
func (s *PostgresStore) AddMessage(ctx context.Context, msg *models.Message) error {
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
	defer func() {
		_ = tx.Rollback()
	}()

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
		SET updated_at = $1, message_count = message_count + 1, total_cost = total_cost + $2
		WHERE id = $3
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

func (s *PostgresStore) GetSessionMessages(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10000
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

	// Reverse to chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *PostgresStore) AddTodo(ctx context.Context, todo *models.Todo) error {
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

func (s *PostgresStore) ListTodos(ctx context.Context, filter TodoFilter) ([]*models.Todo, error) {
	query := `SELECT id, session_id, content, status, created_at, updated_at FROM todos`
	var conds []string
	var args []any
	argPos := 1
	if filter.SessionID != "" {
		conds = append(conds, fmt.Sprintf("session_id = $%d", argPos))
		args = append(args, filter.SessionID)
		argPos++
	} else if filter.Global {
		conds = append(conds, "session_id = ''")
	}
	if filter.Status != "" {
		conds = append(conds, fmt.Sprintf("status = $%d", argPos))
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

func (s *PostgresStore) UpdateTodoStatus(ctx context.Context, id string, status models.TodoStatus) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE todos SET status = $1, updated_at = $2 WHERE id = $3", status, time.Now(), id)
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

func (s *PostgresStore) RecordToolExecution(ctx context.Context, exec *models.ToolExecution) error {
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

func (s *PostgresStore) ListToolExecutions(ctx context.Context, sessionID string, limit int) ([]*models.ToolExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, tool_call_id, tool_name, success, error, duration_ms, created_at
		FROM tool_executions WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2
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

func (s *PostgresStore) Health(ctx context.Context) (*Health, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return &Health{Backend: "postgres", Connected: false},
			errdefs.Wrap(errdefs.CodeDatabaseConnection, "ping failed", err)
	}
	stats := s.db.Stats()
	return &Health{
		Backend:   "postgres",
		Connected: true,
		Details: map[string]any{
			"open_conns":     stats.OpenConnections,
			"in_use":         stats.InUse,
			"max_open_conns": stats.MaxOpenConnections,
		},
	}, nil
}
