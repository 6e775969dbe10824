package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/internal/notify"
	"github.com/strandlabs/loom/internal/observability"
	"github.com/strandlabs/loom/internal/sessions"
	"github.com/strandlabs/loom/pkg/models"
)

// DefaultMaxIterations bounds the number of LLM round-trips in one turn.
const DefaultMaxIterations = 25

// Config wires the orchestrator's collaborators.
type Config struct {
	Store    sessions.Store
	Registry *ToolRegistry
	Notifier *notify.Notifier
	Locker   *sessions.TurnLocker
	Packer   *ContextPacker
	Queue    *QueueConfig

	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// WorkDir is handed to tools as their working directory root.
	WorkDir string

	// ToolTimeout bounds each tool call. Zero uses the queue default.
	ToolTimeout time.Duration

	// MaxIterations bounds LLM round-trips per turn. Zero uses
	// DefaultMaxIterations.
	MaxIterations int
}

// Orchestrator runs the conversation turn loop: persist the user
// message, call the provider, execute any requested tools, feed results
// back, and repeat until the provider answers without tool calls.
//
// Turns on the same session are serialized; a second send queues behind
// the active turn. Every message is persisted before the next provider
// call, so a crashed turn can resume from the transcript alone.
type Orchestrator struct {
	store    sessions.Store
	registry *ToolRegistry
	notifier *notify.Notifier
	locker   *sessions.TurnLocker
	packer   *ContextPacker
	queueCfg *QueueConfig

	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	workDir       string
	toolTimeout   time.Duration
	maxIterations int

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewOrchestrator creates an orchestrator. Store and Registry are
// required; everything else has a working default.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errdefs.New(errdefs.CodeValidationError, "store is required")
	}
	if cfg.Registry == nil {
		return nil, errdefs.New(errdefs.CodeValidationError, "tool registry is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.New(nil)
	}
	if cfg.Locker == nil {
		cfg.Locker = sessions.NewTurnLocker()
	}
	if cfg.Packer == nil {
		cfg.Packer = NewContextPacker(0, 0)
	}
	if cfg.Queue == nil {
		cfg.Queue = DefaultQueueConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.LogConfig{})
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Orchestrator{
		store:         cfg.Store,
		registry:      cfg.Registry,
		notifier:      cfg.Notifier,
		locker:        cfg.Locker,
		packer:        cfg.Packer,
		queueCfg:      cfg.Queue,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		tracer:        cfg.Tracer,
		workDir:       cfg.WorkDir,
		toolTimeout:   cfg.ToolTimeout,
		maxIterations: cfg.MaxIterations,
	}, nil
}

// Run executes one complete turn on a session and returns the final
// tool-free assistant message.
//
// The user message is persisted before the first provider call; a
// provider failure leaves the transcript prefix intact and is not
// retried. Cancelling ctx (or calling Abort) stops the turn at the next
// boundary: running tools are signalled, queued ones are dropped, and
// no result messages from the aborted batch are persisted.
func (o *Orchestrator) Run(ctx context.Context, sessionID string, provider Provider, model, content string) (*models.Message, error) {
	if provider == nil {
		return nil, errdefs.New(errdefs.CodeValidationError, "provider is required")
	}

	release, err := o.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.CodeTurnAborted, "turn cancelled while queued", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.trackTurn(sessionID, cancel)
	defer o.untrackTurn(sessionID)

	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.TraceTurn(ctx, sessionID, provider.Name(), model)
		defer span.End()
	}

	start := time.Now()
	msg, iterations, err := o.runTurn(ctx, sessionID, provider, model, content)
	if err != nil && o.tracer != nil {
		o.tracer.RecordError(observability.SpanFromContext(ctx), err)
	}
	if o.metrics != nil {
		status := "success"
		switch {
		case errdefs.IsCode(err, errdefs.CodeTurnAborted):
			status = "aborted"
		case err != nil:
			status = "error"
		}
		o.metrics.RecordTurn(status, time.Since(start).Seconds(), iterations)
	}
	return msg, err
}

// Abort cancels the active turn on a session, if any. Returns false
// when no turn is running.
func (o *Orchestrator) Abort(sessionID string) bool {
	o.mu.Lock()
	cancel, ok := o.active[sessionID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (o *Orchestrator) trackTurn(sessionID string, cancel context.CancelFunc) {
	o.mu.Lock()
	if o.active == nil {
		o.active = make(map[string]context.CancelFunc)
	}
	o.active[sessionID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) untrackTurn(sessionID string) {
	o.mu.Lock()
	delete(o.active, sessionID)
	o.mu.Unlock()
}

func (o *Orchestrator) runTurn(ctx context.Context, sessionID string, provider Provider, model, content string) (*models.Message, int, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if model == "" {
		model = session.Model
	}

	history, err := o.store.GetSessionMessages(ctx, sessionID, 0)
	if err != nil {
		return nil, 0, err
	}

	userMsg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := o.store.AddMessage(ctx, userMsg); err != nil {
		return nil, 0, err
	}
	history = append(history, userMsg)
	o.notifier.Emit(&models.Event{
		Type:      models.EventMessageUserNew,
		SessionID: sessionID,
		Message:   userMsg,
	})

	o.logger.Info(ctx, "turn started",
		"session_id", sessionID,
		"provider", provider.Name(),
		"model", model,
	)

	iterations := 0
	for iterations < o.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, iterations, errdefs.Wrap(errdefs.CodeTurnAborted, "turn aborted", err)
		}

		// An assistant message whose tool calls are not all answered yet
		// is resumed before asking the provider anything. This is also
		// how a crashed turn recovers from the transcript.
		if outstanding := outstandingToolCalls(history); len(outstanding) > 0 {
			results, err := o.executeToolCalls(ctx, sessionID, outstanding)
			if err != nil {
				return nil, iterations, err
			}
			history = append(history, results...)
			continue
		}

		iterations++
		assistantMsg, err := o.callProvider(ctx, session, provider, model, history)
		if err != nil {
			return nil, iterations, err
		}

		if err := o.store.AddMessage(ctx, assistantMsg); err != nil {
			return nil, iterations, err
		}
		history = append(history, assistantMsg)
		o.notifier.Emit(&models.Event{
			Type:      models.EventMessageAssistantNew,
			SessionID: sessionID,
			Message:   assistantMsg,
		})

		if len(assistantMsg.ToolCalls) == 0 {
			o.logger.Info(ctx, "turn completed",
				"session_id", sessionID,
				"iterations", iterations,
			)
			return assistantMsg, iterations, nil
		}
	}

	return nil, iterations, errdefs.Newf(errdefs.CodeInternalError,
		"turn exceeded %d iterations without a final answer", o.maxIterations).
		WithContext("session_id", sessionID)
}

// callProvider packs the history and makes one LLM request. Provider
// errors are surfaced without retry.
func (o *Orchestrator) callProvider(ctx context.Context, session *models.Session, provider Provider, model string, history []*models.Message) (*models.Message, error) {
	packed := o.packer.Pack(withSystemPrompt(session, history))

	start := time.Now()
	// Provider failures are not retried here; retry is a client
	// concern and the persisted prefix lets a resend resume the turn.
	reply, err := provider.Chat(ctx, &ChatRequest{
		Messages:  packed,
		Model:     model,
		Tools:     o.registry.Definitions(),
		SessionID: session.ID,
	})
	elapsed := time.Since(start)

	if o.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		in, out := 0, 0
		if reply != nil {
			in, out = reply.InputTokens, reply.OutputTokens
		}
		o.metrics.RecordLLMRequest(provider.Name(), model, status, elapsed.Seconds(), in, out)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, errdefs.Wrap(errdefs.CodeTurnAborted, "turn aborted", ctx.Err())
		}
		o.logger.Error(ctx, "provider request failed",
			"session_id", session.ID,
			"provider", provider.Name(),
			"error", err,
		)
		if _, ok := errdefs.As(err); !ok {
			err = errdefs.Wrap(errdefs.CodeLLMAPIError, "provider request failed", err)
		}
		return nil, err
	}

	reply.ID = uuid.NewString()
	reply.SessionID = session.ID
	reply.Role = models.RoleAssistant
	reply.Provider = provider.Name()
	if reply.Model == "" {
		reply.Model = model
	}
	if reply.CreatedAt.IsZero() {
		reply.CreatedAt = time.Now()
	}
	return reply, nil
}

// executeToolCalls runs one batch of tool calls through a fresh bounded
// queue and returns the role=tool result messages, persisted in call
// order. Failures become "Error: ..." content fed back to the model; an
// abort drains the queue and persists nothing from the batch.
func (o *Orchestrator) executeToolCalls(ctx context.Context, sessionID string, calls []models.ToolCall) ([]*models.Message, error) {
	queue := NewQueue(o.registry, o.queueCfg)
	ec := models.ExecutionContext{
		SessionID:  sessionID,
		WorkingDir: o.workDir,
		Timeout:    o.toolTimeout,
	}

	handles := make([]*Handle, len(calls))
	for i, call := range calls {
		handles[i] = queue.Add(call.ID, call.Name, call.Input, ec, 0)
		o.notifier.Emit(&models.Event{
			Type:      models.EventToolStatus,
			SessionID: sessionID,
			Tool: &models.ToolStatusEvent{
				ToolCallID: call.ID,
				Name:       call.Name,
				Status:     models.ToolStatusRunning,
			},
		})
	}

	results := make([]*models.Message, 0, len(calls))
	for i, handle := range handles {
		result, err := handle.Wait(ctx)
		if ctx.Err() != nil || errdefs.IsCode(err, errdefs.CodeToolCancelled) {
			queue.Abort()
			o.logger.Warn(ctx, "turn aborted during tool execution",
				"session_id", sessionID,
				"tool", handle.ToolName,
			)
			return nil, errdefs.New(errdefs.CodeTurnAborted, "turn aborted during tool execution")
		}

		call := calls[i]
		content, status := toolResultContent(result, err)
		o.notifier.Emit(&models.Event{
			Type:      models.EventToolStatus,
			SessionID: sessionID,
			Tool: &models.ToolStatusEvent{
				ToolCallID: call.ID,
				Name:       call.Name,
				Status:     status,
				Message:    errorMessage(result, err),
			},
		})
		if o.metrics != nil {
			d := 0.0
			if result != nil {
				d = float64(result.DurationMS) / 1000
			}
			o.metrics.RecordToolExecution(call.Name, string(status), d)
		}

		msg := &models.Message{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			Role:       models.RoleTool,
			Content:    content,
			ToolCallID: call.ID,
			CreatedAt:  time.Now(),
		}
		if err := o.store.AddMessage(ctx, msg); err != nil {
			queue.Abort()
			return nil, err
		}
		results = append(results, msg)
	}
	return results, nil
}

// outstandingToolCalls returns the tool calls from the last assistant
// message that have no role=tool answer yet. Any other transcript tail
// means there is nothing to resume.
func outstandingToolCalls(history []*models.Message) []models.ToolCall {
	lastAssistant := -1
scan:
	for i := len(history) - 1; i >= 0; i-- {
		switch history[i].Role {
		case models.RoleTool, models.RoleUser:
			// Answered results, and the user message just ingested for
			// the current turn, sit between the tail and the assistant
			// message being resumed.
		case models.RoleAssistant:
			lastAssistant = i
			break scan
		default:
			break scan
		}
	}
	if lastAssistant < 0 || len(history[lastAssistant].ToolCalls) == 0 {
		return nil
	}

	answered := make(map[string]bool)
	for _, msg := range history[lastAssistant+1:] {
		if msg.Role == models.RoleTool && msg.ToolCallID != "" {
			answered[msg.ToolCallID] = true
		}
	}

	var outstanding []models.ToolCall
	for _, call := range history[lastAssistant].ToolCalls {
		if !answered[call.ID] {
			outstanding = append(outstanding, call)
		}
	}
	return outstanding
}

// withSystemPrompt prepends the session's system prompt as a message
// when the transcript does not already start with one.
func withSystemPrompt(session *models.Session, history []*models.Message) []*models.Message {
	if session.SystemPrompt == "" {
		return history
	}
	if len(history) > 0 && history[0].Role == models.RoleSystem {
		return history
	}
	out := make([]*models.Message, 0, len(history)+1)
	out = append(out, &models.Message{
		SessionID: session.ID,
		Role:      models.RoleSystem,
		Content:   session.SystemPrompt,
		CreatedAt: session.CreatedAt,
	})
	return append(out, history...)
}

// toolResultContent converts an execution outcome into the transcript
// content the model sees next iteration.
func toolResultContent(result *models.ExecutionResult, err error) (string, models.ToolStatusValue) {
	if err == nil && result != nil && result.Success {
		return result.Output, models.ToolStatusCompleted
	}
	msg := errorMessage(result, err)
	if msg == "" {
		msg = "tool execution failed"
	}
	return "Error: " + msg, models.ToolStatusFailed
}

func errorMessage(result *models.ExecutionResult, err error) string {
	if result != nil && result.Error != "" {
		return result.Error
	}
	if err == nil {
		return ""
	}
	if e, ok := errdefs.As(err); ok {
		return e.Message
	}
	return strings.TrimSpace(err.Error())
}
