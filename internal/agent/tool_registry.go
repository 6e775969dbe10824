package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/internal/sessions"
	"github.com/strandlabs/loom/pkg/models"
)

// MaxToolParamsSize caps the serialized size of a tool's input (10MB).
const MaxToolParamsSize = 10 << 20

type execCtxKey struct{}

// WithExecutionContext attaches per-call execution values to ctx.
func WithExecutionContext(ctx context.Context, ec models.ExecutionContext) context.Context {
	return context.WithValue(ctx, execCtxKey{}, ec)
}

// ExecutionContextFrom extracts the execution values from ctx, if set.
func ExecutionContextFrom(ctx context.Context) (models.ExecutionContext, bool) {
	ec, ok := ctx.Value(execCtxKey{}).(models.ExecutionContext)
	return ec, ok
}

// ToolRegistry holds the set of registered tools and validates
// invocations against their declared parameters.
//
// Registration happens during initialization; after startup the registry
// is read-mostly and safe for concurrent use.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	// audit receives a row per tracked execution when the call carries a
	// session id. Nil disables auditing.
	audit sessions.Store
}

// NewToolRegistry creates a new empty tool registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// WithAudit sets the store that receives tool execution records.
func (r *ToolRegistry) WithAudit(store sessions.Store) *ToolRegistry {
	r.audit = store
	return r
}

// Register adds a tool under its definition name. Registering a second
// tool under an existing name is a programming error and is rejected.
func (r *ToolRegistry) Register(tool Tool) error {
	def := tool.Definition()
	if def.Name == "" {
		return errdefs.New(errdefs.CodeValidationError, "tool name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return errdefs.Newf(errdefs.CodeValidationError, "tool already registered: %s", def.Name)
	}
	r.tools[def.Name] = tool
	return nil
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Definitions returns all registered tool definitions, sorted by name
// for stable provider payloads.
func (r *ToolRegistry) Definitions() []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]models.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ByCategory returns the tools in a category, sorted by name.
func (r *ToolRegistry) ByCategory(category models.ToolCategory) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, t := range r.tools {
		if t.Definition().Category == category {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Definition().Name < out[j].Definition().Name
	})
	return out
}

// ExecuteTracked is the only execution path the orchestrator uses. It
// validates params against the tool's declared parameters, applies
// defaults, runs the body exactly once, measures wall time, converts
// panics to TOOL_EXECUTION_FAILED, and records an audit row when the
// execution context carries a session id.
//
// Validation is total: either a validation error returns without the
// body running, or the body runs exactly once.
func (r *ToolRegistry) ExecuteTracked(ctx context.Context, name string, params map[string]any, ec models.ExecutionContext) (*models.ExecutionResult, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, errdefs.Newf(errdefs.CodeToolNotFound, "tool not found: %s", name).
			WithContext("tool", name)
	}

	def := tool.Definition()
	validated, err := validateParams(def, params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result, execErr := r.invoke(WithExecutionContext(ctx, ec), tool, validated)
	elapsed := time.Since(start)

	if result == nil {
		result = &models.ExecutionResult{Success: false}
	}
	result.DurationMS = elapsed.Milliseconds()
	if result.Timestamp.IsZero() {
		result.Timestamp = start
	}
	if execErr != nil {
		result.Success = false
		if result.Error == "" {
			result.Error = execErr.Error()
		}
	}
	if !result.Success && result.Error == "" {
		result.Error = "tool execution failed"
	}

	if ec.SessionID != "" && r.audit != nil {
		record := &models.ToolExecution{
			SessionID:  ec.SessionID,
			ToolName:   name,
			Success:    result.Success && execErr == nil,
			Error:      result.Error,
			DurationMS: result.DurationMS,
		}
		if rerr := r.audit.RecordToolExecution(ctx, record); rerr != nil {
			// Auditing must not fail the call.
			_ = rerr
		}
	}

	return result, execErr
}

// invoke runs the tool body, converting panics and plain errors into
// TOOL_EXECUTION_FAILED.
func (r *ToolRegistry) invoke(ctx context.Context, tool Tool, params map[string]any) (result *models.ExecutionResult, err error) {
	name := tool.Definition().Name
	defer func() {
		if rec := recover(); rec != nil {
			stack := debug.Stack()
			result = nil
			err = errdefs.Wrap(errdefs.CodeToolExecutionFailed,
				fmt.Sprintf("tool %s panicked", name),
				fmt.Errorf("panic: %v\n%s", rec, stack)).
				WithContext("tool", name)
		}
	}()

	result, err = tool.Execute(ctx, params)
	if err != nil {
		if _, ok := errdefs.As(err); !ok {
			err = errdefs.Wrap(errdefs.CodeToolExecutionFailed, "tool execution failed", err).
				WithContext("tool", name)
		}
	}
	return result, err
}

// validateParams checks the input map against the declared parameters
// and returns a copy with defaults applied for absent optionals.
func validateParams(def models.ToolDefinition, params map[string]any) (map[string]any, error) {
	if raw, err := json.Marshal(params); err == nil && len(raw) > MaxToolParamsSize {
		return nil, errdefs.Newf(errdefs.CodeInvalidParams,
			"tool parameters exceed maximum size of %d bytes", MaxToolParamsSize).
			WithContext("tool", def.Name)
	}

	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}

	for _, p := range def.Parameters {
		value, present := out[p.Name]
		if !present {
			if p.Required {
				return nil, errdefs.Newf(errdefs.CodeInvalidParams,
					"missing required parameter: %s", p.Name).
					WithContext("tool", def.Name).
					WithContext("param", p.Name)
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}
		if !matchesType(p.Type, value) {
			return nil, errdefs.Newf(errdefs.CodeInvalidParams,
				"parameter %s: expected %s, got %T", p.Name, p.Type, value).
				WithContext("tool", def.Name).
				WithContext("param", p.Name)
		}
	}
	return out, nil
}

func matchesType(t models.ParameterType, value any) bool {
	if value == nil {
		return true
	}
	switch t {
	case models.TypeString:
		_, ok := value.(string)
		return ok
	case models.TypeNumber:
		switch value.(type) {
		case float64, float32, int, int32, int64, json.Number:
			return true
		}
		return false
	case models.TypeBoolean:
		_, ok := value.(bool)
		return ok
	case models.TypeArray:
		switch value.(type) {
		case []any, []string, []float64, []map[string]any:
			return true
		}
		return false
	case models.TypeObject:
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}
