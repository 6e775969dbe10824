package models

import "time"

// ToolCategory groups tools for discovery.
type ToolCategory string

const (
	CategoryFilesystem   ToolCategory = "filesystem"
	CategorySearch       ToolCategory = "search"
	CategoryExecution    ToolCategory = "execution"
	CategoryIntelligence ToolCategory = "intelligence"
	CategoryManagement   ToolCategory = "management"
)

// ParameterType is the declared type of a tool parameter.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeBoolean ParameterType = "boolean"
	TypeArray   ParameterType = "array"
	TypeObject  ParameterType = "object"
)

// ToolParameter declares a single named parameter of a tool.
type ToolParameter struct {
	Name        string        `json:"name"`
	Type        ParameterType `json:"type"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	Default     any           `json:"default,omitempty"`
}

// ToolDefinition describes a tool to both the registry and the LLM.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    ToolCategory    `json:"category"`
	Parameters  []ToolParameter `json:"parameters"`
	Examples    []string        `json:"examples,omitempty"`
}

// InputSchema renders the parameter list as a JSON Schema object, the
// shape both provider APIs expect for tool declarations.
func (d ToolDefinition) InputSchema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	var required []string
	for _, p := range d.Parameters {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ExecutionContext carries per-call environment into a tool execution.
type ExecutionContext struct {
	SessionID  string            `json:"session_id,omitempty"`
	UserID     string            `json:"user_id,omitempty"`
	WorkingDir string            `json:"working_dir,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

// ExecutionResult is the uniform outcome of a tool execution. Success
// false always comes with a non-empty Error.
type ExecutionResult struct {
	Success    bool           `json:"success"`
	Output     string         `json:"output"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Timestamp  time.Time      `json:"timestamp"`
}
