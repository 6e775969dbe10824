package agent

import (
	"context"

	"github.com/strandlabs/loom/pkg/models"
)

// Provider is the abstract contract over a remote LLM API. Responses are
// delivered whole; streaming applies only to the sequence of assistant
// messages and tool-status updates across a turn, not to tokens inside a
// response.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic").
	Name() string

	// Models returns the model identifiers this provider can drive.
	Models() []string

	// Chat sends the message sequence and returns the assistant's reply.
	// The reply may carry tool calls; content may be empty when the turn
	// is purely tool calls.
	Chat(ctx context.Context, req *ChatRequest) (*models.Message, error)
}

// ChatRequest is a single provider invocation.
type ChatRequest struct {
	// Messages is the packed context, chronological, starting with the
	// system message when one exists.
	Messages []*models.Message

	// Model overrides the provider's default model when non-empty.
	Model string

	// Tools are the definitions advertised to the model.
	Tools []models.ToolDefinition

	// MaxTokens caps the response length; 0 uses the provider default.
	MaxTokens int

	// Temperature is the sampling temperature; nil uses the provider
	// default.
	Temperature *float64

	// SessionID identifies the conversation. Adapters may use it to key
	// provider-side cache reuse hints; empty disables them.
	SessionID string
}

// Tool is any object the registry can host: a definition the LLM sees
// plus an executable body.
type Tool interface {
	Definition() models.ToolDefinition
	Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error)
}
