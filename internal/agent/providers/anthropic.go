package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/pkg/models"
)

// AnthropicProvider adapts Anthropic's Messages API to the Provider
// contract. One Chat call makes one non-streaming request.
//
// Thread Safety:
// AnthropicProvider is safe for concurrent use.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	prompts      *PromptCache
}

// AnthropicConfig holds configuration for creating an AnthropicProvider.
type AnthropicConfig struct {
	// APIKey is the Anthropic API authentication key (required).
	// Format: sk-ant-api03-...
	APIKey string

	// BaseURL overrides the default Anthropic API base URL.
	BaseURL string

	// DefaultModel is used when the request doesn't specify one.
	// Default: "claude-sonnet-4-20250514"
	DefaultModel string
}

// NewAnthropicProvider creates an Anthropic provider instance.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errdefs.New(errdefs.CodeProviderAuthFailed, "anthropic: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(options...),
		defaultModel: config.DefaultModel,
		prompts:      NewPromptCache(),
	}, nil
}

// Name returns the stable provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Models returns the Claude model IDs this adapter knows about.
func (p *AnthropicProvider) Models() []string {
	return []string{
		"claude-sonnet-4-20250514",
		"claude-opus-4-20250514",
		"claude-3-5-sonnet-20241022",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
		"claude-3-haiku-20240307",
	}
}

// Chat sends the transcript to Claude and returns the assistant reply
// with any tool calls it requested.
func (p *AnthropicProvider) Chat(ctx context.Context, req *agent.ChatRequest) (*models.Message, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	system, messages := splitSystem(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  convertAnthropicMessages(messages),
	}
	if system != "" {
		block := anthropic.TextBlockParam{Text: system}
		if p.cacheStablePrefix(req.SessionID, system, req.Tools) {
			block.CacheControl = anthropic.NewCacheControlEphemeralParam()
		}
		params.System = []anthropic.TextBlockParam{block}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = convertAnthropicTools(req.Tools)
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, newAPIError("anthropic", model, apiErr.StatusCode, anthropicErrorMessage(apiErr), err)
		}
		return nil, wrapTransportError("anthropic", model, err)
	}

	return anthropicReply(response), nil
}

// cacheStablePrefix reports whether the session's static prefix (system
// prompt plus tool declarations) repeated since the last call. A cache
// breakpoint only pays off once the prefix is byte-stable, so the first
// observation and every prefix change decline the hint.
func (p *AnthropicProvider) cacheStablePrefix(sessionID, system string, tools []models.ToolDefinition) bool {
	if sessionID == "" {
		return false
	}
	return !p.prompts.Changed(sessionID, Fingerprint(system, tools))
}

// splitSystem pulls the leading system message out of the transcript;
// Anthropic takes the system prompt as a separate parameter.
func splitSystem(messages []*models.Message) (string, []*models.Message) {
	system := ""
	out := make([]*models.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		out = append(out, msg)
	}
	return system, out
}

func convertAnthropicMessages(messages []*models.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion

		switch msg.Role {
		case models.RoleAssistant:
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				input := call.Input
				if input == nil {
					input = map[string]any{}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(content...))

		case models.RoleTool:
			// Tool results ride in user messages on this API.
			isError := strings.HasPrefix(msg.Content, "Error: ")
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, isError))
			result = append(result, anthropic.NewUserMessage(content...))

		default:
			content = append(content, anthropic.NewTextBlock(msg.Content))
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result
}

func convertAnthropicTools(tools []models.ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, def := range tools {
		schema := def.InputSchema()
		inputSchema := anthropic.ToolInputSchemaParam{}
		if props, ok := schema["properties"].(map[string]any); ok {
			inputSchema.Properties = props
		}
		if required, ok := schema["required"].([]string); ok {
			inputSchema.Required = required
		}

		param := anthropic.ToolUnionParamOfTool(inputSchema, def.Name)
		if param.OfTool != nil && def.Description != "" {
			param.OfTool.Description = anthropic.String(def.Description)
		}
		result = append(result, param)
	}
	return result
}

func anthropicReply(response *anthropic.Message) *models.Message {
	reply := &models.Message{
		Role:         models.RoleAssistant,
		Model:        string(response.Model),
		InputTokens:  int(response.Usage.InputTokens),
		OutputTokens: int(response.Usage.OutputTokens),
	}
	for _, block := range response.Content {
		switch block.Type {
		case "text":
			reply.Content += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			input := make(map[string]any)
			if len(toolBlock.Input) > 0 {
				if err := json.Unmarshal(toolBlock.Input, &input); err != nil {
					input = map[string]any{}
				}
			}
			reply.ToolCalls = append(reply.ToolCalls, models.ToolCall{
				ID:    toolBlock.ID,
				Name:  toolBlock.Name,
				Input: input,
			})
		}
	}
	return reply
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func anthropicErrorMessage(apiErr *anthropic.Error) string {
	raw := apiErr.RawJSON()
	if raw == "" {
		return apiErr.Error()
	}
	var payload anthropicErrorPayload
	if json.Unmarshal([]byte(raw), &payload) == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return apiErr.Error()
}
