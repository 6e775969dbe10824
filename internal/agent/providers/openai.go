package providers

import (
	"context"
	"encoding/json"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/pkg/models"
)

// OpenAIProvider adapts OpenAI's chat completions API to the Provider
// contract. One Chat call makes one non-streaming request.
//
// Differences from the Anthropic adapter:
//   - System messages stay in the messages array
//   - Tool results become separate role=tool messages, one per call
//   - Tool inputs travel as serialized JSON argument strings
//
// Thread Safety:
// OpenAIProvider is safe for concurrent use.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// OpenAIConfig holds configuration for creating an OpenAIProvider.
type OpenAIConfig struct {
	// APIKey is the OpenAI API authentication key (required).
	APIKey string

	// BaseURL overrides the default API base URL; useful for proxies
	// and OpenAI-compatible servers.
	BaseURL string

	// DefaultModel is used when the request doesn't specify one.
	// Default: "gpt-4o"
	DefaultModel string
}

// NewOpenAIProvider creates an OpenAI provider instance.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errdefs.New(errdefs.CodeProviderAuthFailed, "openai: API key is required")
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: config.DefaultModel,
	}, nil
}

// Name returns the stable provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Models returns the model IDs this adapter knows about.
func (p *OpenAIProvider) Models() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
	}
}

// Chat sends the transcript to OpenAI and returns the assistant reply
// with any tool calls it requested.
func (p *OpenAIProvider) Chat(ctx context.Context, req *agent.ChatRequest) (*models.Message, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	request := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		request.MaxTokens = req.MaxTokens
	}
	if req.Temperature != nil {
		request.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		request.Tools = convertOpenAITools(req.Tools)
	}

	response, err := p.client.CreateChatCompletion(ctx, request)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, newAPIError("openai", model, apiErr.HTTPStatusCode, apiErr.Message, err)
		}
		return nil, wrapTransportError("openai", model, err)
	}
	if len(response.Choices) == 0 {
		return nil, errdefs.New(errdefs.CodeLLMAPIError, "openai: response contained no choices").
			WithContext("provider", "openai").
			WithContext("model", model)
	}

	return openaiReply(&response), nil
}

func convertOpenAIMessages(messages []*models.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})

		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, call := range msg.ToolCalls {
				args, err := json.Marshal(call.Input)
				if err != nil {
					args = []byte("{}")
				}
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			result = append(result, oaiMsg)

		case models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}
	return result
}

func convertOpenAITools(tools []models.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, def := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema(),
			},
		})
	}
	return result
}

func openaiReply(response *openai.ChatCompletionResponse) *models.Message {
	choice := response.Choices[0]
	reply := &models.Message{
		Role:         models.RoleAssistant,
		Content:      choice.Message.Content,
		Model:        response.Model,
		InputTokens:  response.Usage.PromptTokens,
		OutputTokens: response.Usage.CompletionTokens,
	}
	for _, call := range choice.Message.ToolCalls {
		input := make(map[string]any)
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
				input = map[string]any{}
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, models.ToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: input,
		})
	}
	return reply
}
