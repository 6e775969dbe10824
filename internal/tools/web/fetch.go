package web

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/strandlabs/loom/pkg/models"
)

// FetchConfig controls webfetch defaults.
type FetchConfig struct {
	MaxChars int
}

// WebFetchTool fetches a URL and returns its readable content.
type WebFetchTool struct {
	config    FetchConfig
	extractor *ContentExtractor
}

// WebFetchOption customizes WebFetchTool construction.
type WebFetchOption func(*WebFetchTool)

// WithExtractor overrides the default content extractor (useful for tests).
func WithExtractor(extractor *ContentExtractor) WebFetchOption {
	return func(tool *WebFetchTool) {
		if extractor != nil {
			tool.extractor = extractor
		}
	}
}

// NewWebFetchTool creates a webfetch tool with defaults applied.
func NewWebFetchTool(config FetchConfig, opts ...WebFetchOption) *WebFetchTool {
	if config.MaxChars <= 0 {
		config.MaxChars = 10000
	}
	tool := &WebFetchTool{
		config:    config,
		extractor: NewContentExtractor(),
	}
	for _, opt := range opts {
		opt(tool)
	}
	return tool
}

func (t *WebFetchTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "webfetch",
		Description: "Fetch a URL and return its readable text content, without browser automation.",
		Category:    models.CategoryIntelligence,
		Parameters: []models.ToolParameter{
			{Name: "url", Type: models.TypeString, Description: "URL to fetch (http/https only).", Required: true},
			{Name: "max_chars", Type: models.TypeNumber, Description: "Maximum characters to return."},
		},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error) {
	rawURL := strings.TrimSpace(stringParam(params, "url"))
	if rawURL == "" {
		return failure("url is required"), nil
	}

	limit := t.config.MaxChars
	if max := intParam(params, "max_chars"); max > 0 && max < limit {
		limit = max
	}

	content, err := t.extractor.Extract(ctx, rawURL)
	if err != nil {
		return failure("fetch failed: " + err.Error()), nil
	}

	truncated := false
	if len(content) > limit {
		content = content[:limit] + "..."
		truncated = true
	}

	out := map[string]any{
		"url":     rawURL,
		"content": content,
	}
	if truncated {
		out["truncated"] = true
	}
	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return failure("encode result: " + err.Error()), nil
	}
	return &models.ExecutionResult{Success: true, Output: string(payload)}, nil
}

func failure(message string) *models.ExecutionResult {
	return &models.ExecutionResult{Success: false, Error: message}
}

func stringParam(params map[string]any, name string) string {
	v, _ := params[name].(string)
	return v
}

func intParam(params map[string]any, name string) int {
	switch v := params[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
