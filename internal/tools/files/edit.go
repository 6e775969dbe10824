package files

import (
	"context"
	"strings"

	"github.com/strandlabs/loom/pkg/models"
)

// EditTool applies a single find/replace edit to a file.
type EditTool struct {
	workspace string
}

// NewEditTool creates an edit tool scoped to the workspace.
func NewEditTool(cfg Config) *EditTool {
	return &EditTool{workspace: cfg.Workspace}
}

func (t *EditTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "edit",
		Description: "Replace text in a file. old_text must appear in the file; by default only the first occurrence is replaced.",
		Category:    models.CategoryFilesystem,
		Parameters: []models.ToolParameter{
			{Name: "path", Type: models.TypeString, Description: "Path to edit (relative to workspace).", Required: true},
			{Name: "old_text", Type: models.TypeString, Description: "Text to replace.", Required: true},
			{Name: "new_text", Type: models.TypeString, Description: "Replacement text.", Required: true},
			{Name: "replace_all", Type: models.TypeBoolean, Description: "Replace all occurrences.", Default: false},
		},
	}
}

func (t *EditTool) Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error) {
	path := strings.TrimSpace(stringParam(params, "path"))

	edits := []edit{{
		OldText:    stringParam(params, "old_text"),
		NewText:    stringParam(params, "new_text"),
		ReplaceAll: boolParam(params, "replace_all"),
	}}
	return applyEdits(ctx, t.workspace, path, edits)
}

type edit struct {
	OldText    string
	NewText    string
	ReplaceAll bool
}

// applyEdits is all-or-nothing: the file is rewritten only when every
// edit matched.
func applyEdits(ctx context.Context, workspace, path string, edits []edit) (*models.ExecutionResult, error) {
	resolved, err := resolverFor(ctx, workspace).Resolve(path)
	if err != nil {
		return failure(err.Error()), nil
	}

	data, err := readWorkspaceFile(resolved, path)
	if err != nil {
		return failure(err.Error()), nil
	}

	content := string(data)
	replacements := 0
	for _, e := range edits {
		if e.OldText == "" {
			return failure("old_text is required"), nil
		}
		if !strings.Contains(content, e.OldText) {
			return failure("old_text not found in " + path), nil
		}
		if e.ReplaceAll {
			replacements += strings.Count(content, e.OldText)
			content = strings.ReplaceAll(content, e.OldText, e.NewText)
		} else {
			content = strings.Replace(content, e.OldText, e.NewText, 1)
			replacements++
		}
	}

	if err := writeWorkspaceFile(resolved, content); err != nil {
		return failure(err.Error()), nil
	}

	return success(map[string]any{
		"path":         path,
		"edits":        len(edits),
		"replacements": replacements,
	}), nil
}
