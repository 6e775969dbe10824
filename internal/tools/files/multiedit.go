package files

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/strandlabs/loom/pkg/models"
)

// MultiEditTool applies a batch of find/replace edits to one file in a
// single atomic pass.
type MultiEditTool struct {
	workspace string
}

// NewMultiEditTool creates a multiedit tool scoped to the workspace.
func NewMultiEditTool(cfg Config) *MultiEditTool {
	return &MultiEditTool{workspace: cfg.Workspace}
}

func (t *MultiEditTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "multiedit",
		Description: "Apply multiple find/replace edits to a file; either every edit applies or the file is untouched.",
		Category:    models.CategoryFilesystem,
		Parameters: []models.ToolParameter{
			{Name: "path", Type: models.TypeString, Description: "Path to edit (relative to workspace).", Required: true},
			{Name: "edits", Type: models.TypeArray, Description: "Edits, each {old_text, new_text, replace_all?}.", Required: true},
		},
	}
}

func (t *MultiEditTool) Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error) {
	path := strings.TrimSpace(stringParam(params, "path"))

	raw, _ := params["edits"].([]any)
	if len(raw) == 0 {
		return failure("edits are required"), nil
	}
	edits := make([]edit, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return failure("each edit must be an object with old_text and new_text"), nil
		}
		e := edit{
			OldText:    stringParam(m, "old_text"),
			NewText:    stringParam(m, "new_text"),
			ReplaceAll: boolParam(m, "replace_all"),
		}
		edits = append(edits, e)
	}

	return applyEdits(ctx, t.workspace, path, edits)
}

func readWorkspaceFile(resolved, path string) ([]byte, error) {
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("file not found: " + path)
		}
		return nil, errors.New("read file: " + err.Error())
	}
	return data, nil
}

func writeWorkspaceFile(resolved, content string) error {
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return errors.New("write file: " + err.Error())
	}
	return nil
}
