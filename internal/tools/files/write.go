package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/strandlabs/loom/pkg/models"
)

// WriteTool writes file contents within the workspace, creating parent
// directories as needed.
type WriteTool struct {
	workspace string
}

// NewWriteTool creates a write tool scoped to the workspace.
func NewWriteTool(cfg Config) *WriteTool {
	return &WriteTool{workspace: cfg.Workspace}
}

func (t *WriteTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "write",
		Description: "Write content to a file in the workspace (overwrites by default).",
		Category:    models.CategoryFilesystem,
		Parameters: []models.ToolParameter{
			{Name: "path", Type: models.TypeString, Description: "Path to write (relative to workspace).", Required: true},
			{Name: "content", Type: models.TypeString, Description: "File contents to write.", Required: true},
			{Name: "append", Type: models.TypeBoolean, Description: "Append instead of overwrite.", Default: false},
		},
	}
}

func (t *WriteTool) Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error) {
	path := strings.TrimSpace(stringParam(params, "path"))
	content := stringParam(params, "content")
	doAppend := boolParam(params, "append")

	resolved, err := resolverFor(ctx, t.workspace).Resolve(path)
	if err != nil {
		return failure(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return failure("create directory: " + err.Error()), nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if doAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return failure("open file: " + err.Error()), nil
	}
	defer file.Close()

	n, err := file.WriteString(content)
	if err != nil {
		return failure("write file: " + err.Error()), nil
	}

	return success(map[string]any{
		"path":          path,
		"bytes_written": n,
		"append":        doAppend,
	}), nil
}
