package files

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/strandlabs/loom/pkg/models"
)

// ReadTool reads a file from the workspace with an optional offset and
// byte limit.
type ReadTool struct {
	workspace string
	maxBytes  int
}

// NewReadTool creates a read tool scoped to the workspace.
func NewReadTool(cfg Config) *ReadTool {
	limit := cfg.MaxReadBytes
	if limit <= 0 {
		limit = 200000
	}
	return &ReadTool{workspace: cfg.Workspace, maxBytes: limit}
}

func (t *ReadTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "read",
		Description: "Read a file from the workspace with optional offset and byte limit.",
		Category:    models.CategoryFilesystem,
		Parameters: []models.ToolParameter{
			{Name: "path", Type: models.TypeString, Description: "Path to the file (relative to workspace).", Required: true},
			{Name: "offset", Type: models.TypeNumber, Description: "Byte offset to start reading from.", Default: float64(0)},
			{Name: "max_bytes", Type: models.TypeNumber, Description: "Maximum bytes to read (capped by the tool default)."},
		},
		Examples: []string{`{"path": "main.go"}`},
	}
}

func (t *ReadTool) Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error) {
	path := strings.TrimSpace(stringParam(params, "path"))
	offset := int64(intParam(params, "offset"))
	if offset < 0 {
		return failure("offset must be >= 0"), nil
	}

	resolved, err := resolverFor(ctx, t.workspace).Resolve(path)
	if err != nil {
		return failure(err.Error()), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return failure("file not found: " + path), nil
		}
		return failure("open file: " + err.Error()), nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return failure("stat file: " + err.Error()), nil
	}
	if info.IsDir() {
		return failure("path is a directory: " + path), nil
	}

	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return failure("seek file: " + err.Error()), nil
		}
	}

	limit := t.maxBytes
	if max := intParam(params, "max_bytes"); max > 0 && max < limit {
		limit = max
	}

	buf, err := io.ReadAll(io.LimitReader(file, int64(limit)))
	if err != nil {
		return failure("read file: " + err.Error()), nil
	}

	truncated := offset+int64(len(buf)) < info.Size()

	return success(map[string]any{
		"path":      path,
		"content":   string(buf),
		"offset":    offset,
		"bytes":     len(buf),
		"truncated": truncated,
	}), nil
}
