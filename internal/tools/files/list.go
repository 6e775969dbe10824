package files

import (
	"context"
	"os"
	"sort"
	"strings"

	"github.com/strandlabs/loom/pkg/models"
)

// ListTool lists directory entries within the workspace.
type ListTool struct {
	workspace string
}

// NewListTool creates a list tool scoped to the workspace.
func NewListTool(cfg Config) *ListTool {
	return &ListTool{workspace: cfg.Workspace}
}

func (t *ListTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "list",
		Description: "List directory entries with type and size, directories first.",
		Category:    models.CategoryFilesystem,
		Parameters: []models.ToolParameter{
			{Name: "path", Type: models.TypeString, Description: "Directory to list (relative to workspace).", Default: "."},
			{Name: "show_hidden", Type: models.TypeBoolean, Description: "Include dotfiles.", Default: false},
		},
	}
}

func (t *ListTool) Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error) {
	path := strings.TrimSpace(stringParam(params, "path"))
	if path == "" {
		path = "."
	}
	showHidden := boolParam(params, "show_hidden")

	resolved, err := resolverFor(ctx, t.workspace).Resolve(path)
	if err != nil {
		return failure(err.Error()), nil
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return failure("directory not found: " + path), nil
		}
		return failure("read directory: " + err.Error()), nil
	}

	type entry struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Size int64  `json:"size,omitempty"`
	}
	listing := make([]entry, 0, len(entries))
	for _, de := range entries {
		name := de.Name()
		if !showHidden && strings.HasPrefix(name, ".") {
			continue
		}
		e := entry{Name: name, Type: "file"}
		if de.IsDir() {
			e.Type = "dir"
		} else if info, err := de.Info(); err == nil {
			e.Size = info.Size()
		}
		listing = append(listing, e)
	}
	sort.Slice(listing, func(i, j int) bool {
		if listing[i].Type != listing[j].Type {
			return listing[i].Type == "dir"
		}
		return listing[i].Name < listing[j].Name
	})

	return success(map[string]any{
		"path":    path,
		"entries": listing,
		"count":   len(listing),
	}), nil
}
