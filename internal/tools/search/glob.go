package search

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/strandlabs/loom/pkg/models"
)

// GlobTool finds files matching a glob pattern. `**` matches any number
// of directories; the remaining syntax is path.Match.
type GlobTool struct {
	config Config
}

// NewGlobTool creates a glob tool scoped to the workspace.
func NewGlobTool(cfg Config) *GlobTool {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	return &GlobTool{config: cfg}
}

func (t *GlobTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "glob",
		Description: "Find files by glob pattern; ** crosses directory boundaries.",
		Category:    models.CategorySearch,
		Parameters: []models.ToolParameter{
			{Name: "pattern", Type: models.TypeString, Description: "Glob pattern, e.g. **/*.go or cmd/*/main.go.", Required: true},
			{Name: "path", Type: models.TypeString, Description: "Directory to search (relative to workspace).", Default: "."},
			{Name: "max_results", Type: models.TypeNumber, Description: "Stop after this many files."},
		},
		Examples: []string{`{"pattern": "**/*_test.go"}`},
	}
}

func (t *GlobTool) Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error) {
	pattern := stringParam(params, "pattern")
	if pattern == "" {
		return failure("pattern is required"), nil
	}
	pattern = filepath.ToSlash(pattern)
	if _, err := filepath.Match(strings.ReplaceAll(pattern, "**", "*"), ""); err != nil {
		return failure("invalid pattern: " + err.Error()), nil
	}

	limit := t.config.MaxResults
	if max := intParam(params, "max_results"); max > 0 && max < limit {
		limit = max
	}

	root, err := resolveRoot(ctx, t.config.Workspace, stringParam(params, "path"))
	if err != nil {
		return failure(err.Error()), nil
	}

	var files []string
	truncated := false
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if globMatch(pattern, filepath.ToSlash(rel)) {
			files = append(files, rel)
			if len(files) >= limit {
				truncated = true
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil && err != fs.SkipAll {
		return failure("glob failed: " + err.Error()), nil
	}
	sort.Strings(files)

	return success(map[string]any{
		"pattern":   pattern,
		"files":     files,
		"count":     len(files),
		"truncated": truncated,
	}), nil
}

// globMatch matches slash-separated paths segment by segment, letting
// `**` consume zero or more segments.
func globMatch(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pattern, name []string) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	if pattern[0] == "**" {
		for skip := 0; skip <= len(name); skip++ {
			if matchSegments(pattern[1:], name[skip:]) {
				return true
			}
		}
		return false
	}
	if len(name) == 0 {
		return false
	}
	ok, err := filepath.Match(pattern[0], name[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], name[1:])
}
