// Package search hosts the workspace search tools: grep and glob.
package search

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/pkg/models"
)

// Config controls search tool defaults.
type Config struct {
	Workspace  string
	MaxResults int
	MaxFileKB  int
}

const (
	defaultMaxResults = 200
	defaultMaxFileKB  = 1024
)

// GrepTool searches file contents with a regular expression.
type GrepTool struct {
	config Config
}

// NewGrepTool creates a grep tool scoped to the workspace.
func NewGrepTool(cfg Config) *GrepTool {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.MaxFileKB <= 0 {
		cfg.MaxFileKB = defaultMaxFileKB
	}
	return &GrepTool{config: cfg}
}

func (t *GrepTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "grep",
		Description: "Search file contents with a regular expression; returns file, line number, and line text.",
		Category:    models.CategorySearch,
		Parameters: []models.ToolParameter{
			{Name: "pattern", Type: models.TypeString, Description: "Go regular expression to search for.", Required: true},
			{Name: "path", Type: models.TypeString, Description: "Directory to search (relative to workspace).", Default: "."},
			{Name: "include", Type: models.TypeString, Description: "Glob filter on file names, e.g. *.go."},
			{Name: "case_insensitive", Type: models.TypeBoolean, Description: "Match regardless of case.", Default: false},
			{Name: "max_results", Type: models.TypeNumber, Description: "Stop after this many matches."},
		},
		Examples: []string{`{"pattern": "func main", "include": "*.go"}`},
	}
}

type grepMatch struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (t *GrepTool) Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error) {
	pattern := stringParam(params, "pattern")
	if pattern == "" {
		return failure("pattern is required"), nil
	}
	if boolParam(params, "case_insensitive") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return failure("invalid pattern: " + err.Error()), nil
	}

	limit := t.config.MaxResults
	if max := intParam(params, "max_results"); max > 0 && max < limit {
		limit = max
	}
	include := stringParam(params, "include")

	root, err := resolveRoot(ctx, t.config.Workspace, stringParam(params, "path"))
	if err != nil {
		return failure(err.Error()), nil
	}

	var matches []grepMatch
	truncated := false
	maxBytes := int64(t.config.MaxFileKB) * 1024

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := d.Name()
		if d.IsDir() {
			if skipDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if include != "" {
			if ok, _ := filepath.Match(include, name); !ok {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxBytes {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		fileMatches, err := grepFile(path, rel, re, limit-len(matches))
		if err != nil {
			return nil
		}
		matches = append(matches, fileMatches...)
		if len(matches) >= limit {
			truncated = true
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && err != fs.SkipAll {
		return failure("search failed: " + err.Error()), nil
	}

	return success(map[string]any{
		"pattern":   stringParam(params, "pattern"),
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	}), nil
}

func grepFile(path, rel string, re *regexp.Regexp, limit int) ([]grepMatch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var matches []grepMatch
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if lineNo == 1 && bytes.IndexByte(line, 0) >= 0 {
			// Binary file.
			return nil, nil
		}
		if re.Match(line) {
			matches = append(matches, grepMatch{File: rel, Line: lineNo, Text: string(line)})
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches, nil
}

func skipDir(name string) bool {
	switch name {
	case ".git", "node_modules", "vendor", ".idea":
		return true
	}
	return false
}

// resolveRoot confines the search root to the workspace the same way the
// filesystem tools do.
func resolveRoot(ctx context.Context, workspace, path string) (string, error) {
	root := workspace
	if ec, ok := agent.ExecutionContextFrom(ctx); ok && ec.WorkingDir != "" {
		root = ec.WorkingDir
	}
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	path = strings.TrimSpace(path)
	if path == "" || path == "." {
		return rootAbs, nil
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootAbs, target)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return targetAbs, nil
}

func success(payload map[string]any) *models.ExecutionResult {
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return failure("encode result: " + err.Error())
	}
	return &models.ExecutionResult{Success: true, Output: string(out)}
}

func failure(message string) *models.ExecutionResult {
	return &models.ExecutionResult{Success: false, Error: message}
}

func stringParam(params map[string]any, name string) string {
	v, _ := params[name].(string)
	return strings.TrimSpace(v)
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

func boolParam(params map[string]any, name string) bool {
	v, _ := params[name].(bool)
	return v
}
