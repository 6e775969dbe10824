// Package shell hosts the bash tool.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/pkg/models"
)

// Config controls shell tool defaults.
type Config struct {
	Workspace      string
	MaxOutputBytes int
}

// BashTool runs shell commands in the workspace. The call inherits the
// queue's per-call deadline; a command still running at the deadline is
// killed with the context.
type BashTool struct {
	config Config
}

// NewBashTool creates a bash tool scoped to the workspace.
func NewBashTool(cfg Config) *BashTool {
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 100000
	}
	return &BashTool{config: cfg}
}

func (t *BashTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "bash",
		Description: "Run a bash command in the workspace and return stdout, stderr, and the exit code.",
		Category:    models.CategoryExecution,
		Parameters: []models.ToolParameter{
			{Name: "command", Type: models.TypeString, Description: "Command line to execute.", Required: true},
			{Name: "cwd", Type: models.TypeString, Description: "Working directory (relative to workspace)."},
			{Name: "stdin", Type: models.TypeString, Description: "Content passed on standard input."},
		},
		Examples: []string{`{"command": "go test ./..."}`},
	}
}

func (t *BashTool) Execute(ctx context.Context, params map[string]any) (*models.ExecutionResult, error) {
	command := strings.TrimSpace(stringParam(params, "command"))
	if command == "" {
		return failure("command is required"), nil
	}

	dir, err := t.workingDir(ctx, stringParam(params, "cwd"))
	if err != nil {
		return failure(err.Error()), nil
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = dir
	cmd.Env = t.environment(ctx)
	if stdin := stringParam(params, "stdin"); stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return failure("command killed: " + ctx.Err().Error()), nil
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return failure("start command: " + runErr.Error()), nil
		}
	}

	out := map[string]any{
		"command":   command,
		"exit_code": exitCode,
		"stdout":    truncate(stdout.String(), t.config.MaxOutputBytes),
		"stderr":    truncate(stderr.String(), t.config.MaxOutputBytes),
	}
	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return failure("encode result: " + err.Error()), nil
	}

	if exitCode != 0 {
		return &models.ExecutionResult{
			Success: false,
			Output:  string(payload),
			Error:   "command exited with code " + strconv.Itoa(exitCode),
		}, nil
	}
	return &models.ExecutionResult{Success: true, Output: string(payload)}, nil
}

func (t *BashTool) workingDir(ctx context.Context, cwd string) (string, error) {
	root := t.config.Workspace
	if ec, ok := agent.ExecutionContextFrom(ctx); ok && ec.WorkingDir != "" {
		root = ec.WorkingDir
	}
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.New("resolve workspace root: " + err.Error())
	}
	if cwd == "" {
		return rootAbs, nil
	}
	dir := cwd
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(rootAbs, dir)
	}
	rel, err := filepath.Rel(rootAbs, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", errors.New("cwd escapes workspace: " + cwd)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", errors.New("cwd is not a directory: " + cwd)
	}
	return dir, nil
}

func (t *BashTool) environment(ctx context.Context) []string {
	env := os.Environ()
	if ec, ok := agent.ExecutionContextFrom(ctx); ok {
		for k, v := range ec.Env {
			env = append(env, k+"="+v)
		}
	}
	return env
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... (truncated)"
}

func failure(message string) *models.ExecutionResult {
	return &models.ExecutionResult{Success: false, Error: message}
}

func stringParam(params map[string]any, name string) string {
	v, _ := params[name].(string)
	return v
}
