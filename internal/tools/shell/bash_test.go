package shell

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type bashOutput struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

func runBash(t *testing.T, tool *BashTool, params map[string]any) (*bashOutput, string) {
	t.Helper()
	result, err := tool.Execute(context.Background(), params)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output == "" {
		return nil, result.Error
	}
	var out bashOutput
	if err := json.Unmarshal([]byte(result.Output), &out); err != nil {
		t.Fatalf("output not JSON: %v", err)
	}
	return &out, result.Error
}

func TestBashToolRunsCommand(t *testing.T) {
	tool := NewBashTool(Config{Workspace: t.TempDir()})
	out, errMsg := runBash(t, tool, map[string]any{"command": "echo hello"})
	if errMsg != "" {
		t.Fatalf("error = %s", errMsg)
	}
	if out.ExitCode != 0 || strings.TrimSpace(out.Stdout) != "hello" {
		t.Errorf("out = %+v", out)
	}
}

func TestBashToolNonZeroExit(t *testing.T) {
	tool := NewBashTool(Config{Workspace: t.TempDir()})
	out, errMsg := runBash(t, tool, map[string]any{"command": "echo oops >&2; exit 3"})
	if out == nil {
		t.Fatalf("no structured output, error = %s", errMsg)
	}
	if out.ExitCode != 3 || strings.TrimSpace(out.Stderr) != "oops" {
		t.Errorf("out = %+v", out)
	}
	if !strings.Contains(errMsg, "code 3") {
		t.Errorf("error = %q", errMsg)
	}
}

func TestBashToolStdin(t *testing.T) {
	tool := NewBashTool(Config{Workspace: t.TempDir()})
	out, errMsg := runBash(t, tool, map[string]any{"command": "cat", "stdin": "piped"})
	if errMsg != "" {
		t.Fatalf("error = %s", errMsg)
	}
	if out.Stdout != "piped" {
		t.Errorf("stdout = %q", out.Stdout)
	}
}

func TestBashToolCwd(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	tool := NewBashTool(Config{Workspace: root})

	out, errMsg := runBash(t, tool, map[string]any{"command": "pwd", "cwd": "sub"})
	if errMsg != "" {
		t.Fatalf("error = %s", errMsg)
	}
	if !strings.HasSuffix(strings.TrimSpace(out.Stdout), "/sub") {
		t.Errorf("pwd = %q", out.Stdout)
	}

	result, err := tool.Execute(context.Background(), map[string]any{"command": "pwd", "cwd": "../escape"})
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Error("cwd outside workspace should fail")
	}
}

func TestBashToolHonorsContextDeadline(t *testing.T) {
	tool := NewBashTool(Config{Workspace: t.TempDir()})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := tool.Execute(ctx, map[string]any{"command": "sleep 5"})
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("command was not killed at the deadline")
	}
	if result.Success {
		t.Error("timed-out command should fail")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 100); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	got := truncate(strings.Repeat("x", 200), 50)
	if len(got) >= 200 || !strings.Contains(got, "truncated") {
		t.Errorf("truncate = %q", got)
	}
}
