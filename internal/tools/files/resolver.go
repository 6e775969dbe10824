// Package files hosts the workspace-confined filesystem tools: read,
// write, edit, multiedit, and list.
package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/internal/errdefs"
)

// Resolver resolves and validates workspace-relative paths.
type Resolver struct {
	Root string
}

// Resolve returns an absolute, cleaned path within the workspace root.
// Absolute inputs are allowed but must still land inside the root.
func (r Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", errdefs.New(errdefs.CodeInvalidParams, "path is required")
	}
	root := strings.TrimSpace(r.Root)
	if root == "" {
		root = "."
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", errdefs.Wrap(errdefs.CodeFileAccessDenied, "resolve workspace root", err)
	}
	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(rootAbs, clean)
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", errdefs.Wrap(errdefs.CodeFileAccessDenied, "resolve path", err)
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", errdefs.Wrap(errdefs.CodeFileAccessDenied, "resolve path", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", errdefs.Newf(errdefs.CodeFileAccessDenied, "path escapes workspace: %s", path)
	}
	return targetAbs, nil
}

// Config controls filesystem tool defaults.
type Config struct {
	Workspace    string
	MaxReadBytes int
}

// resolverFor builds a resolver from the per-call working directory when
// the orchestrator set one, falling back to the configured workspace.
func resolverFor(ctx context.Context, workspace string) Resolver {
	if ec, ok := agent.ExecutionContextFrom(ctx); ok && ec.WorkingDir != "" {
		return Resolver{Root: ec.WorkingDir}
	}
	return Resolver{Root: workspace}
}
