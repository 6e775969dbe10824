// Package tools wires the built-in tool set into a registry.
package tools

import (
	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/internal/sessions"
	"github.com/strandlabs/loom/internal/tools/files"
	"github.com/strandlabs/loom/internal/tools/search"
	"github.com/strandlabs/loom/internal/tools/shell"
	"github.com/strandlabs/loom/internal/tools/todo"
	"github.com/strandlabs/loom/internal/tools/web"
)

// Config collects per-concern tool settings.
type Config struct {
	Workspace      string
	MaxReadBytes   int
	MaxOutputBytes int
	Search         web.SearchConfig
}

// RegisterBuiltins registers the full built-in tool set: read, write,
// edit, multiedit, list, grep, glob, bash, webfetch, websearch, todo.
func RegisterBuiltins(registry *agent.ToolRegistry, cfg Config, store sessions.Store) error {
	fileCfg := files.Config{Workspace: cfg.Workspace, MaxReadBytes: cfg.MaxReadBytes}
	searchCfg := search.Config{Workspace: cfg.Workspace}

	all := []agent.Tool{
		files.NewReadTool(fileCfg),
		files.NewWriteTool(fileCfg),
		files.NewEditTool(fileCfg),
		files.NewMultiEditTool(fileCfg),
		files.NewListTool(fileCfg),
		search.NewGrepTool(searchCfg),
		search.NewGlobTool(searchCfg),
		shell.NewBashTool(shell.Config{Workspace: cfg.Workspace, MaxOutputBytes: cfg.MaxOutputBytes}),
		web.NewWebFetchTool(web.FetchConfig{}),
		web.NewWebSearchTool(cfg.Search),
		todo.New(store),
	}
	for _, tool := range all {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
