// Package main is the loomd entry point: a daemon exposing the
// conversation API over HTTP and WebSocket.
//
// # Basic Usage
//
// Start the daemon:
//
//	loomd serve --config loom.yaml
//
// Print the configuration schema:
//
//	loomd config schema
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key, used when the config carries none
//   - OPENAI_API_KEY: OpenAI API key, used when the config carries none
//
// Any ${VAR} reference inside the config file is expanded from the
// environment before parsing.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loomd",
		Short: "Loom - conversation orchestrator daemon",
		Long: `Loom runs agentic conversations: it drives the turn loop between
LLM providers and a sandboxed tool set, persists every message, and
streams events to connected clients.

Supported providers: Anthropic (Claude), OpenAI (GPT)
Built-in tools: file read/write/edit, grep, glob, bash, web fetch/search, todos`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}
