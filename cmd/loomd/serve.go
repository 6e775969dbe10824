package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/internal/agent/providers"
	"github.com/strandlabs/loom/internal/chat"
	"github.com/strandlabs/loom/internal/config"
	"github.com/strandlabs/loom/internal/gateway"
	"github.com/strandlabs/loom/internal/notify"
	"github.com/strandlabs/loom/internal/observability"
	"github.com/strandlabs/loom/internal/sessions"
	"github.com/strandlabs/loom/internal/tools"
	"github.com/strandlabs/loom/internal/tools/web"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the loom daemon",
		Long: `Start the loom daemon with the configured store, providers, and tools.

The daemon will:
1. Load configuration from the specified file (or loom.yaml)
2. Open the session store (memory, sqlite, or postgres)
3. Register the built-in tool set
4. Initialize LLM providers (Anthropic, OpenAI)
5. Serve the HTTP and WebSocket API

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  loomd serve

  # Start with custom config
  loomd serve --config /etc/loom/production.yaml

  # Start with debug logging
  loomd serve --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loom.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn(context.Background(), "tracer shutdown", "error", err)
		}
	}()

	logger.Info(ctx, "starting loomd",
		"version", version,
		"commit", commit,
		"config", configPath,
		"driver", cfg.Database.Driver,
	)

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	notifier := notify.New(slog.Default())

	registry := agent.NewToolRegistry().WithAudit(store)
	if err := tools.RegisterBuiltins(registry, tools.Config{
		Workspace:      cfg.Tools.Workspace,
		MaxReadBytes:   cfg.Tools.MaxReadBytes,
		MaxOutputBytes: cfg.Tools.MaxOutputBytes,
		Search: web.SearchConfig{
			BraveAPIKey:    cfg.Tools.WebSearch.BraveAPIKey,
			DefaultBackend: web.SearchBackend(cfg.Tools.WebSearch.Backend),
		},
	}, store); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	orch, err := agent.NewOrchestrator(agent.Config{
		Store:    store,
		Registry: registry,
		Notifier: notifier,
		Locker:   sessions.NewTurnLocker(),
		Packer:   agent.NewContextPacker(cfg.Agent.ContextBudget, 0),
		Queue: &agent.QueueConfig{
			MaxConcurrent:  cfg.Agent.MaxConcurrentTools,
			DefaultTimeout: cfg.Agent.ToolTimeout,
		},
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
		WorkDir:       cfg.Tools.Workspace,
		ToolTimeout:   cfg.Agent.ToolTimeout,
		MaxIterations: cfg.Agent.MaxIterations,
	})
	if err != nil {
		return fmt.Errorf("failed to build orchestrator: %w", err)
	}

	svc, err := chat.NewService(chat.Config{
		Store:               store,
		Orchestrator:        orch,
		Logger:              logger,
		DefaultProvider:     cfg.Providers.Default,
		DefaultSystemPrompt: cfg.Agent.SystemPrompt,
	})
	if err != nil {
		return fmt.Errorf("failed to build chat service: %w", err)
	}
	if err := registerProviders(ctx, svc, cfg, logger); err != nil {
		return err
	}

	server, err := gateway.NewServer(gateway.Config{
		Chat:     svc,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
		Server:   cfg.Server,
	})
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}

	logger.Info(context.Background(), "loomd stopped")
	return nil
}

// loadConfig falls back to built-in defaults when the config file does
// not exist, so `loomd serve` works out of the box.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Default(), nil
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (sessions.Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		return sessions.NewMemoryStore(), nil
	case "sqlite":
		return sessions.NewSQLiteStore(cfg.Database.Path)
	case "postgres":
		pool := sessions.DefaultPostgresConfig()
		if cfg.Database.MaxConnections > 0 {
			pool.MaxOpenConns = cfg.Database.MaxConnections
		}
		if cfg.Database.ConnMaxLifetime > 0 {
			pool.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
		}
		return sessions.NewPostgresStoreFromDSN(cfg.Database.URL, pool)
	default:
		return nil, fmt.Errorf("unknown database driver: %q", cfg.Database.Driver)
	}
}

// registerProviders wires every provider with a usable credential. API
// keys come from the config file, falling back to the conventional
// environment variables.
func registerProviders(ctx context.Context, svc *chat.Service, cfg *config.Config, logger *observability.Logger) error {
	if key := firstNonEmpty(cfg.Providers.Anthropic.APIKey, os.Getenv("ANTHROPIC_API_KEY")); key != "" {
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       key,
			BaseURL:      cfg.Providers.Anthropic.BaseURL,
			DefaultModel: cfg.Providers.Anthropic.DefaultModel,
		})
		if err != nil {
			return fmt.Errorf("anthropic provider: %w", err)
		}
		if err := svc.RegisterProvider(p); err != nil {
			return err
		}
		logger.Info(ctx, "provider registered", "provider", p.Name())
	}

	if key := firstNonEmpty(cfg.Providers.OpenAI.APIKey, os.Getenv("OPENAI_API_KEY")); key != "" {
		p, err := providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:       key,
			BaseURL:      cfg.Providers.OpenAI.BaseURL,
			DefaultModel: cfg.Providers.OpenAI.DefaultModel,
		})
		if err != nil {
			return fmt.Errorf("openai provider: %w", err)
		}
		if err := svc.RegisterProvider(p); err != nil {
			return err
		}
		logger.Info(ctx, "provider registered", "provider", p.Name())
	}

	if len(svc.Providers()) == 0 {
		return fmt.Errorf("no LLM provider configured: set providers.anthropic.api_key or providers.openai.api_key (or the ANTHROPIC_API_KEY / OPENAI_API_KEY environment variables)")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
