// Package config loads, validates, and defaults the daemon
// configuration. Files are YAML by default; .json/.json5 documents are
// accepted, $include pulls in fragments, and ${VAR} references expand
// from the environment before parsing.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for loomd.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Database  DatabaseConfig  `yaml:"database" json:"database"`
	Providers ProvidersConfig `yaml:"providers" json:"providers"`
	Agent     AgentConfig     `yaml:"agent" json:"agent"`
	Tools     ToolsConfig     `yaml:"tools" json:"tools"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DatabaseConfig selects and tunes the session store backend.
type DatabaseConfig struct {
	// Driver is one of sqlite, postgres, memory.
	Driver string `yaml:"driver" json:"driver"`

	// Path is the SQLite database file (sqlite driver).
	Path string `yaml:"path" json:"path"`

	// URL is the Postgres DSN (postgres driver).
	URL string `yaml:"url" json:"url"`

	MaxConnections  int           `yaml:"max_connections" json:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// ProvidersConfig configures the LLM providers.
type ProvidersConfig struct {
	Default   string                    `yaml:"default" json:"default"`
	Anthropic ProviderConfig            `yaml:"anthropic" json:"anthropic"`
	OpenAI    ProviderConfig            `yaml:"openai" json:"openai"`
	Extra     map[string]ProviderConfig `yaml:"extra,omitempty" json:"extra,omitempty"`
}

// ProviderConfig is one provider's credentials and defaults.
type ProviderConfig struct {
	APIKey       string `yaml:"api_key" json:"api_key"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
	DefaultModel string `yaml:"default_model" json:"default_model"`
}

// AgentConfig tunes the turn loop.
type AgentConfig struct {
	MaxIterations      int           `yaml:"max_iterations" json:"max_iterations"`
	ContextBudget      int           `yaml:"context_budget" json:"context_budget"`
	ToolTimeout        time.Duration `yaml:"tool_timeout" json:"tool_timeout"`
	MaxConcurrentTools int           `yaml:"max_concurrent_tools" json:"max_concurrent_tools"`
	SystemPrompt       string        `yaml:"system_prompt" json:"system_prompt"`
}

// ToolsConfig configures the built-in tool set.
type ToolsConfig struct {
	Workspace      string          `yaml:"workspace" json:"workspace"`
	MaxReadBytes   int             `yaml:"max_read_bytes" json:"max_read_bytes"`
	MaxOutputBytes int             `yaml:"max_output_bytes" json:"max_output_bytes"`
	WebSearch      WebSearchConfig `yaml:"websearch" json:"websearch"`
}

// WebSearchConfig selects the websearch backend.
type WebSearchConfig struct {
	Backend     string `yaml:"backend" json:"backend"`
	BraveAPIKey string `yaml:"brave_api_key" json:"brave_api_key"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// TracingConfig configures the OTLP trace exporter. Tracing is a no-op
// when Endpoint is empty.
type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	ServiceName  string  `yaml:"service_name" json:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
	Insecure     bool    `yaml:"insecure" json:"insecure"`
}

// Load reads, merges, validates, and defaults a configuration file.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(raw); err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 5 * time.Minute
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "loom.db"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}

	if cfg.Agent.MaxIterations == 0 {
		cfg.Agent.MaxIterations = 25
	}
	if cfg.Agent.ContextBudget == 0 {
		cfg.Agent.ContextBudget = 100000
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = 30 * time.Second
	}
	if cfg.Agent.MaxConcurrentTools == 0 {
		cfg.Agent.MaxConcurrentTools = 3
	}

	if cfg.Tools.Workspace == "" {
		cfg.Tools.Workspace = "."
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "loomd"
	}
	if cfg.Tracing.SamplingRate == 0 {
		cfg.Tracing.SamplingRate = 1.0
	}
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres, or memory, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("database.url is required for the postgres driver")
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	if c.Agent.MaxConcurrentTools < 1 {
		return fmt.Errorf("agent.max_concurrent_tools must be positive")
	}
	if d := c.Providers.Default; d != "" && d != "anthropic" && d != "openai" {
		if _, ok := c.Providers.Extra[d]; !ok {
			return fmt.Errorf("providers.default names unknown provider %q", d)
		}
	}
	return nil
}
