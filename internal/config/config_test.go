package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "loom.yaml", `
database:
  driver: memory
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Server.Host != "127.0.0.1" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Agent.MaxIterations != 25 || cfg.Agent.MaxConcurrentTools != 3 {
		t.Errorf("agent defaults = %+v", cfg.Agent)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v", cfg.Logging)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("LOOM_TEST_KEY", "sk-from-env")
	path := writeConfig(t, t.TempDir(), "loom.yaml", `
database:
  driver: memory
providers:
  anthropic:
    api_key: ${LOOM_TEST_KEY}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-from-env" {
		t.Errorf("api_key = %q", cfg.Providers.Anthropic.APIKey)
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
database:
  driver: memory
logging:
  level: debug
`)
	path := writeConfig(t, dir, "loom.yaml", `
$include: base.yaml
logging:
  format: text
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Include merged, including file wins on conflicts.
	if cfg.Database.Driver != "memory" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoadAcceptsBareIncludeKey(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
database:
  driver: memory
`)
	path := writeConfig(t, dir, "loom.yaml", `
include: base.yaml
logging:
  level: warn
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "memory" || cfg.Logging.Level != "warn" {
		t.Errorf("cfg = driver %q, level %q", cfg.Database.Driver, cfg.Logging.Level)
	}
}

func TestExpandEnvPreservesIncludeDirective(t *testing.T) {
	t.Setenv("LOOM_TEST_DIR", "conf")
	got := expandEnv("$include: ${LOOM_TEST_DIR}/base.yaml\n")
	if got != "$include: conf/base.yaml\n" {
		t.Errorf("expanded = %q", got)
	}
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "$include: b.yaml\n")
	path := writeConfig(t, dir, "b.yaml", "$include: a.yaml\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("err = %v, want include cycle", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "loom.json5", `{
  // comments are allowed here
  database: {driver: "memory"},
  server: {port: 9999},
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestLoadRejectsUnknownSections(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "loom.yaml", `
databsae:
  driver: memory
`)
	if _, err := Load(path); err == nil {
		t.Error("misspelled section should fail validation")
	}
}

func TestLoadRejectsBadEnums(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "loom.yaml", `
database:
  driver: oracle
`)
	if _, err := Load(path); err == nil {
		t.Error("unknown driver should fail")
	}

	path = writeConfig(t, t.TempDir(), "loom.yaml", `
database:
  driver: memory
logging:
  level: loud
`)
	if _, err := Load(path); err == nil {
		t.Error("unknown log level should fail")
	}
}

func TestValidateCrossFields(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "postgres"
	cfg.Database.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("postgres without url should fail")
	}

	cfg = Default()
	cfg.Providers.Default = "gemini"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown default provider should fail")
	}

	cfg = Default()
	cfg.Providers.Default = "anthropic"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestJSONSchema(t *testing.T) {
	schema, err := JSONSchema()
	if err != nil {
		t.Fatalf("JSONSchema: %v", err)
	}
	for _, key := range []string{"server", "database", "providers", "agent"} {
		if !strings.Contains(string(schema), key) {
			t.Errorf("schema missing %q", key)
		}
	}
}
