package tools

import (
	"testing"

	"github.com/strandlabs/loom/internal/agent"
	"github.com/strandlabs/loom/internal/sessions"
)

func TestRegisterBuiltins(t *testing.T) {
	registry := agent.NewToolRegistry()
	store := sessions.NewMemoryStore()

	if err := RegisterBuiltins(registry, Config{Workspace: t.TempDir()}, store); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}

	want := []string{
		"bash", "edit", "glob", "grep", "list", "multiedit",
		"read", "todo", "webfetch", "websearch", "write",
	}
	defs := registry.Definitions()
	if len(defs) != len(want) {
		t.Fatalf("registered %d tools, want %d", len(defs), len(want))
	}
	for i, def := range defs {
		if def.Name != want[i] {
			t.Errorf("defs[%d] = %s, want %s", i, def.Name, want[i])
		}
		if def.Description == "" {
			t.Errorf("%s has no description", def.Name)
		}
		if def.Category == "" {
			t.Errorf("%s has no category", def.Name)
		}
	}
}

func TestRegisterBuiltinsTwiceFails(t *testing.T) {
	registry := agent.NewToolRegistry()
	store := sessions.NewMemoryStore()
	cfg := Config{Workspace: t.TempDir()}

	if err := RegisterBuiltins(registry, cfg, store); err != nil {
		t.Fatal(err)
	}
	if err := RegisterBuiltins(registry, cfg, store); err == nil {
		t.Error("re-registering the same names should fail")
	}
}
