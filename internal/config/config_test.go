package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "aipy.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
workspace:
  root: .
  extra: true
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workspace.Root != "." {
		t.Fatalf("expected default workspace root, got %q", cfg.Workspace.Root)
	}
	if cfg.Task.MaxRounds != 16 {
		t.Fatalf("expected default max_rounds 16, got %d", cfg.Task.MaxRounds)
	}
	if cfg.Task.Language != "python" {
		t.Fatalf("expected default language python, got %q", cfg.Task.Language)
	}
	if cfg.Tools.CatalogPath != "tools.json" {
		t.Fatalf("expected default catalog path, got %q", cfg.Tools.CatalogPath)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: openai
  providers:
    anthropic: {}
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadValidatesMaxRounds(t *testing.T) {
	path := writeConfig(t, `
task:
  max_rounds: 0
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "max_rounds") {
		t.Fatalf("expected max_rounds error, got %v", err)
	}
}

func TestLoadValidatesPolicyProfile(t *testing.T) {
	path := writeConfig(t, `
tools:
  policy:
    profile: invalid
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "profile") {
		t.Fatalf("expected profile error, got %v", err)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
workspace:
  root: /tmp/work
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-test
      default_model: claude-sonnet
task:
  max_rounds: 8
  tools_enabled: true
tools:
  policy:
    profile: coding
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}
	if cfg.Task.MaxRounds != 8 {
		t.Fatalf("expected max_rounds 8, got %d", cfg.Task.MaxRounds)
	}
	if !cfg.Task.ToolsEnabled {
		t.Fatalf("expected tools_enabled true")
	}
}

func TestLoadResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	if err := os.WriteFile(basePath, []byte("llm:\n  default_provider: anthropic\n  providers:\n    anthropic: {}\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	mainPath := filepath.Join(dir, "main.yaml")
	if err := os.WriteFile(mainPath, []byte("$include: base.yaml\nworkspace:\n  root: /tmp/included\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workspace.Root != "/tmp/included" {
		t.Fatalf("expected included workspace root, got %q", cfg.Workspace.Root)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Fatalf("expected default_provider from included file, got %q", cfg.LLM.DefaultProvider)
	}
}
