// Package config loads and validates this module's YAML configuration:
// workspace, LLM provider, task-loop, tool-dispatch, and logging/tracing
// settings, following the teacher's read-defaults-validate pipeline.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Version       int                 `yaml:"version"`
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	LLM           LLMConfig           `yaml:"llm"`
	Task          TaskConfig          `yaml:"task"`
	Tools         ToolsConfig         `yaml:"tools"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// WorkspaceConfig controls where block `path` materialization and task
// artifacts (snapshot JSON/HTML) are written.
type WorkspaceConfig struct {
	// Root sandboxes all file writes; defaults to the current directory.
	Root string `yaml:"root"`
}

// TaskConfig configures the C6 task loop, mirroring task.Config.
type TaskConfig struct {
	MaxRounds    int           `yaml:"max_rounds"`
	MaxWallTime  time.Duration `yaml:"max_wall_time"`
	Language     string        `yaml:"language"`
	ToolsEnabled bool          `yaml:"tools_enabled"`
	GUI          bool          `yaml:"gui"`
	// Backend selects the runtime.Executor that runs code blocks: "subprocess"
	// (default) launches an external interpreter process per block and suits
	// pure-compute code, while "embedded" runs blocks against the in-process
	// gopher-lua VM, the only backend that can service install_packages/
	// get_env/display/input calls against the shared Facade mid-execution.
	Backend string `yaml:"backend"`
}

// Load reads path as YAML (resolving `$include` directives and expanding
// environment variables), rejects unknown fields, fills in defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	applyWorkspaceDefaults(&cfg.Workspace)
	applyLLMDefaults(&cfg.LLM)
	applyTaskDefaults(&cfg.Task)
	applyToolsDefaults(&cfg.Tools)
	applyLoggingDefaults(&cfg.Logging)
	applyObservabilityDefaults(&cfg.Observability)
}

func applyWorkspaceDefaults(cfg *WorkspaceConfig) {
	if strings.TrimSpace(cfg.Root) == "" {
		cfg.Root = "."
	}
}

func applyTaskDefaults(cfg *TaskConfig) {
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = 16
	}
	if cfg.Language == "" {
		cfg.Language = "python"
	}
	if cfg.Backend == "" {
		cfg.Backend = "subprocess"
	}
}

// ConfigValidationError reports one or more invalid config fields.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "invalid config"
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(e.Issues, "; "))
}

func validateConfig(cfg *Config) error {
	var issues []string

	if err := ValidateVersion(cfg.Version); err != nil {
		issues = append(issues, err.Error())
	}

	if cfg.LLM.DefaultProvider != "" {
		if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
			issues = append(issues, fmt.Sprintf("llm.default_provider %q has no matching llm.providers entry", cfg.LLM.DefaultProvider))
		}
	}
	if cfg.Task.MaxRounds < 1 {
		issues = append(issues, "task.max_rounds must be at least 1")
	}
	switch cfg.Task.Backend {
	case "subprocess", "embedded":
	default:
		issues = append(issues, fmt.Sprintf("task.backend %q must be \"subprocess\" or \"embedded\"", cfg.Task.Backend))
	}
	if cfg.Tools.Policy.Profile != "" {
		switch cfg.Tools.Policy.Profile {
		case "minimal", "coding", "messaging", "full":
		default:
			issues = append(issues, fmt.Sprintf("tools.policy.profile %q is not a recognized profile", cfg.Tools.Policy.Profile))
		}
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
