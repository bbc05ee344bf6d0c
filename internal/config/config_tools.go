package config

import "time"

// ToolsConfig configures the C3 tool dispatcher and its policy gate.
type ToolsConfig struct {
	// CatalogPath points at the stdio MCP-server catalog file the
	// dispatcher loads its tool servers from.
	CatalogPath string `yaml:"catalog_path"`

	// CallTimeout bounds a single CallTool round-trip.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// Policy gates tool calls ahead of catalog/server resolution.
	Policy ToolPolicyConfig `yaml:"policy"`
}

// ToolPolicyConfig configures a policy.Policy.
type ToolPolicyConfig struct {
	// Profile is a pre-configured access level: minimal, coding,
	// messaging, or full.
	Profile string `yaml:"profile"`

	// Allow explicitly allows these tools (in addition to the profile).
	Allow []string `yaml:"allow"`

	// Deny explicitly denies these tools, overriding Allow.
	Deny []string `yaml:"deny"`
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "tools.json"
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 15 * time.Second
	}
}
