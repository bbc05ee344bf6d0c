// Package dispatch implements the external tool dispatcher: resolves a
// model-chosen tool name and arguments against a catalog of stdio-connected
// tool servers, scoring candidates on argument-schema fit when a name is
// ambiguous, and manages the catalog's tool-schema cache and per-server
// enable/disable state.
package dispatch

import "encoding/json"

// ToolDescriptor describes one tool offered by a server, as cached from
// that server's tools/list response.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema InputSchema     `json:"input_schema"`
	Server      string          `json:"server"`
}

// InputSchema is the JSON-schema-shaped argument descriptor a tool
// advertises: named properties plus a required subset.
type InputSchema struct {
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
	Required   []string                   `json:"required,omitempty"`
}

// ServerEntry is one catalog entry: a stdio server launch command plus its
// enable state. Servers are stdio processes launched on demand, never
// held open between calls.
type ServerEntry struct {
	Command  string            `json:"command"`
	Args     []string          `json:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Disabled bool              `json:"disabled,omitempty"`
	Enabled  *bool             `json:"enabled,omitempty"`
}

// effectiveEnabled resolves the entry's default enable state: "enabled"
// wins if present, else the negation of "disabled", else true.
func (s ServerEntry) effectiveEnabled() bool {
	if s.Enabled != nil {
		return *s.Enabled
	}
	return !s.Disabled
}

// Catalog is the on-disk tool catalog file shape:
// {"mcpServers": {name: {command, args, env, disabled?, enabled?}}}.
// Unknown top-level keys are ignored.
type Catalog struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
}

// cacheFile is the sibling cache file shape written alongside the catalog.
type cacheFile struct {
	ConfigMTime int64                       `json:"config_mtime"`
	ToolsCache  map[string][]ToolDescriptor `json:"tools_cache"`
}

// StatusResult is returned by ProcessCommand.
type StatusResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	// Servers reflects current per-server enable state, for `list`.
	Servers map[string]bool `json:"servers,omitempty"`
	GloballyEnabled bool `json:"globally_enabled,omitempty"`
}
