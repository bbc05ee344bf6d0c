package dispatch

import (
	"context"
	"encoding/json"
)

// LocalTool is an in-process tool the dispatcher can call directly
// without a stdio round-trip to an external server — e.g. the sandboxed
// filesystem tools in internal/tools/files. Local tools are advertised
// under the synthetic "local" server name alongside catalog servers, but
// CallTool resolves them by exact name match rather than candidate
// scoring, since there is never more than one local implementation of a
// given tool name.
type LocalTool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, arguments json.RawMessage) (content string, isError bool, err error)
}

const localServerName = "local"

// RegisterLocalTool adds tool to the dispatcher's local tool set. Safe to
// call before or after NewDispatcher's catalog load.
func (d *Dispatcher) RegisterLocalTool(tool LocalTool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.localTools == nil {
		d.localTools = make(map[string]LocalTool)
	}
	d.localTools[tool.Name()] = tool
}

func localToolDescriptor(tool LocalTool) ToolDescriptor {
	var raw struct {
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	_ = json.Unmarshal(tool.Schema(), &raw)
	return ToolDescriptor{
		Name:        tool.Name(),
		Description: tool.Description(),
		InputSchema: InputSchema{Properties: raw.Properties, Required: raw.Required},
		Server:      localServerName,
	}
}

// callLocalTool runs tool and normalizes its outcome onto CallTool's
// (json.RawMessage, error) contract: a tool-level failure becomes a Go
// error carrying the tool's error payload, matching how an external
// server's tool-level error is surfaced.
func callLocalTool(ctx context.Context, tool LocalTool, arguments json.RawMessage) (json.RawMessage, error) {
	content, isError, err := tool.Execute(ctx, arguments)
	if err != nil {
		return nil, err
	}
	if isError {
		return nil, errLocalTool{content: content}
	}
	return json.RawMessage(content), nil
}

// errLocalTool wraps a local tool's error payload so its Error() text is
// exactly the tool's rendered content, matching the plain error strings
// server-side tool failures produce.
type errLocalTool struct{ content string }

func (e errLocalTool) Error() string { return e.content }

// FilesTool is the subset of internal/tools/files.Tool's shape RegisterFilesTool
// adapts onto LocalTool. Declared here rather than imported to keep dispatch
// free of a direct dependency on internal/tools/files.
type FilesTool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (content string, isError bool, err error)
}

// filesToolAdapter satisfies LocalTool by delegating straight through; it
// exists only so RegisterFilesTool's callers don't need to implement
// LocalTool themselves for every files.Tool implementation.
type filesToolAdapter struct {
	FilesTool
}

// RegisterFilesTool registers a files.Tool-shaped implementation (via its
// adapted Execute signature) as a dispatcher-callable local tool.
func (d *Dispatcher) RegisterFilesTool(tool FilesTool) {
	d.RegisterLocalTool(filesToolAdapter{tool})
}
