package files

import (
	"context"
	"encoding/json"
)

// Result is the outcome of running one file tool (read/write/edit/apply
// patch): either the tool's rendered output, or an error payload with
// IsError set so a caller can distinguish failure without a Go error
// wrapping every expected validation failure.
type Result struct {
	Content string
	IsError bool
}

// Tool is the shared shape of this package's filesystem tools, matching
// dispatch.ToolDescriptor's name/description/schema surface for a future
// in-process dispatch path alongside external stdio tool servers.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}
