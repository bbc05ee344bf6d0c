package runtime

import (
	"encoding/json"
	"reflect"
)

// ExecResult is the outcome of running one code block. Stdout/Stderr are
// omitted when empty; Result is a filtered deep copy of the block's result
// bag (see filterResult). ErrStr/Traceback are populated only if the block
// raised.
type ExecResult struct {
	Stdout    string         `json:"stdout,omitempty"`
	Stderr    string         `json:"stderr,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	ErrStr    string         `json:"errstr,omitempty"`
	Traceback string         `json:"traceback,omitempty"`

	// BlockID is stamped on by the caller (the task loop) when building
	// feedback; it is not itself part of the runtime's raw contract.
	BlockID string `json:"block_id,omitempty"`
}

// RunRecord is one entry in a task's run history: the result plus the
// env/session deltas observed across this block's execution. Deltas are
// attached here but never forwarded to the LLM-facing ExecResult.
type RunRecord struct {
	BlockID      string         `json:"block_id"`
	Result       ExecResult     `json:"result"`
	EnvDelta     map[string]any `json:"env_delta,omitempty"`
	SessionDelta map[string]any `json:"session_delta,omitempty"`
}

const filteredSentinel = "<filtered: cannot json-serialize>"
const maskedSentinel = "<masked>"
const filteredLeafSentinel = "<filtered>"

// filterStream returns s unless it cannot round-trip through JSON, in
// which case it returns the unserializable-stream sentinel. Go strings are
// always valid UTF-8 JSON string content once escaped, so in practice this
// only trips for the zero case (empty -> omitted by the caller); kept for
// parity with the source's defensive check ahead of mirroring non-Go
// embedded interpreter output.
func filterStream(s string) string {
	if _, err := json.Marshal(s); err != nil {
		return filteredSentinel
	}
	return s
}

// filterResult produces a deep copy of vars masking any key that matches a
// known env-var name and replacing any non-JSON-serializable leaf with a
// sentinel, at any nesting depth.
func filterResult(vars map[string]any, envNames map[string]bool) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		if envNames[k] {
			out[k] = maskedSentinel
			continue
		}
		out[k] = filterValue(v, envNames)
	}
	return out
}

func filterValue(v any, envNames map[string]bool) any {
	switch val := v.(type) {
	case map[string]any:
		return filterResult(val, envNames)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = filterValue(e, envNames)
		}
		return out
	default:
		if _, err := json.Marshal(val); err != nil {
			return filteredLeafSentinel
		}
		return val
	}
}

// diffEnv computes keys that are new or changed in after relative to
// before, used to build env_delta for the run history.
func diffEnv(before, after map[string]string) map[string]any {
	delta := make(map[string]any)
	for k, v := range after {
		if prev, ok := before[k]; !ok || prev != v {
			delta[k] = v
		}
	}
	return delta
}

// diffSession computes keys that are new or changed in after relative to
// before, used to build session_delta for the run history. Values may be
// arbitrary JSON-shaped data, so equality uses reflect.DeepEqual rather
// than ==.
func diffSession(before, after map[string]any) map[string]any {
	delta := make(map[string]any)
	for k, v := range after {
		prev, ok := before[k]
		if !ok || !reflect.DeepEqual(prev, v) {
			delta[k] = v
		}
	}
	return delta
}
