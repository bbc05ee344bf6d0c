// Package prompt implements the system prompt assembler: it composes a
// task's immutable system prompt from a role segment, a fixed protocol
// spec describing the block/command marker grammar and runtime surface,
// a tips segment, an API catalog segment, and (when tool dispatch is
// enabled) a tool-calling protocol addendum plus the current tool
// descriptor catalog.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aipy-go/aipy/internal/dispatch"
)

// APIDescriptor describes one external API a task may call into, and the
// environment variable binding the runtime exposes it through.
type APIDescriptor struct {
	Name   string
	Desc   string
	EnvVar string
}

// Options configures one system-prompt build.
type Options struct {
	// Role is a user-specified role string; if empty, RoleTip's Detail is
	// used instead.
	Role string
	// RoleTip is the selected role's tip, used when Role is empty.
	RoleTip Tip
	// Tips lists the non-role tips to render as the tips segment. May be nil.
	Tips *Tips
	// APIs lists the declared external API descriptors for the catalog
	// segment. May be empty.
	APIs []APIDescriptor
	// ToolsEnabled appends the tool-calling protocol addendum and tool
	// catalog when true.
	ToolsEnabled bool
	// Tools is the current tool descriptor catalog, serialized as JSON when
	// ToolsEnabled is true.
	Tools []dispatch.ToolDescriptor
	// Language is the executable language tag blocks must carry to be
	// eligible for Cmd-Exec (e.g. "python").
	Language string
}

// Assembler builds system prompts from fixed protocol text plus per-task
// options.
type Assembler struct{}

// NewAssembler returns an Assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Build composes the full system prompt for one task.
func (a *Assembler) Build(opts Options) string {
	var segments []string

	segments = append(segments, roleSegment(opts))
	segments = append(segments, protocolSegment(opts.Language))

	if opts.Tips != nil && opts.Tips.Len() > 0 {
		segments = append(segments, opts.Tips.String())
	}

	if len(opts.APIs) > 0 {
		segments = append(segments, apiCatalogSegment(opts.APIs))
	}

	if opts.ToolsEnabled {
		segments = append(segments, toolProtocolSegment(opts.Tools))
	}

	return strings.Join(segments, "\n\n")
}

func roleSegment(opts Options) string {
	if opts.Role != "" {
		return strings.TrimSpace(opts.Role)
	}
	if opts.RoleTip.Detail != "" {
		return strings.TrimSpace(opts.RoleTip.Detail)
	}
	return "You are a capable, careful coding assistant."
}

// protocolSegment is the fixed, task-invariant description of the
// block/command marker grammar, the code-generation rules, the runtime
// surface, and the feedback JSON schema. lang is substituted into the
// fenced-code-region examples.
func protocolSegment(lang string) string {
	if lang == "" {
		lang = "python"
	}
	return fmt.Sprintf(`# Code execution protocol

You solve tasks by writing %[1]s code in fenced code blocks wrapped with a
start and end marker comment. Each block you want persisted and possibly
executed MUST be wrapped exactly like this:

<!-- Block-Start: {"id":"<unique-id>","path":"<optional relative path>"} -->
`+"```"+`%[1]s
<code>
`+"```"+`
<!-- Block-End: {"id":"<same-unique-id>"} -->

- %[2]s is globally unique across this task's entire conversation; reusing
  an id from an earlier reply is an error.
- %[3]s, if present, requests that the code be written to that relative
  path before any block in the reply executes; parent directories are
  created as needed.
- All embedded JSON in these markers is single-line and compact.

To request that a previously defined block actually run, emit at most one
command marker per reply:

<!-- Cmd-Exec: {"id":"<existing-id>"} -->

The id referenced MUST already exist in the registry. Only %[1]s blocks
are ever executed; blocks in other languages may still be saved via path
but Cmd-Exec against them is an error.

## Runtime surface

Executed code runs in a persistent interpreter session that is preserved
across rounds within this task. The following names are available:

- %[1]s runtime.get_env(name) — read a host-provided environment
  variable by name. Never read API credentials via the process
  environment directly; always go through runtime.get_env so the host can
  mask and audit access.
- %[1]s runtime.get_code_by_id(id) — fetch the source of a previously
  defined block by id.
- %[1]s runtime.install_packages(*names) — request that packages be
  installed into the session before continuing.
- %[1]s runtime.display(obj) — emit a value to the user-facing display
  channel without it becoming the block's return value.
- %[1]s set_persistent_state(key, value) / get_persistent_state(key) —
  read and write task-scoped state visible to every later block.
- %[1]s set_result(value) — set this block's externally visible result
  explicitly, overriding the last-expression-value default.

## Execution feedback

After a block executes, its outcome is reported back to you as a JSON
object with these fields, all optional except block_id:

  {"block_id": "<id>", "stdout": "...", "stderr": "...", "result": <any>, "errstr": "...", "traceback": "..."}

stdout/stderr are captured output; result is the block's return value (if
JSON-serializable, otherwise a placeholder); errstr/traceback are present
only when the block raised. Feedback for a round may contain several such
objects, in execution order, plus any parse errors encountered for that
reply.`, lang, "id", "path")
}

func apiCatalogSegment(apis []APIDescriptor) string {
	var b strings.Builder
	b.WriteString("# Available external APIs\n\n")
	b.WriteString("Credentials for these APIs are available only through runtime.get_env;\n")
	b.WriteString("never call os.getenv directly for them.\n\n")
	for _, api := range apis {
		fmt.Fprintf(&b, "- %s (env: %s): %s\n", api.Name, api.EnvVar, api.Desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

func toolProtocolSegment(tools []dispatch.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString("# Tool calling\n\n")
	b.WriteString("Instead of writing code, you may invoke one of the tools below by replying\n")
	b.WriteString("with a single JSON object containing \"action\", \"name\", and optionally\n")
	b.WriteString("\"arguments\" (an object). Do not wrap it in code or command markers.\n\n")

	encoded, err := json.Marshal(tools)
	if err != nil {
		encoded = []byte("[]")
	}
	b.Write(encoded)
	return b.String()
}
