// Package llm implements the provider-facing chat completion adapter: a
// small Client interface with concrete variants for OpenAI-shaped,
// Anthropic-shaped, and Ollama-shaped chat APIs, plus a type-keyed registry.
package llm

import "context"

// Role values used on ChatMessage.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
)

// Usage accumulates token accounting for a single completion.
type Usage struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	ElapsedSeconds float64 `json:"time"`
}

// Add accumulates another Usage into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.ElapsedSeconds += other.ElapsedSeconds
}

// ChatMessage is one turn in the conversation. Reasoning and Usage are
// present on assistant messages only; the provider-facing projection
// (ChatHistory.GetMessages) strips both.
type ChatMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
	Usage     Usage  `json:"usage,omitempty"`
}

// StreamSink receives incremental tokens as a completion streams in.
// OnContent and OnReasoning are called in arrival order; implementations
// must not block for long since they run on the provider's read goroutine.
type StreamSink interface {
	OnContent(delta string)
	OnReasoning(delta string)
}

// NopSink discards all deltas.
type NopSink struct{}

func (NopSink) OnContent(string)   {}
func (NopSink) OnReasoning(string) {}

// Client is the capability set the task loop consumes: send the
// accumulated history plus a new prompt, optionally preceded by a system
// prompt (only meaningful, and only honored, when history is empty), and
// return the resulting assistant ChatMessage.
//
// On provider error, implementations return ChatMessage{Role: RoleError,
// Content: <error text>} with a non-nil error; the caller must not append
// the returned message to history in that case.
type Client interface {
	Name() string
	Send(ctx context.Context, history []ChatMessage, prompt string, systemPrompt string, sink StreamSink) (ChatMessage, error)
}
