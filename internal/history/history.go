// Package history implements the append-only chat history the task loop
// threads through each round: the accumulated message sequence plus a
// running token-usage counter.
package history

import (
	"sync"

	"github.com/aipy-go/aipy/internal/llm"
)

// Summary is the end-of-run usage table reported by GetSummary.
type Summary struct {
	Rounds       int     `json:"rounds"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Time         float64 `json:"time"`
}

// ChatHistory is an append-only ordered sequence of llm.ChatMessage, with a
// running usage total accumulated as each assistant message is added.
type ChatHistory struct {
	mu          sync.RWMutex
	messages    []llm.ChatMessage
	totalTokens llm.Usage
}

// New returns an empty ChatHistory.
func New() *ChatHistory {
	return &ChatHistory{}
}

// Add appends a bare role/content message (no usage, no reasoning) — the
// shape used for user prompts and feedback turns.
func (h *ChatHistory) Add(role, content string) {
	h.AddMessage(llm.ChatMessage{Role: role, Content: content})
}

// AddMessage appends message, folding its usage into the running total.
// Usage is zero-valued on non-assistant messages so the accumulation is
// always safe to call unconditionally.
func (h *ChatHistory) AddMessage(message llm.ChatMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, message)
	h.totalTokens.Add(message.Usage)
}

// Len returns the number of messages recorded so far.
func (h *ChatHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Messages returns the full recorded sequence (copy; safe to range over
// without holding the lock).
func (h *ChatHistory) Messages() []llm.ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]llm.ChatMessage, len(h.messages))
	copy(out, h.messages)
	return out
}

// GetMessages returns the provider-facing projection: role and content
// only, reasoning and usage stripped, matching what goes out over the
// wire to an LLM provider.
func (h *ChatHistory) GetMessages() []llm.ChatMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]llm.ChatMessage, len(h.messages))
	for i, m := range h.messages {
		out[i] = llm.ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// GetUsage iterates per-round usage for assistant messages only, in
// recording order.
func (h *ChatHistory) GetUsage() []llm.Usage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []llm.Usage
	for _, m := range h.messages {
		if m.Role == llm.RoleAssistant {
			out = append(out, m.Usage)
		}
	}
	return out
}

// GetSummary returns the accumulated usage table: rounds (count of
// assistant messages) plus the running token totals and elapsed time.
func (h *ChatHistory) GetSummary() Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rounds := 0
	for _, m := range h.messages {
		if m.Role == llm.RoleAssistant {
			rounds++
		}
	}
	return Summary{
		Rounds:       rounds,
		InputTokens:  h.totalTokens.InputTokens,
		OutputTokens: h.totalTokens.OutputTokens,
		TotalTokens:  h.totalTokens.TotalTokens,
		Time:         h.totalTokens.ElapsedSeconds,
	}
}
