package history

import (
	"testing"

	"github.com/aipy-go/aipy/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndGetMessagesProjection(t *testing.T) {
	h := New()
	h.Add(llm.RoleUser, "hello")
	h.AddMessage(llm.ChatMessage{
		Role:      llm.RoleAssistant,
		Content:   "hi there",
		Reasoning: "thinking...",
		Usage:     llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, ElapsedSeconds: 1.5},
	})

	require.Equal(t, 2, h.Len())

	projected := h.GetMessages()
	require.Len(t, projected, 2)
	assert.Empty(t, projected[1].Reasoning)
	assert.Zero(t, projected[1].Usage.TotalTokens)
	assert.Equal(t, "hi there", projected[1].Content)

	full := h.Messages()
	assert.Equal(t, "thinking...", full[1].Reasoning)
}

func TestGetSummaryAccumulatesUsageAcrossRounds(t *testing.T) {
	h := New()
	h.Add(llm.RoleUser, "q1")
	h.AddMessage(llm.ChatMessage{Role: llm.RoleAssistant, Content: "a1", Usage: llm.Usage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12, ElapsedSeconds: 1}})
	h.Add(llm.RoleUser, "q2")
	h.AddMessage(llm.ChatMessage{Role: llm.RoleAssistant, Content: "a2", Usage: llm.Usage{InputTokens: 20, OutputTokens: 4, TotalTokens: 24, ElapsedSeconds: 2}})

	summary := h.GetSummary()
	assert.Equal(t, 2, summary.Rounds)
	assert.Equal(t, 30, summary.InputTokens)
	assert.Equal(t, 6, summary.OutputTokens)
	assert.Equal(t, 36, summary.TotalTokens)
	assert.Equal(t, 3.0, summary.Time)
}

func TestGetUsageOnlyAssistantMessages(t *testing.T) {
	h := New()
	h.Add(llm.RoleUser, "q1")
	h.AddMessage(llm.ChatMessage{Role: llm.RoleAssistant, Content: "a1", Usage: llm.Usage{TotalTokens: 5}})
	h.Add(llm.RoleUser, "q2")

	usage := h.GetUsage()
	require.Len(t, usage, 1)
	assert.Equal(t, 5, usage[0].TotalTokens)
}

func TestErrorMessageNotCountedAsRound(t *testing.T) {
	h := New()
	h.AddMessage(llm.ChatMessage{Role: llm.RoleError, Content: "boom"})

	summary := h.GetSummary()
	assert.Zero(t, summary.Rounds)
}
