package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHistorySystemPromptOnlyOnEmptyHistory(t *testing.T) {
	full, system := buildHistory(nil, "hello", "be nice")
	assert.Equal(t, "be nice", system)
	require.Len(t, full, 1)
	assert.Equal(t, "hello", full[0].Content)

	full2, system2 := buildHistory([]ChatMessage{{Role: RoleUser, Content: "prior"}}, "next", "be nice")
	assert.Empty(t, system2)
	require.Len(t, full2, 2)
	assert.Equal(t, "next", full2[1].Content)
}

func TestConvertOpenAIMessagesSystemPrepended(t *testing.T) {
	msgs := convertOpenAIMessages([]ChatMessage{{Role: RoleUser, Content: "hi"}}, "sys")
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "sys", msgs[0].Content)
	assert.Equal(t, "user", msgs[1].Role)
}

type recordingSink struct {
	content   []string
	reasoning []string
}

func (s *recordingSink) OnContent(delta string)   { s.content = append(s.content, delta) }
func (s *recordingSink) OnReasoning(delta string) { s.reasoning = append(s.reasoning, delta) }

func TestOllamaClientSendStreamsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)

		lines := []ollamaChatResponse{
			{Message: &ollamaChatMessage{Role: "assistant", Content: "Hel"}},
			{Message: &ollamaChatMessage{Role: "assistant", Content: "lo"}},
			{Done: true, PromptEvalCount: 10, EvalCount: 2},
		}
		for _, l := range lines {
			data, _ := json.Marshal(l)
			w.Write(data)
			w.Write([]byte("\n"))
		}
	}))
	defer srv.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, DefaultModel: "llama3"})
	sink := &recordingSink{}

	msg, err := client.Send(context.Background(), nil, "hi", "", sink)
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg.Content)
	assert.Equal(t, []string{"Hel", "lo"}, sink.content)
	assert.Equal(t, 10, msg.Usage.InputTokens)
	assert.Equal(t, 2, msg.Usage.OutputTokens)
}

func TestOllamaClientSendPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, DefaultModel: "llama3"})
	msg, err := client.Send(context.Background(), nil, "hi", "", nil)
	require.Error(t, err)
	assert.Equal(t, RoleError, msg.Role)
	assert.True(t, strings.Contains(msg.Content, "server_error") || strings.Contains(err.Error(), "server_error"))
}

func TestClassifyErrorReasons(t *testing.T) {
	cases := map[string]FailoverReason{
		"429 too many requests":      FailoverRateLimit,
		"request timeout":            FailoverTimeout,
		"401 unauthorized":           FailoverAuth,
		"insufficient quota billed":  FailoverBilling,
		"500 internal server error":  FailoverServerError,
		"model not found":            FailoverModelUnavailable,
		"something entirely unknown": FailoverUnknown,
	}
	for msg, want := range cases {
		got := ClassifyError(errAsError(msg))
		assert.Equal(t, want, got, msg)
	}
}

func errAsError(msg string) error { return &testErr{msg} }

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

func TestRegistryCreateUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create("nonexistent", nil)
	assert.Error(t, err)
}

func TestRegistryCreateOllama(t *testing.T) {
	r := NewRegistry()
	client, err := r.Create("ollama", map[string]any{"base_url": "http://localhost:1", "model": "llama3"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", client.Name())
}
