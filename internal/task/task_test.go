package task

import (
	"context"
	"fmt"
	"testing"

	"github.com/aipy-go/aipy/internal/blocks"
	"github.com/aipy-go/aipy/internal/bus"
	"github.com/aipy-go/aipy/internal/llm"
	execruntime "github.com/aipy-go/aipy/internal/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient replies with a fixed sequence of ChatMessages, one per
// Send call, looping on the last entry if Send is called more times than
// there are scripted replies (used by the round-cap test).
type scriptedClient struct {
	replies []llm.ChatMessage
	calls   int
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Send(ctx context.Context, history []llm.ChatMessage, prompt, systemPrompt string, sink llm.StreamSink) (llm.ChatMessage, error) {
	idx := c.calls
	if idx >= len(c.replies) {
		idx = len(c.replies) - 1
	}
	c.calls++
	reply := c.replies[idx]
	if sink != nil && reply.Content != "" {
		sink.OnContent(reply.Content)
	}
	return reply, nil
}

type errClient struct{}

func (errClient) Name() string { return "err" }
func (errClient) Send(ctx context.Context, history []llm.ChatMessage, prompt, systemPrompt string, sink llm.StreamSink) (llm.ChatMessage, error) {
	return llm.ChatMessage{Role: llm.RoleError, Content: "boom"}, fmt.Errorf("boom")
}

type stubExecutor struct {
	result execruntime.ExecResult
}

func (e stubExecutor) Run(ctx context.Context, lang, code string, facade *execruntime.Facade, persist *execruntime.PersistentState) execruntime.ExecResult {
	return e.result
}

type noopConfirmer struct{}

func (noopConfirmer) Confirm(string) bool  { return true }
func (noopConfirmer) Prompt(string) string { return "" }

type noopDisplay struct{}

func (noopDisplay) Broadcast(string) {}

func newTestRuntime(t *testing.T, execResult execruntime.ExecResult) (*blocks.Registry, *execruntime.Runtime) {
	t.Helper()
	registry := blocks.NewRegistry("python")
	env := execruntime.NewEnvTable()
	facade := execruntime.NewFacade(execruntime.Config{AutoInstall: true, AutoGetEnv: true}, noopConfirmer{}, env, registry, noopDisplay{}, nil)
	rt := execruntime.NewRuntime(registry, stubExecutor{result: execResult}, facade, execruntime.NewPersistentState(), env, "python")
	return registry, rt
}

func withBlock(reply, id string) string {
	return fmt.Sprintf(`%s
<!-- Block-Start: {"id":"%s"} -->
`+"```python\nprint(1)\n```"+`
<!-- Block-End: {"id":"%s"} -->
<!-- Cmd-Exec: {"id":"%s"} -->
`, reply, id, id, id)
}

func TestRunEndsWhenReplyHasNoExecOrToolCall(t *testing.T) {
	registry, rt := newTestRuntime(t, execruntime.ExecResult{})
	client := &scriptedClient{replies: []llm.ChatMessage{{Role: llm.RoleAssistant, Content: "all done, nothing to execute"}}}

	tsk := New(Deps{Client: client, Registry: registry, Runtime: rt, Bus: bus.New(nil), SystemPrompt: "sys"}, DefaultConfig())
	err := tsk.Run(context.Background(), "do the thing")

	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestRunExecutesBlockAndLoopsOnce(t *testing.T) {
	registry, rt := newTestRuntime(t, execruntime.ExecResult{Stdout: "ok"})
	client := &scriptedClient{replies: []llm.ChatMessage{
		{Role: llm.RoleAssistant, Content: withBlock("running code", "b1")},
		{Role: llm.RoleAssistant, Content: "finished"},
	}}

	tsk := New(Deps{Client: client, Registry: registry, Runtime: rt, Bus: bus.New(nil)}, DefaultConfig())
	err := tsk.Run(context.Background(), "do the thing")

	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestRunStopsAtRoundCap(t *testing.T) {
	registry, rt := newTestRuntime(t, execruntime.ExecResult{Stdout: "ok"})
	client := &scriptedClient{replies: []llm.ChatMessage{
		{Role: llm.RoleAssistant, Content: withBlock("keep going", "loop")},
	}}
	cfg := DefaultConfig()
	cfg.MaxRounds = 3

	tsk := New(Deps{Client: client, Registry: registry, Runtime: rt, Bus: bus.New(nil)}, cfg)
	err := tsk.Run(context.Background(), "do the thing")

	require.NoError(t, err)
	assert.Equal(t, 3, client.calls)
}

func TestRunReturnsProviderError(t *testing.T) {
	registry, rt := newTestRuntime(t, execruntime.ExecResult{})
	tsk := New(Deps{Client: errClient{}, Registry: registry, Runtime: rt, Bus: bus.New(nil)}, DefaultConfig())

	err := tsk.Run(context.Background(), "do the thing")
	require.Error(t, err)
}

func TestRunRespectsStopFlagBetweenRounds(t *testing.T) {
	registry, rt := newTestRuntime(t, execruntime.ExecResult{Stdout: "ok"})
	client := &scriptedClient{replies: []llm.ChatMessage{
		{Role: llm.RoleAssistant, Content: withBlock("keep going", "loop")},
	}}
	tsk := New(Deps{Client: client, Registry: registry, Runtime: rt, Bus: bus.New(nil)}, DefaultConfig())
	tsk.Stop()

	err := tsk.Run(context.Background(), "do the thing")
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)
}

func TestProcessReplyParseErrorFeedback(t *testing.T) {
	registry, rt := newTestRuntime(t, execruntime.ExecResult{})
	tsk := New(Deps{Registry: registry, Runtime: rt, Bus: bus.New(nil)}, DefaultConfig())

	feedback, keepGoing := tsk.processReply(context.Background(), `<!-- Cmd-Exec: {"id":"missing"} -->`)
	assert.True(t, keepGoing)
	assert.Contains(t, feedback, "# Message parse errors")
	assert.Contains(t, feedback, "exec_target_missing")
}
