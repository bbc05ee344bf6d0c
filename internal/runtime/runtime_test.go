package runtime

import (
	"context"
	"testing"

	"github.com/aipy-go/aipy/internal/blocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T) (*Runtime, *blocks.Registry) {
	t.Helper()
	reg := blocks.NewRegistry("lua")
	persist := NewPersistentState()
	env := NewEnvTable()
	facade := NewFacade(Config{AutoGetEnv: true}, nil, env, reg, nil, nil)
	rt := NewRuntime(reg, NewLuaExecutor(), facade, persist, env, "lua")
	return rt, reg
}

func TestLuaExecutorSetResult(t *testing.T) {
	rt, reg := newTestRuntime(t)
	reg.Parse("<!-- Block-Start: {\"id\":\"b1\"} -->\n```lua\nprint(\"hi\")\nset_result{n=1}\n```\n<!-- Block-End: {\"id\":\"b1\"} -->", false)
	block, _ := reg.Get("b1")

	result := rt.Run(context.Background(), block)
	assert.Equal(t, "hi\n", result.Stdout)
	assert.Equal(t, float64(1), result.Result["n"])
}

func TestLuaExecutorPersistentStateContinuity(t *testing.T) {
	rt, reg := newTestRuntime(t)
	reg.Parse("<!-- Block-Start: {\"id\":\"a\"} -->\n```lua\nset_persistent_state{count=1}\n```\n<!-- Block-End: {\"id\":\"a\"} -->", false)
	blockA, _ := reg.Get("a")
	rt.Run(context.Background(), blockA)

	reg.Parse("<!-- Block-Start: {\"id\":\"b\"} -->\n```lua\nset_result{n=get_persistent_state(\"count\")+1}\n```\n<!-- Block-End: {\"id\":\"b\"} -->", false)
	blockB, _ := reg.Get("b")
	result := rt.Run(context.Background(), blockB)

	assert.Equal(t, float64(2), result.Result["n"])
}

func TestUnsupportedLanguage(t *testing.T) {
	rt, reg := newTestRuntime(t)
	reg.Parse("<!-- Block-Start: {\"id\":\"c\"} -->\n```markdown\nhello\n```\n<!-- Block-End: {\"id\":\"c\"} -->", false)
	block, _ := reg.Get("c")
	result := rt.Run(context.Background(), block)
	assert.Equal(t, unsupportedLangStderr, result.Stderr)
}

func TestResultMasking(t *testing.T) {
	reg := blocks.NewRegistry("lua")
	persist := NewPersistentState()
	env := NewEnvTable()
	env.Set("API_KEY", "super-secret", "")
	facade := NewFacade(Config{AutoGetEnv: true}, nil, env, reg, nil, nil)
	rt := NewRuntime(reg, NewLuaExecutor(), facade, persist, env, "lua")

	reg.Parse("<!-- Block-Start: {\"id\":\"b1\"} -->\n```lua\nset_result{API_KEY=\"super-secret\", ok=true}\n```\n<!-- Block-End: {\"id\":\"b1\"} -->", false)
	block, _ := reg.Get("b1")
	result := rt.Run(context.Background(), block)

	require.Contains(t, result.Result, "API_KEY")
	assert.Equal(t, maskedSentinel, result.Result["API_KEY"])
	assert.Equal(t, true, result.Result["ok"])
}

func TestLuaExecutorTrapsError(t *testing.T) {
	rt, reg := newTestRuntime(t)
	reg.Parse("<!-- Block-Start: {\"id\":\"b1\"} -->\n```lua\nerror(\"boom\")\n```\n<!-- Block-End: {\"id\":\"b1\"} -->", false)
	block, _ := reg.Get("b1")
	result := rt.Run(context.Background(), block)
	assert.NotEmpty(t, result.ErrStr)
	assert.Contains(t, result.Traceback, "boom")
}

func TestRunHistoryRecordsDeltas(t *testing.T) {
	rt, reg := newTestRuntime(t)
	reg.Parse("<!-- Block-Start: {\"id\":\"a\"} -->\n```lua\nset_persistent_state{k=1}\n```\n<!-- Block-End: {\"id\":\"a\"} -->", false)
	block, _ := reg.Get("a")
	rt.Run(context.Background(), block)

	history := rt.History()
	require.Len(t, history, 1)
	assert.Equal(t, "a", history[0].BlockID)
	assert.Contains(t, history[0].SessionDelta, "k")
}
