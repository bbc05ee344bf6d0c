package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastFansOutToAllHandlers(t *testing.T) {
	b := New(nil)
	var calls []string
	b.Register("task_start", func(args ...any) any {
		calls = append(calls, "first")
		return nil
	})
	b.Register("task_start", func(args ...any) any {
		calls = append(calls, "second")
		return nil
	})

	b.Broadcast("task_start", "instr")
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestBroadcastRecoversPanicAndContinues(t *testing.T) {
	b := New(nil)
	var ran bool
	b.Register("exec", func(args ...any) any {
		panic("boom")
	})
	b.Register("exec", func(args ...any) any {
		ran = true
		return nil
	})

	require.NotPanics(t, func() { b.Broadcast("exec") })
	assert.True(t, ran)
}

func TestPipelineThreadsMutatedData(t *testing.T) {
	b := New(nil)
	b.Register("response_stream", func(args ...any) any {
		return args[0].(string) + "-a"
	})
	b.Register("response_stream", func(args ...any) any {
		return args[0].(string) + "-b"
	})

	result := b.Pipeline("response_stream", "start")
	assert.Equal(t, "start-a-b", result)
}

func TestPipelinePanicLeavesDataUnchanged(t *testing.T) {
	b := New(nil)
	b.Register("result", func(args ...any) any {
		panic("boom")
	})

	result := b.Pipeline("result", "unchanged")
	assert.Equal(t, "unchanged", result)
}

func TestCollectReturnsAllValuesInOrder(t *testing.T) {
	b := New(nil)
	b.Register("summary", func(args ...any) any { return 1 })
	b.Register("summary", func(args ...any) any { return 2 })

	out := b.Collect("summary")
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0])
	assert.Equal(t, 2, out[1])
}

type recordingPlugin struct {
	started []string
}

func (p *recordingPlugin) OnTaskStart(instruction string) {
	p.started = append(p.started, instruction)
}

func (p *recordingPlugin) NotAHandler() {}

func TestRegisterPluginWiresOnPrefixMethods(t *testing.T) {
	b := New(nil)
	p := &recordingPlugin{}
	RegisterPlugin(b, p)

	b.Broadcast("task_start", "do the thing")
	assert.Equal(t, []string{"do the thing"}, p.started)
}

func TestStopIsCooperative(t *testing.T) {
	b := New(nil)
	assert.False(t, b.IsStopped())
	b.Stop()
	assert.True(t, b.IsStopped())
}
