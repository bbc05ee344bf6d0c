package runtime

import (
	"context"

	"github.com/aipy-go/aipy/internal/blocks"
)

// Executor runs one code block's source against a shared facade and
// persistent state, returning its ExecResult. Implementations must trap
// any failure the block raises into ErrStr/Traceback rather than
// propagating it to the caller; Run never returns an error for a block
// failure, only for the runtime's own logic bugs (callers should treat
// Run as otherwise infallible).
type Executor interface {
	Run(ctx context.Context, lang, code string, facade *Facade, persist *PersistentState) ExecResult
}

// Lang is the single executable language tag this runtime instance
// recognizes; blocks in any other language are never executed.
const unsupportedLangStderr = "unsupported language"

// Runtime ties together a registry, executor backend, facade, and
// persistent state for one task, and exposes the single `Run(block)`
// contract the task loop drives.
type Runtime struct {
	Registry  *blocks.Registry
	Executor  Executor
	Facade    *Facade
	Persist   *PersistentState
	Env       *EnvTable
	execLang  string
	history   []RunRecord
}

// NewRuntime builds a task-scoped runtime. execLang is the only language
// tag Run will actually hand to the executor backend.
func NewRuntime(registry *blocks.Registry, exec Executor, facade *Facade, persist *PersistentState, env *EnvTable, execLang string) *Runtime {
	return &Runtime{
		Registry: registry,
		Executor: exec,
		Facade:   facade,
		Persist:  persist,
		Env:      env,
		execLang: execLang,
	}
}

// Run executes one block, appending a RunRecord to the task's run history
// and returning the LLM-facing ExecResult (without env_delta/session_delta,
// which live only in the history record).
func (r *Runtime) Run(ctx context.Context, block blocks.CodeBlock) ExecResult {
	if block.Lang != r.execLang {
		result := ExecResult{Stderr: unsupportedLangStderr, BlockID: block.ID}
		r.history = append(r.history, RunRecord{BlockID: block.ID, Result: result})
		return result
	}

	envBefore := r.Env.Snapshot()
	sessionBefore := r.Persist.Snapshot()

	result := r.Executor.Run(ctx, block.Lang, block.Code, r.Facade, r.Persist)
	result.BlockID = block.ID
	result.Result = filterResult(result.Result, r.Env.Names())
	result.Stdout = filterStream(result.Stdout)
	result.Stderr = filterStream(result.Stderr)

	envAfter := r.Env.Snapshot()
	sessionAfter := r.Persist.Snapshot()

	record := RunRecord{
		BlockID:      block.ID,
		Result:       result,
		EnvDelta:     diffEnv(envBefore, envAfter),
		SessionDelta: diffSession(sessionBefore, sessionAfter),
	}
	r.history = append(r.history, record)
	return result
}

// History returns the task's accumulated run records, used for the JSON
// task-artifact snapshot and post-task diagnostics.
func (r *Runtime) History() []RunRecord {
	out := make([]RunRecord, len(r.history))
	copy(out, r.history)
	return out
}
