package runtime

import (
	"bytes"
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// LuaExecutor runs each block in-process against an embedded Lua VM,
// exposing set_result/set_persistent_state/get_persistent_state and the
// runtime facade's gated operations as Lua globals, mirroring the
// source's globals-dict convention. Unlike SubprocessExecutor this
// backend can service install_packages/get_env/display/input mid-script
// because the VM and the host share one process.
type LuaExecutor struct{}

// NewLuaExecutor returns the embedded fallback executor.
func NewLuaExecutor() *LuaExecutor { return &LuaExecutor{} }

// Run implements Executor.
func (e *LuaExecutor) Run(ctx context.Context, lang, code string, facade *Facade, persist *PersistentState) ExecResult {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	defer L.Close()
	L.SetContext(ctx)

	var stdout, stderr bytes.Buffer
	resultBag := make(map[string]any)

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		for i := 1; i <= n; i++ {
			if i > 1 {
				stdout.WriteByte('\t')
			}
			stdout.WriteString(L.ToStringMeta(L.Get(i)).String())
		}
		stdout.WriteByte('\n')
		return 0
	}))

	L.SetGlobal("set_result", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		tbl.ForEach(func(k, v lua.LValue) {
			resultBag[k.String()] = fromLua(v)
		})
		return 0
	}))

	L.SetGlobal("set_persistent_state", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		kv := make(map[string]any)
		tbl.ForEach(func(k, v lua.LValue) {
			kv[k.String()] = fromLua(v)
		})
		persist.Set(kv)
		return 0
	}))

	L.SetGlobal("get_persistent_state", L.NewFunction(func(L *lua.LState) int {
		key := L.CheckString(1)
		v, ok := persist.Get(key)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(toLua(L, v))
		return 1
	}))

	L.SetGlobal("input", L.NewFunction(func(L *lua.LState) int {
		prompt := L.OptString(1, "")
		if facade == nil {
			L.Push(lua.LString(""))
			return 1
		}
		L.Push(lua.LString(facade.Input(prompt)))
		return 1
	}))

	L.SetGlobal("get_code_by_id", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		if facade == nil {
			L.Push(lua.LNil)
			return 1
		}
		code, ok := facade.GetCodeByID(id)
		if !ok {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(code))
		return 1
	}))

	rt := L.NewTable()
	L.SetField(rt, "install_packages", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		names := make([]string, 0, n)
		for i := 1; i <= n; i++ {
			names = append(names, L.CheckString(i))
		}
		ok := facade != nil && facade.InstallPackages(ctx, names...)
		L.Push(lua.LBool(ok))
		return 1
	}))
	L.SetField(rt, "get_env", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		def := L.OptString(2, "")
		desc := L.OptString(3, "")
		if facade == nil {
			L.Push(lua.LString(def))
			return 1
		}
		L.Push(lua.LString(facade.GetEnv(name, def, desc)))
		return 1
	}))
	L.SetField(rt, "display", L.NewFunction(func(L *lua.LState) int {
		target := L.OptString(1, "")
		if facade != nil {
			facade.Display(target)
		}
		return 0
	}))
	L.SetGlobal("runtime", rt)

	if err := L.DoString(code); err != nil {
		return ExecResult{
			Stdout:    stdout.String(),
			Stderr:    stderr.String(),
			ErrStr:    shortError(err),
			Traceback: err.Error(),
		}
	}

	return ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Result: resultBag,
	}
}

func shortError(err error) string {
	msg := err.Error()
	if len(msg) > 200 {
		return msg[:200]
	}
	return msg
}

func fromLua(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if val.Len() > 0 {
			out := make([]any, 0, val.Len())
			val.ForEach(func(_, v lua.LValue) { out = append(out, fromLua(v)) })
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, v lua.LValue) { out[k.String()] = fromLua(v) })
		return out
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case map[string]any:
		tbl := L.NewTable()
		for k, e := range val {
			L.SetField(tbl, k, toLua(L, e))
		}
		return tbl
	case []any:
		tbl := L.NewTable()
		for i, e := range val {
			tbl.RawSetInt(i+1, toLua(L, e))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
