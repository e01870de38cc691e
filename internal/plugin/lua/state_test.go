package lua

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

func newTestState(t *testing.T, opts ...StateOption) *State {
	t.Helper()
	st, err := NewState(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestDoStringAndCallGlobal(t *testing.T) {
	st := newTestState(t)
	ctx := context.Background()

	require.NoError(t, st.DoString(ctx, `function add(a, b) return a + b end`))
	assert.True(t, st.HasFunction("add"))
	assert.False(t, st.HasFunction("missing"))

	results, err := st.CallGlobal(ctx, "add", lua.LNumber(2), lua.LNumber(3))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, lua.LNumber(5), results[0])
}

func TestCallGlobalNotFunction(t *testing.T) {
	st := newTestState(t)
	require.NoError(t, st.DoString(context.Background(), `value = 1`))

	_, err := st.CallGlobal(context.Background(), "value")
	assert.ErrorIs(t, err, ErrNotFunction)
}

func TestCallErrorLeavesStackClean(t *testing.T) {
	st := newTestState(t)
	ctx := context.Background()
	require.NoError(t, st.DoString(ctx, `function boom() error("bad") end`))

	top := st.L.GetTop()
	_, err := st.CallGlobal(ctx, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, top, st.L.GetTop())
}

func TestSandboxRemovesUnsafeGlobals(t *testing.T) {
	st := newTestState(t)
	ctx := context.Background()

	for _, code := range []string{
		`dofile("x.lua")`,
		`loadstring("return 1")`,
		`io.write("x")`,
		`os.exit(1)`,
		`debug.traceback()`,
		`require("os")`,
	} {
		assert.Error(t, st.DoString(ctx, code), code)
	}

	require.NoError(t, st.DoString(ctx, `local s = require("string"); x = s.upper("ok")`))
	assert.Equal(t, lua.LString("OK"), st.L.GetGlobal("x"))
}

func TestRequirePreloadedModule(t *testing.T) {
	st := newTestState(t)
	st.PreloadModule("ks", func(L *lua.LState) int {
		mod := L.NewTable()
		L.SetField(mod, "answer", lua.LNumber(42))
		L.Push(mod)
		return 1
	})

	require.NoError(t, st.DoString(context.Background(), `answer = require("ks").answer`))
	assert.Equal(t, lua.LNumber(42), st.L.GetGlobal("answer"))
}

func TestPrinter(t *testing.T) {
	var lines []string
	st := newTestState(t, WithPrinter(func(msg string) { lines = append(lines, msg) }))

	require.NoError(t, st.DoString(context.Background(), `print("hello", 1, true)`))
	assert.Equal(t, []string{"hello\t1\ttrue"}, lines)
}

func TestExecutionTimeout(t *testing.T) {
	st := newTestState(t, WithExecutionTimeout(50*time.Millisecond))

	start := time.Now()
	err := st.DoString(context.Background(), `while true do end`)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	// The state is still usable.
	require.NoError(t, st.DoString(context.Background(), `ok = true`))
}

func TestReentrantCall(t *testing.T) {
	st := newTestState(t)
	ctx := context.Background()

	var callback *lua.LFunction
	st.SetGlobal("register", st.L.NewFunction(func(L *lua.LState) int {
		callback = L.CheckFunction(1)
		return 0
	}))
	st.SetGlobal("trigger", st.L.NewFunction(func(L *lua.LState) int {
		results, err := st.CallFunction(L.Context(), callback, lua.LString("inner"))
		if err != nil {
			L.RaiseError("%v", err)
		}
		L.Push(results[0])
		return 1
	}))

	require.NoError(t, st.DoString(ctx, `
		register(function(s) return s .. "!" end)
		result = trigger()
	`))
	assert.Equal(t, lua.LString("inner!"), st.L.GetGlobal("result"))
	assert.False(t, st.InState(ctx))
}

func TestDoFile(t *testing.T) {
	st := newTestState(t)
	path := filepath.Join(t.TempDir(), "init.lua")
	require.NoError(t, os.WriteFile(path, []byte(`loaded = "yes"`), 0o644))

	require.NoError(t, st.DoFile(context.Background(), path))
	assert.Equal(t, lua.LString("yes"), st.L.GetGlobal("loaded"))
}

func TestClosedState(t *testing.T) {
	st, err := NewState()
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.NoError(t, st.Close())

	assert.True(t, st.IsClosed())
	assert.ErrorIs(t, st.DoString(context.Background(), `x = 1`), ErrStateClosed)
	_, err = st.CallGlobal(context.Background(), "f")
	assert.ErrorIs(t, err, ErrStateClosed)
	assert.False(t, st.HasFunction("f"))
}

func TestInvokeBuildsArgsAndReadsResults(t *testing.T) {
	st := newTestState(t)
	ctx := context.Background()
	require.NoError(t, st.DoString(ctx, `function bump(t) t.n = t.n + 1; return "ok" end`))

	var fn *lua.LFunction
	require.NoError(t, st.Do(ctx, func(L *lua.LState) error {
		fn = L.GetGlobal("bump").(*lua.LFunction)
		return nil
	}))

	var ret string
	err := st.Invoke(ctx, fn,
		func(L *lua.LState) []lua.LValue {
			tbl := L.NewTable()
			tbl.RawSetString("n", lua.LNumber(41))
			return []lua.LValue{tbl}
		},
		func(L *lua.LState, results []lua.LValue) error {
			require.Len(t, results, 1)
			ret = results[0].String()
			return nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "ok", ret)

	assert.ErrorIs(t, st.Invoke(ctx, nil, nil, nil), ErrNotFunction)
}
