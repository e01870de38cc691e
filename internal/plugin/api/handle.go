package api

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extkernel/internal/kernel/disposable"
)

const handleTypeName = "ks.disposable"

func registerHandleTypes(L *lua.LState) {
	mt := L.NewTypeMetatable(handleTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"dispose": disposeHandle,
	}))

	registerPartType(L)
}

// pushHandle returns d to Lua as an object with a dispose method.
func pushHandle(L *lua.LState, d disposable.Disposable) int {
	ud := L.NewUserData()
	ud.Value = d
	L.SetMetatable(ud, L.GetTypeMetatable(handleTypeName))
	L.Push(ud)
	return 1
}

// dispose() -> true | false, err
func disposeHandle(L *lua.LState) int {
	ud := L.CheckUserData(1)
	d, ok := ud.Value.(disposable.Disposable)
	if !ok {
		L.ArgError(1, "disposable expected")
		return 0
	}
	return pushResult(L, d.Dispose())
}

// pushResult pushes true, or false and the error message.
func pushResult(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// optFunction returns the function stored in t[key], or nil.
func optFunction(L *lua.LState, t *lua.LTable, key string) *lua.LFunction {
	switch v := t.RawGetString(key).(type) {
	case *lua.LFunction:
		return v
	case *lua.LNilType:
		return nil
	default:
		L.RaiseError("%s must be a function", key)
		return nil
	}
}

func optString(t *lua.LTable, key string) string {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func optInt(t *lua.LTable, key string) int {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return int(n)
	}
	return 0
}
