package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// removedGlobals can load code from disk or strings.
var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring"}

// safeModules may be required by any plugin.
var safeModules = map[string]bool{
	"string": true,
	"table":  true,
	"math":   true,
}

// ModuleRoot is the prefix of modules the host preloads.
const ModuleRoot = "ks"

func installSandbox(L *lua.LState, printer func(string)) {
	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	if pkg, ok := L.GetGlobal("package").(*lua.LTable); ok {
		L.SetField(pkg, "path", lua.LString(""))
		L.SetField(pkg, "cpath", lua.LString(""))
	}

	original := L.GetGlobal("require")
	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if !allowedModule(name) {
			L.RaiseError("%s: %q", ErrModuleUnavailable.Error(), name)
			return 0
		}
		L.Push(original)
		L.Push(lua.LString(name))
		L.Call(1, 1)
		return 1
	}))

	if printer != nil {
		L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
			parts := make([]string, L.GetTop())
			for i := range parts {
				parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
			}
			printer(strings.Join(parts, "\t"))
			return 0
		}))
	}
}

func allowedModule(name string) bool {
	return safeModules[name] || name == ModuleRoot || strings.HasPrefix(name, ModuleRoot+".")
}
