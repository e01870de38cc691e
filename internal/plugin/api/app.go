package api

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extkernel/internal/plugin/security"
)

// AppModule implements the ks.app API module. It is read-only.
type AppModule struct {
	ctx *Context
}

// NewAppModule creates a new app module.
func NewAppModule(ctx *Context) *AppModule {
	return &AppModule{ctx: ctx}
}

// Name returns the module name.
func (m *AppModule) Name() string {
	return "app"
}

// RequiredCapability returns the capability required for this module.
func (m *AppModule) RequiredCapability() security.Capability {
	return security.CapabilityApp
}

// Register registers the module into the Lua state.
func (m *AppModule) Register(L *lua.LState) error {
	mod := L.NewTable()
	L.SetField(mod, "user", L.NewFunction(m.user))
	L.SetField(mod, "workspace", L.NewFunction(m.workspace))
	L.SetField(mod, "project", L.NewFunction(m.project))
	L.SetField(mod, "endpoint", L.NewFunction(m.endpoint))
	L.SetField(mod, "editors", L.NewFunction(m.editors))
	L.SetField(mod, "active_editor", L.NewFunction(m.activeEditor))
	L.SetGlobal("_ks_app", mod)
	return nil
}

// user() -> {id=, name=, email=}
func (m *AppModule) user(L *lua.LState) int {
	u := m.ctx.API.App.CurrentUser()
	tbl := L.NewTable()
	tbl.RawSetString("id", lua.LString(u.ID))
	tbl.RawSetString("name", lua.LString(u.Name))
	tbl.RawSetString("email", lua.LString(u.Email))
	L.Push(tbl)
	return 1
}

// workspace() -> id
func (m *AppModule) workspace(L *lua.LState) int {
	L.Push(lua.LString(m.ctx.API.App.WorkspaceID()))
	return 1
}

// project() -> {name=, path=}
func (m *AppModule) project(L *lua.LState) int {
	p := m.ctx.API.App.Project()
	tbl := L.NewTable()
	tbl.RawSetString("name", lua.LString(p.Name))
	tbl.RawSetString("path", lua.LString(p.Path))
	L.Push(tbl)
	return 1
}

// endpoint(name) -> url | nil
func (m *AppModule) endpoint(L *lua.LState) int {
	url, ok := m.ctx.API.App.Endpoints()[L.CheckString(1)]
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(url))
	return 1
}

// editors() -> {location, ...}
func (m *AppModule) editors(L *lua.LState) int {
	tbl := L.NewTable()
	if m.ctx.API.Editors != nil {
		for _, loc := range m.ctx.API.Editors.OpenEditors() {
			tbl.Append(lua.LString(loc))
		}
	}
	L.Push(tbl)
	return 1
}

// active_editor() -> location | nil
func (m *AppModule) activeEditor(L *lua.LState) int {
	if m.ctx.API.Editors != nil {
		if loc, ok := m.ctx.API.Editors.ActiveEditor(); ok {
			L.Push(lua.LString(loc))
			return 1
		}
	}
	L.Push(lua.LNil)
	return 1
}
