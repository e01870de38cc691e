package api

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extkernel/internal/kernel/action"
	"github.com/dshills/extkernel/internal/plugin/security"
)

// ActionModule implements the ks.action API module.
type ActionModule struct {
	ctx *Context
}

// NewActionModule creates a new action module.
func NewActionModule(ctx *Context) *ActionModule {
	return &ActionModule{ctx: ctx}
}

// Name returns the module name.
func (m *ActionModule) Name() string {
	return "action"
}

// RequiredCapability returns the capability required for this module.
func (m *ActionModule) RequiredCapability() security.Capability {
	return security.CapabilityActions
}

// Register registers the module into the Lua state.
func (m *ActionModule) Register(L *lua.LState) error {
	mod := L.NewTable()
	L.SetField(mod, "register", L.NewFunction(m.register))
	L.SetField(mod, "update", L.NewFunction(m.update))
	L.SetField(mod, "perform", L.NewFunction(m.perform))
	L.SetField(mod, "ids", L.NewFunction(m.ids))
	L.SetGlobal("_ks_action", mod)
	return nil
}

// register{id=, update=fn, perform=fn} -> handle
// update receives a state table it may change; perform receives the state
// the last update produced.
func (m *ActionModule) register(L *lua.LState) int {
	spec := L.CheckTable(1)
	id := optString(spec, "id")
	if id == "" {
		L.ArgError(1, "id is required")
		return 0
	}
	updateFn := optFunction(L, spec, "update")
	performFn := optFunction(L, spec, "perform")
	if performFn == nil {
		L.ArgError(1, "perform is required")
		return 0
	}

	update := func(context.Context, *action.State) {}
	if updateFn != nil {
		update = func(ctx context.Context, st *action.State) {
			// Update has no error return; the registry recovers this
			// panic and keeps the last good presentation.
			if err := m.call(ctx, updateFn, st); err != nil {
				panic(fmt.Errorf("lua update: %w", err))
			}
		}
	}
	perform := func(ctx context.Context, st *action.State) error {
		return m.call(ctx, performFn, st)
	}

	d, err := m.ctx.API.Actions.Register(id, update, perform)
	if err != nil {
		L.RaiseError("register: %v", err)
		return 0
	}
	if err := m.ctx.track(d); err != nil {
		L.RaiseError("register: %v", err)
		return 0
	}
	return pushHandle(L, d)
}

// call runs fn with st as a table and copies the table back into st.
func (m *ActionModule) call(ctx context.Context, fn *lua.LFunction, st *action.State) error {
	var tbl *lua.LTable
	return m.ctx.invoke(ctx, fn,
		func(L *lua.LState) []lua.LValue {
			tbl = stateToTable(L, st)
			return []lua.LValue{tbl}
		},
		func(L *lua.LState, _ []lua.LValue) error {
			m.tableToState(ctx, tbl, st)
			return nil
		},
	)
}

func stateToTable(L *lua.LState, st *action.State) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("text", lua.LString(st.Text()))
	tbl.RawSetString("description", lua.LString(st.Description()))
	tbl.RawSetString("visible", lua.LBool(st.Visible()))
	tbl.RawSetString("enabled", lua.LBool(st.Enabled()))
	return tbl
}

func (m *ActionModule) tableToState(ctx context.Context, tbl *lua.LTable, st *action.State) {
	if s, ok := tbl.RawGetString("text").(lua.LString); ok {
		st.SetText(string(s))
	}
	if s, ok := tbl.RawGetString("description").(lua.LString); ok {
		st.SetDescription(string(s))
	}
	st.SetVisible(lua.LVAsBool(tbl.RawGetString("visible")))
	st.SetEnabled(lua.LVAsBool(tbl.RawGetString("enabled")))

	if id, ok := tbl.RawGetString("icon").(lua.LString); ok && m.ctx.API.Images != nil {
		if img, found := m.ctx.API.Images.Image(ctx, string(id)); found {
			st.SetIcon(img)
		}
	}
}

// update(id) -> presentation | nil
func (m *ActionModule) update(L *lua.LState) int {
	id := L.CheckString(1)
	p, ok := m.ctx.API.Actions.Update(luaContext(L), id)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(presentationToTable(L, p))
	return 1
}

// perform(id) -> true | false, err
func (m *ActionModule) perform(L *lua.LState) int {
	id := L.CheckString(1)
	return pushResult(L, m.ctx.API.Actions.Perform(luaContext(L), id))
}

// ids() -> {id, ...}
func (m *ActionModule) ids(L *lua.LState) int {
	tbl := L.NewTable()
	for _, id := range m.ctx.API.Actions.IDs() {
		tbl.Append(lua.LString(id))
	}
	L.Push(tbl)
	return 1
}

func presentationToTable(L *lua.LState, p action.Presentation) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("text", lua.LString(p.Text))
	tbl.RawSetString("description", lua.LString(p.Description))
	tbl.RawSetString("visible", lua.LBool(p.Visible))
	tbl.RawSetString("enabled", lua.LBool(p.Enabled))
	if p.Icon != nil {
		tbl.RawSetString("icon", lua.LString(p.Icon.String()))
	}
	return tbl
}
