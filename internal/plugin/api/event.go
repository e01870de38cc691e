package api

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extkernel/internal/kernel/event"
	plua "github.com/dshills/extkernel/internal/plugin/lua"
	"github.com/dshills/extkernel/internal/plugin/security"
)

// EventModule implements the ks.event API module. Handlers see a table of
// the payload's fields.
type EventModule struct {
	ctx *Context
}

// NewEventModule creates a new event module.
func NewEventModule(ctx *Context) *EventModule {
	return &EventModule{ctx: ctx}
}

// Name returns the module name.
func (m *EventModule) Name() string {
	return "event"
}

// RequiredCapability returns the capability required for this module.
func (m *EventModule) RequiredCapability() security.Capability {
	return security.CapabilityEvents
}

// Register registers the module into the Lua state.
func (m *EventModule) Register(L *lua.LState) error {
	mod := L.NewTable()
	L.SetField(mod, "on", L.NewFunction(m.on))
	L.SetField(mod, "names", L.NewFunction(m.names))
	L.SetGlobal("_ks_event", mod)
	return nil
}

// on(name, handler) -> handle
func (m *EventModule) on(L *lua.LState) int {
	name := L.CheckString(1)
	handler := L.CheckFunction(2)

	key, ok := event.Lookup(name)
	if !ok {
		L.ArgError(1, "unknown event "+name)
		return 0
	}

	d, err := m.ctx.API.Events.Subscribe(key, func(ctx context.Context, payload any) error {
		return m.ctx.invoke(ctx, handler, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{payloadToLua(L, payload)}
		}, nil)
	})
	if err != nil {
		L.RaiseError("on: %v", err)
		return 0
	}
	if err := m.ctx.track(d); err != nil {
		L.RaiseError("on: %v", err)
		return 0
	}
	return pushHandle(L, d)
}

// names() -> {name, ...}
func (m *EventModule) names(L *lua.LState) int {
	tbl := L.NewTable()
	for _, name := range event.Exported() {
		tbl.Append(lua.LString(name))
	}
	L.Push(tbl)
	return 1
}

func payloadToLua(L *lua.LState, payload any) lua.LValue {
	if f, ok := payload.(event.Fielder); ok {
		return plua.ToLuaValue(L, f.Fields())
	}
	return plua.ToLuaValue(L, payload)
}
