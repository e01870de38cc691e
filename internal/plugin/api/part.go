package api

import (
	"context"
	"log/slog"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extkernel/internal/kernel/disposable"
	"github.com/dshills/extkernel/internal/kernel/dom"
	"github.com/dshills/extkernel/internal/kernel/part"
	"github.com/dshills/extkernel/internal/plugin/security"
)

const partTypeName = "ks.part"

// luaPart is a part whose view and open hook are Lua functions.
type luaPart struct {
	ctx     *Context
	title   string
	tooltip string
	size    int
	image   string
	unread  atomic.Int64
	html    string
	view    *lua.LFunction
	onOpen  *lua.LFunction
}

func (p *luaPart) Title() string            { return p.title }
func (p *luaPart) TitleToolTip() string     { return p.tooltip }
func (p *luaPart) UnreadNotifications() int { return int(p.unread.Load()) }
func (p *luaPart) Size() int                { return p.size }
func (p *luaPart) ImageID() string          { return p.image }

// View calls the view function, which returns markup. Without one the
// static html is rendered. Failures yield nil so the last view is kept.
func (p *luaPart) View(ctx context.Context) *dom.Element {
	if p.view == nil {
		return dom.HTML(p.html)
	}
	var markup string
	var ok bool
	err := p.ctx.invoke(ctx, p.view, nil, func(_ *lua.LState, results []lua.LValue) error {
		if len(results) > 0 {
			var s lua.LString
			s, ok = results[0].(lua.LString)
			markup = string(s)
		}
		return nil
	})
	if err != nil {
		p.ctx.logger(ctx).WarnContext(ctx, "part view failed",
			slog.String("part", p.title), slog.Any("error", err))
		return nil
	}
	if !ok {
		return nil
	}
	return dom.HTML(markup)
}

// OnOpen calls on_open, if set.
func (p *luaPart) OnOpen(ctx context.Context) {
	if p.onOpen == nil {
		return
	}
	if err := p.ctx.invoke(ctx, p.onOpen, nil, nil); err != nil {
		p.ctx.logger(ctx).WarnContext(ctx, "part on_open failed",
			slog.String("part", p.title), slog.Any("error", err))
	}
}

// partHandle is the Lua view of an opened part.
type partHandle struct {
	module *PartModule
	part   *luaPart
	remove disposable.Disposable
}

// Dispose removes the part.
func (h *partHandle) Dispose() error {
	return h.remove.Dispose()
}

// PartModule implements the ks.part API module.
type PartModule struct {
	ctx *Context
}

// NewPartModule creates a new part module.
func NewPartModule(ctx *Context) *PartModule {
	return &PartModule{ctx: ctx}
}

// Name returns the module name.
func (m *PartModule) Name() string {
	return "part"
}

// RequiredCapability returns the capability required for this module.
func (m *PartModule) RequiredCapability() security.Capability {
	return security.CapabilityParts
}

// Register registers the module into the Lua state.
func (m *PartModule) Register(L *lua.LState) error {
	mod := L.NewTable()
	L.SetField(mod, "open", L.NewFunction(m.open))
	L.SetField(mod, "active", L.NewFunction(m.active))
	L.SetGlobal("_ks_part", mod)
	return nil
}

func registerPartType(L *lua.LState) {
	mt := L.NewTypeMetatable(partTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"activate":   partActivate,
		"hide":       partHide,
		"remove":     partRemove,
		"dispose":    partRemove,
		"state":      partState,
		"view":       partView,
		"set_unread": partSetUnread,
	}))
}

// open{title=, tooltip=, size=, image=, stack=, html=, view=fn, on_open=fn} -> part
func (m *PartModule) open(L *lua.LState) int {
	spec := L.CheckTable(1)

	p := &luaPart{
		ctx:     m.ctx,
		title:   optString(spec, "title"),
		tooltip: optString(spec, "tooltip"),
		size:    optInt(spec, "size"),
		image:   optString(spec, "image"),
		html:    optString(spec, "html"),
		view:    optFunction(L, spec, "view"),
		onOpen:  optFunction(L, spec, "on_open"),
	}
	p.unread.Store(int64(optInt(spec, "unread")))
	if p.title == "" {
		L.ArgError(1, "title is required")
		return 0
	}

	stack := part.Tooling
	if name := optString(spec, "stack"); name != "" {
		s, err := part.ParseStack(name)
		if err != nil {
			L.ArgError(1, err.Error())
			return 0
		}
		stack = s
	}

	d, err := m.ctx.API.Parts.Open(luaContext(L), p, stack)
	if err != nil {
		L.RaiseError("open: %v", err)
		return 0
	}
	h := &partHandle{module: m, part: p, remove: d}
	if err := m.ctx.track(h); err != nil {
		L.RaiseError("open: %v", err)
		return 0
	}

	ud := L.NewUserData()
	ud.Value = h
	L.SetMetatable(ud, L.GetTypeMetatable(partTypeName))
	L.Push(ud)
	return 1
}

// active(stack) -> title | nil
func (m *PartModule) active(L *lua.LState) int {
	stack, err := part.ParseStack(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	p, ok := m.ctx.API.Parts.Active(stack)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(p.Title()))
	return 1
}

func checkPart(L *lua.LState) *partHandle {
	ud := L.CheckUserData(1)
	h, ok := ud.Value.(*partHandle)
	if !ok {
		L.ArgError(1, "part expected")
		return nil
	}
	return h
}

// part:activate() -> true | false, err
func partActivate(L *lua.LState) int {
	h := checkPart(L)
	return pushResult(L, h.module.ctx.API.Parts.Activate(luaContext(L), h.part))
}

// part:hide() -> true | false, err
func partHide(L *lua.LState) int {
	h := checkPart(L)
	return pushResult(L, h.module.ctx.API.Parts.Hide(luaContext(L), h.part))
}

// part:remove() -> true | false, err
func partRemove(L *lua.LState) int {
	h := checkPart(L)
	return pushResult(L, h.Dispose())
}

// part:state() -> "opened" | "active" | ...
func partState(L *lua.LState) int {
	h := checkPart(L)
	L.Push(lua.LString(h.module.ctx.API.Parts.State(h.part).String()))
	return 1
}

// part:view() -> markup | nil, err
func partView(L *lua.LState) int {
	h := checkPart(L)
	el, err := h.module.ctx.API.Parts.View(luaContext(L), h.part)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	if el == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(el.String()))
	return 1
}

// part:set_unread(n)
func partSetUnread(L *lua.LState) int {
	h := checkPart(L)
	h.part.unread.Store(int64(L.CheckInt(2)))
	return 0
}
