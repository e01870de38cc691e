package api

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extkernel/internal/kernel/disposable"
	"github.com/dshills/extkernel/internal/plugin/security"
)

// ImageModule implements the ks.image API module.
type ImageModule struct {
	ctx *Context
}

// NewImageModule creates a new image module.
func NewImageModule(ctx *Context) *ImageModule {
	return &ImageModule{ctx: ctx}
}

// Name returns the module name.
func (m *ImageModule) Name() string {
	return "image"
}

// RequiredCapability returns the capability required for this module.
func (m *ImageModule) RequiredCapability() security.Capability {
	return security.CapabilityImages
}

// Register registers the module into the Lua state.
func (m *ImageModule) Register(L *lua.LState) error {
	mod := L.NewTable()
	L.SetField(mod, "register_url", L.NewFunction(m.registerURL))
	L.SetField(mod, "register_html", L.NewFunction(m.registerHTML))
	L.SetField(mod, "has", L.NewFunction(m.has))
	L.SetGlobal("_ks_image", mod)
	return nil
}

// register_url(id, url) -> handle
func (m *ImageModule) registerURL(L *lua.LState) int {
	id := L.CheckString(1)
	url := L.CheckString(2)
	return m.finish(L, "register_url", func() (disposable.Disposable, error) {
		return m.ctx.API.Images.RegisterURL(id, url)
	})
}

// register_html(id, markup) -> handle
func (m *ImageModule) registerHTML(L *lua.LState) int {
	id := L.CheckString(1)
	markup := L.CheckString(2)
	return m.finish(L, "register_html", func() (disposable.Disposable, error) {
		return m.ctx.API.Images.RegisterHTML(id, markup)
	})
}

func (m *ImageModule) finish(L *lua.LState, op string, register func() (disposable.Disposable, error)) int {
	d, err := register()
	if err != nil {
		L.RaiseError("%s: %v", op, err)
		return 0
	}
	if err := m.ctx.track(d); err != nil {
		L.RaiseError("%s: %v", op, err)
		return 0
	}
	return pushHandle(L, d)
}

// has(id) -> bool
func (m *ImageModule) has(L *lua.LState) int {
	L.Push(lua.LBool(m.ctx.API.Images.Has(L.CheckString(1))))
	return 1
}
