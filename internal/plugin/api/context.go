package api

import (
	"context"
	"errors"
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extkernel/internal/ctxlog"
	"github.com/dshills/extkernel/internal/kernel"
	"github.com/dshills/extkernel/internal/kernel/disposable"
	plua "github.com/dshills/extkernel/internal/plugin/lua"
)

// Context gives modules access to the plugin they serve.
type Context struct {
	// Plugin is the owning plugin's name.
	Plugin string

	// State runs the plugin's Lua callbacks.
	State *plua.State

	// API is the kernel capability set.
	API kernel.API

	// Track adds a registration to the plugin's scope. It fails once the
	// scope has been disposed.
	Track func(disposable.Disposable) error

	// Logger receives ks.log output and callback diagnostics.
	Logger *slog.Logger
}

// ErrNoState is returned when a callback fires without a Lua state.
var ErrNoState = errors.New("plugin has no lua state")

func (c *Context) logger(ctx context.Context) *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return ctxlog.FromContext(ctx)
}

// track hands d to the plugin scope, disposing it if the scope is gone.
func (c *Context) track(d disposable.Disposable) error {
	if c.Track == nil {
		return nil
	}
	if err := c.Track(d); err != nil {
		_ = d.Dispose()
		return err
	}
	return nil
}

// invoke runs a Lua callback on the plugin state.
func (c *Context) invoke(ctx context.Context, fn *lua.LFunction, args func(L *lua.LState) []lua.LValue, read func(L *lua.LState, results []lua.LValue) error) error {
	if c.State == nil {
		return ErrNoState
	}
	return c.State.Invoke(ctx, fn, args, read)
}

// luaContext returns the context of the call currently running in L.
func luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
