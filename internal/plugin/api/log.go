package api

import (
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	plua "github.com/dshills/extkernel/internal/plugin/lua"
	"github.com/dshills/extkernel/internal/plugin/security"
)

// LogModule implements the ks.log API module.
type LogModule struct {
	ctx *Context
}

// NewLogModule creates a new log module.
func NewLogModule(ctx *Context) *LogModule {
	return &LogModule{ctx: ctx}
}

// Name returns the module name.
func (m *LogModule) Name() string {
	return "log"
}

// RequiredCapability returns the capability required for this module.
func (m *LogModule) RequiredCapability() security.Capability {
	return ""
}

// Register registers the module into the Lua state.
func (m *LogModule) Register(L *lua.LState) error {
	mod := L.NewTable()
	L.SetField(mod, "debug", L.NewFunction(m.logAt(slog.LevelDebug)))
	L.SetField(mod, "info", L.NewFunction(m.logAt(slog.LevelInfo)))
	L.SetField(mod, "warn", L.NewFunction(m.logAt(slog.LevelWarn)))
	L.SetField(mod, "error", L.NewFunction(m.logAt(slog.LevelError)))
	L.SetGlobal("_ks_log", mod)
	return nil
}

// level(msg, fields?)
func (m *LogModule) logAt(level slog.Level) lua.LGFunction {
	return func(L *lua.LState) int {
		msg := L.CheckString(1)
		var attrs []slog.Attr
		if fields := L.OptTable(2, nil); fields != nil {
			fields.ForEach(func(k, v lua.LValue) {
				attrs = append(attrs, slog.Any(k.String(), plua.ToGoValue(v)))
			})
		}
		ctx := luaContext(L)
		m.ctx.logger(ctx).LogAttrs(ctx, level, msg, attrs...)
		return 0
	}
}
