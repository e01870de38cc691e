package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/dshills/extkernel/internal/plugin/api"
	plua "github.com/dshills/extkernel/internal/plugin/lua"
	"github.com/dshills/extkernel/internal/plugin/security"
)

// LuaPlugin runs a plugin written in Lua. Load compiles the main file;
// each activation runs it in a fresh sandboxed state with the ks modules
// injected, calls setup(config) and then activate(). deactivate() is called
// on teardown.
type LuaPlugin struct {
	manifest *Manifest
	timeout  time.Duration
	config   map[string]any

	mu    sync.Mutex
	proto *lua.FunctionProto
	state *plua.State
}

// LuaOption configures a LuaPlugin.
type LuaOption func(*LuaPlugin)

// WithLuaExecutionTimeout bounds every entry into the plugin's state.
func WithLuaExecutionTimeout(d time.Duration) LuaOption {
	return func(p *LuaPlugin) {
		p.timeout = d
	}
}

// WithLuaConfig overrides the manifest's configuration defaults.
func WithLuaConfig(config map[string]any) LuaOption {
	return func(p *LuaPlugin) {
		maps.Copy(p.config, config)
	}
}

// NewLuaPlugin creates a Lua plugin from its manifest.
func NewLuaPlugin(m *Manifest, opts ...LuaOption) (*LuaPlugin, error) {
	if m == nil {
		return nil, ErrNilManifest
	}
	p := &LuaPlugin{
		manifest: m,
		timeout:  plua.DefaultExecutionTimeout,
		config:   m.GetAllConfigDefaults(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Manifest returns the plugin manifest.
func (p *LuaPlugin) Manifest() *Manifest {
	return p.manifest
}

// Config returns a copy of the configuration passed to setup.
func (p *LuaPlugin) Config() map[string]any {
	return maps.Clone(p.config)
}

// Load reads and compiles the main file without running it.
func (p *LuaPlugin) Load(ctx context.Context) error {
	path := p.manifest.MainPath()
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoEntryPoint, err)
	}
	defer f.Close()

	chunk, err := parse.Parse(f, path)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return fmt.Errorf("compile %s: %w", path, err)
	}

	p.mu.Lock()
	p.proto = proto
	p.mu.Unlock()
	return nil
}

// Activate implements Plugin.
func (p *LuaPlugin) Activate(ctx context.Context, pc *Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.proto == nil {
		return ErrNotLoaded
	}
	if p.state != nil {
		_ = p.state.Close()
		p.state = nil
	}

	logger := pc.Logger()
	st, err := plua.NewState(
		plua.WithExecutionTimeout(p.timeout),
		plua.WithPrinter(func(msg string) {
			logger.Info(msg, slog.String("source", "print"))
		}),
	)
	if err != nil {
		return err
	}
	p.state = st

	reg, err := api.DefaultRegistry(&api.Context{
		Plugin: pc.Name(),
		State:  st,
		API:    pc.API(),
		Track:  pc.AddDisposable,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	checker := pc.Permissions()
	if checker == nil {
		checker = security.NewPermissionChecker(pc.Name())
		checker.GrantAll([]security.Capability{security.CapabilityKernel, security.CapabilityApp})
	}

	proto := p.proto
	err = st.Do(ctx, func(L *lua.LState) error {
		if _, err := reg.InjectAll(L, checker); err != nil {
			return err
		}
		L.Push(L.NewFunctionFromProto(proto))
		return L.PCall(0, 0, nil)
	})
	if err != nil {
		return fmt.Errorf("run %s: %w", p.manifest.Main, err)
	}

	if st.HasFunction("setup") {
		config := p.config
		err := st.Do(ctx, func(L *lua.LState) error {
			return L.CallByParam(lua.P{
				Fn:      L.GetGlobal("setup"),
				NRet:    0,
				Protect: true,
			}, plua.ToLuaValue(L, config))
		})
		if err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}

	if st.HasFunction("activate") {
		if _, err := st.CallGlobal(ctx, "activate"); err != nil {
			return fmt.Errorf("activate: %w", err)
		}
	}
	return nil
}

// Deactivate implements Plugin.
func (p *LuaPlugin) Deactivate(ctx context.Context, pc *Context) error {
	p.mu.Lock()
	st := p.state
	p.mu.Unlock()

	if st == nil || !st.HasFunction("deactivate") {
		return nil
	}
	if _, err := st.CallGlobal(ctx, "deactivate"); err != nil {
		return fmt.Errorf("deactivate: %w", err)
	}
	return nil
}

// Close releases the Lua state.
func (p *LuaPlugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == nil {
		return nil
	}
	err := p.state.Close()
	p.state = nil
	return err
}
