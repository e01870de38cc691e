package plugin

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extkernel/internal/kernel/part"
)

func newLuaTestPlugin(t *testing.T, name, code string) *Manifest {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "init.lua"), code)
	return NewManifestMinimal(name, dir)
}

func luaGlobal(t *testing.T, p *LuaPlugin, name string) lua.LValue {
	t.Helper()
	p.mu.Lock()
	st := p.state
	p.mu.Unlock()
	require.NotNil(t, st, "plugin has no state")

	var v lua.LValue
	require.NoError(t, st.Do(context.Background(), func(L *lua.LState) error {
		v = L.GetGlobal(name)
		return nil
	}))
	return v
}

func TestLuaPluginLifecycle(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	m := newLuaTestPlugin(t, "greeter", `
		local ks = require("ks")
		local greeting = "unset"
		loaded_at_top = true

		function setup(config)
			greeting = config.greeting
		end

		function activate()
			ks.action.register{
				id = "greeter.greet",
				perform = function() greeted = greeting end,
			}
			ks.part.open{ title = "Greeter", stack = "information", html = "<p>hi</p>" }
		end

		function deactivate()
			deactivated = true
		end
	`)
	m.ConfigSchema = map[string]ConfigProperty{"greeting": {Type: "string", Default: "hello"}}

	lp, err := NewLuaPlugin(m, WithLuaConfig(map[string]any{"greeting": "hi there"}))
	require.NoError(t, err)
	assert.Equal(t, "hi there", lp.Config()["greeting"])

	h, err := NewHost(m.Name, lp, k, WithHostManifest(m))
	require.NoError(t, err)
	require.NoError(t, h.Load(ctx))

	// Load only compiles.
	assert.Nil(t, lp.state)

	require.NoError(t, h.Activate(ctx))
	assert.Equal(t, lua.LTrue, luaGlobal(t, lp, "loaded_at_top"))
	require.True(t, k.Actions.Has("greeter.greet"))
	assert.Len(t, k.Parts.Parts(part.Information), 1)

	require.NoError(t, k.Actions.Perform(ctx, "greeter.greet"))
	assert.Equal(t, lua.LString("hi there"), luaGlobal(t, lp, "greeted"))

	require.NoError(t, h.Deactivate(ctx))
	assert.Equal(t, lua.LTrue, luaGlobal(t, lp, "deactivated"))
	assert.False(t, k.Actions.Has("greeter.greet"))
	assert.Empty(t, k.Parts.Parts(part.Information))

	require.NoError(t, h.Unload(ctx))
	assert.Nil(t, lp.state)
}

func TestLuaPluginLoadErrors(t *testing.T) {
	ctx := context.Background()

	missing := NewManifestMinimal("missing", t.TempDir())
	lp, err := NewLuaPlugin(missing)
	require.NoError(t, err)
	assert.ErrorIs(t, lp.Load(ctx), ErrNoEntryPoint)

	broken := newLuaTestPlugin(t, "broken", `function (`)
	lp, err = NewLuaPlugin(broken)
	require.NoError(t, err)
	err = lp.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")

	_, err = NewLuaPlugin(nil)
	assert.ErrorIs(t, err, ErrNilManifest)
}

func TestLuaPluginActivateBeforeLoad(t *testing.T) {
	lp, err := NewLuaPlugin(newLuaTestPlugin(t, "early", `-- nothing`))
	require.NoError(t, err)

	pc := NewContext("early", newTestKernel(t).API(), nil, nil, nil)
	assert.ErrorIs(t, lp.Activate(context.Background(), pc), ErrNotLoaded)
}

func TestLuaPluginActivateErrorKeepsRegistrations(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	m := newLuaTestPlugin(t, "failing", `
		local ks = require("ks")
		function activate()
			ks.action.register{ id = "failing.a", perform = function() end }
			error("activation broke")
		end
	`)
	lp, err := NewLuaPlugin(m)
	require.NoError(t, err)
	h, err := NewHost(m.Name, lp, k)
	require.NoError(t, err)
	require.NoError(t, h.Load(ctx))

	err = h.Activate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "activation broke")
	assert.True(t, k.Actions.Has("failing.a"))

	require.NoError(t, h.Unload(ctx))
	assert.False(t, k.Actions.Has("failing.a"))
}

func TestLuaPluginCapabilitiesFromManifest(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	m := newLuaTestPlugin(t, "narrow", `
		local ks = require("ks")
		has_action = ks.action ~= nil
		has_app = ks.app ~= nil
		has_log = ks.log ~= nil
	`)
	m.Capabilities = []string{"kernel.actions"}

	lp, err := NewLuaPlugin(m)
	require.NoError(t, err)
	h, err := NewHost(m.Name, lp, k, WithHostPermissions(m.Permissions()))
	require.NoError(t, err)
	require.NoError(t, h.Load(ctx))
	require.NoError(t, h.Activate(ctx))

	assert.Equal(t, lua.LTrue, luaGlobal(t, lp, "has_action"))
	assert.Equal(t, lua.LFalse, luaGlobal(t, lp, "has_app"))
	assert.Equal(t, lua.LTrue, luaGlobal(t, lp, "has_log"))
}

func TestLuaPluginExecutionTimeout(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	m := newLuaTestPlugin(t, "spinner", `
		function activate()
			while true do end
		end
	`)
	lp, err := NewLuaPlugin(m, WithLuaExecutionTimeout(50*time.Millisecond))
	require.NoError(t, err)
	h, err := NewHost(m.Name, lp, k)
	require.NoError(t, err)
	require.NoError(t, h.Load(ctx))

	start := time.Now()
	require.Error(t, h.Activate(ctx))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateError, h.State())
}
