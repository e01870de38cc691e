package api

import (
	"fmt"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/extkernel/internal/plugin/security"
)

// APIVersion is reported to plugins as ks.api_version.
const APIVersion = 1

// Module is a Lua API module.
type Module interface {
	// Name returns the module name (e.g. "action", "part").
	Name() string

	// RequiredCapability returns the capability required to use this
	// module, or "" if none is required.
	RequiredCapability() security.Capability

	// Register installs the module table under the _ks_<name> global.
	Register(L *lua.LState) error
}

// Registry manages API modules and their injection.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]Module),
	}
}

// Register adds a module to the registry.
func (r *Registry) Register(mod Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[mod.Name()]; exists {
		return fmt.Errorf("module %q already registered", mod.Name())
	}
	r.modules[mod.Name()] = mod
	return nil
}

// Get returns a module by name.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mod, ok := r.modules[name]
	return mod, ok
}

// List returns the registered module names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InjectAll registers every module checker permits into L and installs the
// ks loader. Modules that require a capability are skipped when checker is
// nil. It returns the names of the injected modules.
func (r *Registry) InjectAll(L *lua.LState, checker *security.PermissionChecker) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	registerHandleTypes(L)

	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)

	injected := make([]string, 0, len(names))
	for _, name := range names {
		mod := r.modules[name]
		if req := mod.RequiredCapability(); req != "" && !checker.HasCapability(req) {
			continue
		}
		if err := mod.Register(L); err != nil {
			return nil, fmt.Errorf("failed to register module %q: %w", name, err)
		}
		injected = append(injected, name)
	}

	installKSLoader(L, injected)
	return injected, nil
}

// installKSLoader collects the _ks_* globals into the ks module.
// Plugins use: local ks = require("ks")
func installKSLoader(L *lua.LState, names []string) {
	ksModule := L.NewTable()
	for _, name := range names {
		globalName := "_ks_" + name
		if val := L.GetGlobal(globalName); val != lua.LNil {
			L.SetField(ksModule, name, val)
			L.SetGlobal(globalName, lua.LNil)
		}
	}
	L.SetField(ksModule, "api_version", lua.LNumber(APIVersion))

	L.PreloadModule("ks", func(L *lua.LState) int {
		L.Push(ksModule)
		return 1
	})
}

// DefaultRegistry creates a registry with every standard module.
func DefaultRegistry(ctx *Context) (*Registry, error) {
	r := NewRegistry()

	modules := []Module{
		NewActionModule(ctx),
		NewEventModule(ctx),
		NewPartModule(ctx),
		NewImageModule(ctx),
		NewAppModule(ctx),
		NewLogModule(ctx),
	}
	for _, mod := range modules {
		if err := r.Register(mod); err != nil {
			return nil, fmt.Errorf("failed to register module %q: %w", mod.Name(), err)
		}
	}
	return r, nil
}
