package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dshills/extkernel/internal/kernel"
	"github.com/dshills/extkernel/internal/kernel/event"
	plua "github.com/dshills/extkernel/internal/plugin/lua"
)

// Manager manages the lifecycle of all plugins against one kernel.
// It handles discovery, loading, activation, and event dispatching.
type Manager struct {
	mu sync.RWMutex

	kernel *kernel.Kernel

	// Loader for Lua plugin discovery
	loader *Loader

	// Loaded plugins by name
	plugins map[string]*Host

	// Plugin load order (for deterministic iteration)
	loadOrder []string

	// Event handlers (protected by mu)
	eventHandlers []EventHandler

	config ManagerConfig
	logger *slog.Logger
}

// ManagerConfig configures the plugin manager.
type ManagerConfig struct {
	// PluginPaths are directories to search for Lua plugins.
	PluginPaths []string

	// AutoActivate plugins on load.
	AutoActivate bool

	// ExecutionTimeout bounds each entry into a Lua plugin.
	ExecutionTimeout time.Duration

	// Disabled lists plugins that must not be loaded.
	Disabled []string

	// PluginConfig holds per-plugin settings passed to setup.
	PluginConfig map[string]map[string]any
}

// DefaultManagerConfig returns sensible default configuration.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PluginPaths:      DefaultPluginPaths(),
		AutoActivate:     true,
		ExecutionTimeout: plua.DefaultExecutionTimeout,
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the manager logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a new plugin manager.
func NewManager(k *kernel.Kernel, config ManagerConfig, opts ...ManagerOption) *Manager {
	m := &Manager{
		kernel:    k,
		loader:    NewLoader(WithPaths(config.PluginPaths...)),
		plugins:   make(map[string]*Host),
		loadOrder: make([]string, 0),
		config:    config,
		logger:    k.Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "plugins"))
	return m
}

// Kernel returns the kernel plugins are activated against.
func (m *Manager) Kernel() *kernel.Kernel {
	return m.kernel
}

// Discover searches for available Lua plugins.
func (m *Manager) Discover() ([]*PluginInfo, error) {
	return m.loader.Discover()
}

// Register loads a built-in plugin under name.
func (m *Manager) Register(ctx context.Context, name string, p Plugin, opts ...HostOption) (*Host, error) {
	opts = append([]HostOption{WithHostLogger(m.logger)}, opts...)
	host, err := NewHost(name, p, m.kernel, opts...)
	if err != nil {
		return nil, err
	}
	return m.add(ctx, host)
}

// Load finds a Lua plugin by name and loads it.
// If the plugin is already loaded, returns ErrAlreadyLoaded.
func (m *Manager) Load(ctx context.Context, name string) (*Host, error) {
	if slices.Contains(m.config.Disabled, name) {
		return nil, fmt.Errorf("plugin %q: %w", name, ErrPluginDisabled)
	}
	if _, exists := m.Get(name); exists {
		return nil, fmt.Errorf("plugin %q: %w", name, ErrAlreadyLoaded)
	}

	info, err := m.loader.FindPlugin(name)
	if err != nil {
		return nil, err
	}

	lp, err := NewLuaPlugin(info.Manifest,
		WithLuaExecutionTimeout(m.config.ExecutionTimeout),
		WithLuaConfig(m.config.PluginConfig[name]),
	)
	if err != nil {
		return nil, err
	}

	host, err := NewHost(info.Manifest.Name, lp, m.kernel,
		WithHostManifest(info.Manifest),
		WithHostPermissions(info.Manifest.Permissions()),
		WithHostLogger(m.logger),
	)
	if err != nil {
		return nil, err
	}
	return m.add(ctx, host)
}

// add loads host, records it and activates it if configured to.
func (m *Manager) add(ctx context.Context, host *Host) (*Host, error) {
	name := host.Name()

	m.mu.RLock()
	_, exists := m.plugins[name]
	m.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("plugin %q: %w", name, ErrAlreadyLoaded)
	}

	// Load the plugin (potentially long operation, no lock)
	if err := host.Load(ctx); err != nil {
		m.emitEvent(ctx, ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		return nil, fmt.Errorf("failed to load plugin %q: %w", name, err)
	}

	m.mu.Lock()
	// Double-check - another goroutine might have loaded it
	if _, exists := m.plugins[name]; exists {
		m.mu.Unlock()
		_ = host.Unload(ctx)
		return nil, fmt.Errorf("plugin %q: %w", name, ErrAlreadyLoaded)
	}
	m.plugins[name] = host
	m.loadOrder = append(m.loadOrder, name)
	m.mu.Unlock()

	m.emitEvent(ctx, ManagerEvent{Type: EventPluginLoaded, Plugin: name})

	if m.config.AutoActivate {
		// A failed activation leaves the plugin loaded in StateError.
		_ = m.activate(ctx, host)
	}
	return host, nil
}

// LoadAll loads all discovered Lua plugins. Disabled plugins are skipped.
func (m *Manager) LoadAll(ctx context.Context) error {
	plugins, err := m.loader.Discover()
	if err != nil {
		return err
	}

	var loadErrors []error
	for _, info := range plugins {
		if slices.Contains(m.config.Disabled, info.Name) {
			continue
		}
		if info.Error != nil {
			loadErrors = append(loadErrors, fmt.Errorf("%s: %w", info.Name, info.Error))
			continue
		}
		if _, err := m.Load(ctx, info.Name); err != nil {
			loadErrors = append(loadErrors, fmt.Errorf("%s: %w", info.Name, err))
		}
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("failed to load %d plugins: %w", len(loadErrors), errors.Join(loadErrors...))
	}
	return nil
}

// Unload deactivates a plugin, reverses its registrations and forgets it.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	host, exists := m.plugins[name]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}
	delete(m.plugins, name)
	m.removeFromLoadOrder(name)
	m.mu.Unlock()

	wasActive := host.State().HasScope()
	err := host.Unload(ctx)
	if wasActive {
		m.emitEvent(ctx, ManagerEvent{Type: EventPluginDeactivated, Plugin: name})
	}
	if err != nil {
		m.emitEvent(ctx, ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		return fmt.Errorf("failed to unload plugin %q: %w", name, err)
	}

	m.emitEvent(ctx, ManagerEvent{Type: EventPluginUnloaded, Plugin: name})
	return nil
}

// UnloadAll unloads all plugins in reverse load order.
func (m *Manager) UnloadAll(ctx context.Context) error {
	var unloadErrors []error
	for _, name := range m.reverseOrder() {
		if err := m.Unload(ctx, name); err != nil {
			unloadErrors = append(unloadErrors, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(unloadErrors) > 0 {
		return fmt.Errorf("failed to unload %d plugins: %w", len(unloadErrors), errors.Join(unloadErrors...))
	}
	return nil
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (*Host, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	host, exists := m.plugins[name]
	return host, exists
}

// List returns all loaded plugins in load order.
func (m *Manager) List() []*Host {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Host, 0, len(m.loadOrder))
	for _, name := range m.loadOrder {
		if host, exists := m.plugins[name]; exists {
			result = append(result, host)
		}
	}
	return result
}

// ListActive returns all active plugins.
func (m *Manager) ListActive() []*Host {
	var result []*Host
	for _, host := range m.List() {
		if host.State() == StateActive {
			result = append(result, host)
		}
	}
	return result
}

// Activate activates a loaded plugin.
func (m *Manager) Activate(ctx context.Context, name string) error {
	host, exists := m.Get(name)
	if !exists {
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}
	return m.activate(ctx, host)
}

func (m *Manager) activate(ctx context.Context, host *Host) error {
	name := host.Name()
	if err := host.Activate(ctx); err != nil {
		m.logger.WarnContext(ctx, "plugin activation failed",
			slog.String("plugin", name), slog.Any("error", err))
		m.emitEvent(ctx, ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		return err
	}
	m.checkContributions(ctx, host)
	m.emitEvent(ctx, ManagerEvent{Type: EventPluginActivated, Plugin: name})
	return nil
}

// checkContributions warns about declared actions the plugin did not
// register.
func (m *Manager) checkContributions(ctx context.Context, host *Host) {
	manifest := host.Manifest()
	if manifest == nil {
		return
	}
	for _, id := range manifest.ActionIDs() {
		if !m.kernel.Actions.Has(id) {
			m.logger.WarnContext(ctx, "declared action not registered",
				slog.String("plugin", host.Name()), slog.String("action", id))
		}
	}
}

// ActivateAll activates all loaded plugins.
func (m *Manager) ActivateAll(ctx context.Context) error {
	m.mu.RLock()
	names := slices.Clone(m.loadOrder)
	m.mu.RUnlock()

	var activateErrors []error
	for _, name := range names {
		host, ok := m.Get(name)
		if !ok || host.State() != StateLoaded {
			continue
		}
		if err := m.activate(ctx, host); err != nil {
			activateErrors = append(activateErrors, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(activateErrors) > 0 {
		return fmt.Errorf("failed to activate %d plugins: %w", len(activateErrors), errors.Join(activateErrors...))
	}
	return nil
}

// Deactivate deactivates an active plugin and reverses its registrations.
func (m *Manager) Deactivate(ctx context.Context, name string) error {
	host, exists := m.Get(name)
	if !exists {
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}

	if err := host.Deactivate(ctx); err != nil {
		m.emitEvent(ctx, ManagerEvent{Type: EventPluginError, Plugin: name, Error: err})
		return err
	}

	m.emitEvent(ctx, ManagerEvent{Type: EventPluginDeactivated, Plugin: name})
	return nil
}

// DeactivateAll deactivates all plugins in reverse load order.
func (m *Manager) DeactivateAll(ctx context.Context) error {
	var deactivateErrors []error
	for _, name := range m.reverseOrder() {
		if err := m.Deactivate(ctx, name); err != nil {
			deactivateErrors = append(deactivateErrors, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(deactivateErrors) > 0 {
		return fmt.Errorf("failed to deactivate %d plugins: %w", len(deactivateErrors), errors.Join(deactivateErrors...))
	}
	return nil
}

// Reload unloads a plugin and loads it again. Lua plugins are rediscovered
// so manifest and code changes take effect; built-in plugins are reloaded
// in place.
func (m *Manager) Reload(ctx context.Context, name string) error {
	host, exists := m.Get(name)
	if !exists {
		return fmt.Errorf("plugin %q: %w", name, ErrPluginNotFound)
	}
	wasActive := host.State() == StateActive

	if err := m.Unload(ctx, name); err != nil {
		m.logger.WarnContext(ctx, "unload before reload failed",
			slog.String("plugin", name), slog.Any("error", err))
	}

	var newHost *Host
	var err error
	if _, isLua := host.Plugin().(*LuaPlugin); isLua {
		if _, err := m.loader.Refresh(); err != nil {
			return fmt.Errorf("reload refresh failed: %w", err)
		}
		newHost, err = m.Load(ctx, name)
	} else {
		newHost, err = NewHost(name, host.Plugin(), m.kernel,
			WithHostPermissions(host.checker), WithHostLogger(m.logger))
		if err == nil {
			newHost, err = m.add(ctx, newHost)
		}
	}
	if err != nil {
		return fmt.Errorf("reload load failed: %w", err)
	}

	// Restore active state if it was active and auto-activate is off
	if wasActive && newHost.State() == StateLoaded {
		_ = m.activate(ctx, newHost)
	}

	m.emitEvent(ctx, ManagerEvent{Type: EventPluginReloaded, Plugin: name})
	return nil
}

// Subscribe adds an event handler.
// Returns an unsubscribe function to remove the handler.
func (m *Manager) Subscribe(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	m.mu.Lock()
	m.eventHandlers = append(m.eventHandlers, handler)
	index := len(m.eventHandlers) - 1
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Set to nil instead of removing to avoid index shifting issues
		if index < len(m.eventHandlers) {
			m.eventHandlers[index] = nil
		}
	}
}

// Count returns the number of loaded plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// CountActive returns the number of active plugins.
func (m *Manager) CountActive() int {
	return len(m.ListActive())
}

// HasErrors returns true if any plugin is in an error state.
func (m *Manager) HasErrors() bool {
	return len(m.Errors()) > 0
}

// Errors returns all plugins in error state with their errors.
func (m *Manager) Errors() map[string]error {
	errs := make(map[string]error)
	for _, host := range m.List() {
		if host.State() == StateError && host.Error() != nil {
			errs[host.Name()] = host.Error()
		}
	}
	return errs
}

// Loader returns the underlying loader.
func (m *Manager) Loader() *Loader {
	return m.loader
}

// emitEvent sends an event to all handlers and publishes it on the kernel
// bus. Handlers are called outside any locks and panics are recovered.
func (m *Manager) emitEvent(ctx context.Context, ev ManagerEvent) {
	m.mu.RLock()
	handlers := slices.Clone(m.eventHandlers)
	m.mu.RUnlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("plugin event handler panicked",
						slog.String("event", ev.Type.String()), slog.Any("panic", r))
				}
			}()
			handler(ev)
		}()
	}

	event.Fire(ctx, m.kernel.Events, ManagerEventsType, ev)
}

func (m *Manager) reverseOrder() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := slices.Clone(m.loadOrder)
	slices.Reverse(names)
	return names
}

// removeFromLoadOrder removes a name from the load order slice.
// Must be called with mu held.
func (m *Manager) removeFromLoadOrder(name string) {
	m.loadOrder = slices.DeleteFunc(m.loadOrder, func(n string) bool { return n == name })
}
