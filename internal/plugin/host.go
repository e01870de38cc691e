package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/dshills/extkernel/internal/ctxlog"
	"github.com/dshills/extkernel/internal/kernel"
	"github.com/dshills/extkernel/internal/kernel/disposable"
	"github.com/dshills/extkernel/internal/plugin/security"
)

// Host manages a single plugin's lifecycle against a kernel.
type Host struct {
	mu sync.Mutex

	// Identity
	name     string
	manifest *Manifest
	plugin   Plugin

	kernel  *kernel.Kernel
	checker *security.PermissionChecker
	logger  *slog.Logger

	// Current activation
	pctx  *Context
	scope *disposable.Scope

	pluginState State
	err         error
	activations int
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithHostManifest attaches the manifest the plugin was discovered with.
func WithHostManifest(m *Manifest) HostOption {
	return func(h *Host) {
		h.manifest = m
	}
}

// WithHostPermissions restricts the plugin to the checker's capabilities.
// Without it the plugin may use every kernel surface.
func WithHostPermissions(pc *security.PermissionChecker) HostOption {
	return func(h *Host) {
		h.checker = pc
	}
}

// WithHostLogger sets the host logger.
func WithHostLogger(l *slog.Logger) HostOption {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHost creates a host for p. The host starts unloaded.
func NewHost(name string, p Plugin, k *kernel.Kernel, opts ...HostOption) (*Host, error) {
	if p == nil {
		return nil, ErrNilPlugin
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidPlugin)
	}
	if k == nil {
		return nil, fmt.Errorf("%w: nil kernel", ErrInvalidPlugin)
	}

	h := &Host{
		name:        name,
		plugin:      p,
		kernel:      k,
		logger:      k.Logger(),
		pluginState: StateUnloaded,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(slog.String("plugin", name))
	return h, nil
}

// Name returns the plugin name.
func (h *Host) Name() string {
	return h.name
}

// Manifest returns the plugin manifest, or nil for built-in plugins.
func (h *Host) Manifest() *Manifest {
	return h.manifest
}

// Plugin returns the hosted plugin.
func (h *Host) Plugin() Plugin {
	return h.plugin
}

// State returns the current plugin state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pluginState
}

// Error returns the last load or activation error.
func (h *Host) Error() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Context returns the context of the current activation, or nil.
func (h *Host) Context() *Context {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pctx
}

// Load prepares the plugin for activation.
func (h *Host) Load(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pluginState != StateUnloaded {
		return ErrAlreadyLoaded
	}

	if l, ok := h.plugin.(Loadable); ok {
		err := h.kernel.Executor().Call(ctx, "load", h.name, func() error {
			return l.Load(ctxlog.WithLogger(ctx, h.logger))
		})
		if err != nil {
			h.pluginState = StateError
			h.err = fmt.Errorf("failed to load plugin: %w", err)
			return h.err
		}
	}

	h.pluginState = StateLoaded
	h.err = nil
	return nil
}

// Activate creates a fresh scope and calls the plugin's Activate. A failed
// activation leaves the host in StateError; registrations it made stay in
// the scope until Deactivate or Unload reverses them.
func (h *Host) Activate(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pluginState != StateLoaded {
		return fmt.Errorf("activate %s: %w (state %s)", h.name, ErrNotLoaded, h.pluginState)
	}

	h.activations++
	h.scope = h.kernel.Scopes.CreateScope(h.name)
	h.pctx = NewContext(h.name, h.kernel.API(), h.scope, h.checker, h.logger)
	h.pluginState = StateActivating

	pctx := h.pctx
	err := h.kernel.Executor().Call(ctx, "activate", h.name, func() error {
		return h.plugin.Activate(ctxlog.WithLogger(ctx, pctx.Logger()), pctx)
	})
	if err != nil {
		h.pluginState = StateError
		h.err = err
		return err
	}

	h.pluginState = StateActive
	h.err = nil
	h.logger.DebugContext(ctx, "plugin activated", slog.Int("registrations", h.scope.Len()))
	return nil
}

// Deactivate calls the plugin's Deactivate and then disposes every
// registration of the activation. The host returns to StateLoaded.
func (h *Host) Deactivate(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.pluginState.HasScope() || h.scope == nil {
		return nil
	}
	err := h.teardown(ctx)
	h.pluginState = StateLoaded
	return err
}

// teardown runs deactivate even after a failed activate, then disposes the
// scope. Must be called with mu held.
func (h *Host) teardown(ctx context.Context) error {
	if h.scope == nil {
		return nil
	}
	h.pluginState = StateDeactivating

	pctx := h.pctx
	deactivateErr := h.kernel.Executor().Call(ctx, "deactivate", h.name, func() error {
		return h.plugin.Deactivate(ctxlog.WithLogger(ctx, pctx.Logger()), pctx)
	})
	disposeErr := h.scope.DisposeAll()

	h.scope = nil
	h.pctx = nil

	if err := errors.Join(deactivateErr, disposeErr); err != nil {
		h.logger.WarnContext(ctx, "plugin teardown finished with errors", slog.Any("error", err))
		return err
	}
	return nil
}

// Unload deactivates the plugin if needed and releases its resources.
// Calling Unload again does nothing.
func (h *Host) Unload(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pluginState == StateUnloaded {
		return nil
	}

	var errs []error
	if h.pluginState.HasScope() {
		errs = append(errs, h.teardown(ctx))
	}
	if c, ok := h.plugin.(io.Closer); ok {
		errs = append(errs, c.Close())
	}

	h.pluginState = StateUnloaded
	h.err = nil
	return errors.Join(errs...)
}

// Reload unloads and reloads the plugin, reactivating it if it was active.
func (h *Host) Reload(ctx context.Context) error {
	wasActive := h.State() == StateActive

	if err := h.Unload(ctx); err != nil {
		h.logger.WarnContext(ctx, "unload before reload failed", slog.Any("error", err))
	}
	if err := h.Load(ctx); err != nil {
		return err
	}
	if wasActive {
		return h.Activate(ctx)
	}
	return nil
}

// Stats returns runtime statistics for the plugin.
func (h *Host) Stats() HostStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	stats := HostStats{
		Name:        h.name,
		State:       h.pluginState,
		Activations: h.activations,
		HasError:    h.err != nil,
	}
	if h.scope != nil {
		stats.Registrations = h.scope.Len()
	}
	if h.manifest != nil {
		stats.Version = h.manifest.Version
	}
	return stats
}

// HostStats contains runtime statistics for a plugin host.
type HostStats struct {
	Name          string
	Version       string
	State         State
	Registrations int
	Activations   int
	HasError      bool
}
