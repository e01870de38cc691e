package plugin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dshills/extkernel/internal/kernel"
	"github.com/dshills/extkernel/internal/kernel/action"
	"github.com/dshills/extkernel/internal/kernel/disposable"
	"github.com/dshills/extkernel/internal/kernel/event"
	"github.com/dshills/extkernel/internal/kernel/icon"
	"github.com/dshills/extkernel/internal/kernel/part"
	"github.com/dshills/extkernel/internal/plugin/security"
)

// Context is the facade a plugin receives on activation. Registrations made
// through its helpers are added to the plugin's scope automatically.
type Context struct {
	name    string
	id      string
	api     kernel.API
	scope   *disposable.Scope
	checker *security.PermissionChecker
	logger  *slog.Logger
}

// NewContext creates a plugin context over scope. A nil checker grants
// every capability.
func NewContext(name string, api kernel.API, scope *disposable.Scope, checker *security.PermissionChecker, logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		name:    name,
		id:      uuid.NewString(),
		api:     api,
		scope:   scope,
		checker: checker,
		logger:  logger.With(slog.String("plugin", name)),
	}
}

// Name returns the plugin name.
func (c *Context) Name() string { return c.name }

// ID identifies this activation.
func (c *Context) ID() string { return c.id }

// API returns the kernel capability set.
func (c *Context) API() kernel.API { return c.api }

// Scope returns the scope that owns this activation's registrations.
func (c *Context) Scope() *disposable.Scope { return c.scope }

// Logger returns a logger tagged with the plugin name.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Permissions returns the plugin's permission checker, or nil if
// unrestricted.
func (c *Context) Permissions() *security.PermissionChecker { return c.checker }

// Can reports whether the plugin holds capability cap.
func (c *Context) Can(cap security.Capability) bool {
	return c.checker == nil || c.checker.HasCapability(cap)
}

// AddDisposable ties d to the plugin's lifetime. After teardown it fails
// with ErrNotActive and d is left to the caller.
func (c *Context) AddDisposable(d disposable.Disposable) error {
	if c.scope.Disposed() {
		return fmt.Errorf("%s: %w", c.name, ErrNotActive)
	}
	return c.scope.Add(d)
}

func (c *Context) require(cap security.Capability, op string) error {
	if c.Can(cap) {
		return nil
	}
	return fmt.Errorf("%s: %w: %s", op, ErrCapabilityDenied, cap)
}

// track adds d to the scope. If the scope is gone, d is disposed at once so
// nothing outlives the plugin.
func (c *Context) track(d disposable.Disposable, err error) (disposable.Disposable, error) {
	if err != nil {
		return nil, err
	}
	if err := c.AddDisposable(d); err != nil {
		_ = d.Dispose()
		return nil, err
	}
	return d, nil
}

// RegisterAction registers an action owned by the plugin.
func (c *Context) RegisterAction(id string, update action.UpdateFunc, perform action.PerformFunc) (disposable.Disposable, error) {
	if err := c.require(security.CapabilityActions, "register action"); err != nil {
		return nil, err
	}
	return c.track(c.api.Actions.Register(id, update, perform))
}

// OpenPart opens p in stack. Unloading the plugin removes the part.
func (c *Context) OpenPart(ctx context.Context, p part.Part, stack part.Stack) (disposable.Disposable, error) {
	if err := c.require(security.CapabilityParts, "open part"); err != nil {
		return nil, err
	}
	return c.track(c.api.Parts.Open(ctx, p, stack))
}

// RegisterIconURL registers an icon loaded from url.
func (c *Context) RegisterIconURL(id, url string) (disposable.Disposable, error) {
	if err := c.require(security.CapabilityImages, "register icon"); err != nil {
		return nil, err
	}
	return c.track(c.api.Images.RegisterURL(id, url))
}

// RegisterIconHTML registers an icon from inline markup.
func (c *Context) RegisterIconHTML(id, markup string) (disposable.Disposable, error) {
	if err := c.require(security.CapabilityImages, "register icon"); err != nil {
		return nil, err
	}
	return c.track(c.api.Images.RegisterHTML(id, markup))
}

// RegisterIconFactory registers an icon built on demand by f.
func (c *Context) RegisterIconFactory(id string, f icon.Factory) (disposable.Disposable, error) {
	if err := c.require(security.CapabilityImages, "register icon"); err != nil {
		return nil, err
	}
	return c.track(c.api.Images.RegisterFactory(id, f))
}

// AddHandler subscribes h to t for the plugin's lifetime.
func AddHandler[E any](c *Context, t *event.Type[E], h func(ctx context.Context, e E) error) (disposable.Disposable, error) {
	if err := c.require(security.CapabilityEvents, "add handler"); err != nil {
		return nil, err
	}
	return c.track(event.AddHandler(c.api.Events, t, h))
}
