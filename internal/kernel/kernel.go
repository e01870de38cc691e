// Package kernel composes the registries into the capability set handed to
// plugins.
package kernel

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dshills/extkernel/internal/kernel/action"
	"github.com/dshills/extkernel/internal/kernel/dispatch"
	"github.com/dshills/extkernel/internal/kernel/disposable"
	"github.com/dshills/extkernel/internal/kernel/dom"
	"github.com/dshills/extkernel/internal/kernel/event"
	"github.com/dshills/extkernel/internal/kernel/icon"
	"github.com/dshills/extkernel/internal/kernel/part"
	"github.com/dshills/extkernel/internal/metrics"
)

// ActionManager registers and drives actions.
type ActionManager interface {
	Register(id string, update action.UpdateFunc, perform action.PerformFunc) (disposable.Disposable, error)
	Update(ctx context.Context, id string) (action.Presentation, bool)
	Perform(ctx context.Context, id string) error
	Presentation(id string) (action.Presentation, bool)
	IDs() []string
}

// EventBus is the typed event bus.
type EventBus = event.Bus

// PartManager controls part lifecycles.
type PartManager interface {
	Open(ctx context.Context, p part.Part, stack part.Stack) (disposable.Disposable, error)
	Activate(ctx context.Context, p part.Part) error
	Hide(ctx context.Context, p part.Part) error
	Remove(ctx context.Context, p part.Part) error
	View(ctx context.Context, p part.Part) (*dom.Element, error)
	State(p part.Part) part.State
	Active(stack part.Stack) (part.Part, bool)
	Parts(stack part.Stack) []part.Part
}

// ImageRegistry registers icons.
type ImageRegistry interface {
	RegisterURL(id, url string) (disposable.Disposable, error)
	RegisterHTML(id, html string) (disposable.Disposable, error)
	RegisterFactory(id string, f icon.Factory) (disposable.Disposable, error)
	Image(ctx context.Context, id string) (*dom.Element, bool)
	Has(id string) bool
}

var (
	_ ActionManager = (*action.Registry)(nil)
	_ PartManager   = (*part.Registry)(nil)
	_ ImageRegistry = (*icon.Registry)(nil)
)

// API is the capability set a plugin sees.
type API struct {
	Actions ActionManager
	Events  EventBus
	Parts   PartManager
	Images  ImageRegistry
	Editors EditorManager
	App     AppContext
}

// Kernel owns the registries shared by every plugin.
type Kernel struct {
	Scopes  *disposable.Registry
	Actions *action.Registry
	Events  event.Bus
	Parts   *part.Registry
	Icons   *icon.Registry
	Editors EditorManager
	App     AppContext

	executor *dispatch.Executor
	closers  []disposable.Disposable
}

type options struct {
	logger  *slog.Logger
	metrics *metrics.Kernel
	app     AppContext
	editors EditorManager
}

// Option configures a Kernel.
type Option func(*options)

// WithLogger sets the logger for callback failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Kernel) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithAppContext sets the host state exposed to plugins.
func WithAppContext(app AppContext) Option {
	return func(o *options) {
		o.app = app
	}
}

// WithEditorManager replaces the built-in editor tracker.
func WithEditorManager(m EditorManager) Option {
	return func(o *options) {
		o.editors = m
	}
}

// New creates a kernel with empty registries.
func New(opts ...Option) (*Kernel, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	exec := dispatch.NewExecutor(
		dispatch.WithLogger(o.logger.With(slog.String("component", "kernel"))),
		dispatch.WithMetrics(o.metrics),
	)
	bus := event.NewBus(event.WithExecutor(exec))

	k := &Kernel{
		Scopes:   disposable.NewRegistry(disposable.WithExecutor(exec)),
		Actions:  action.NewRegistry(action.WithExecutor(exec)),
		Events:   bus,
		Parts:    part.NewRegistry(part.WithExecutor(exec), part.WithBus(bus)),
		Icons:    icon.NewRegistry(icon.WithExecutor(exec)),
		Editors:  o.editors,
		App:      o.app,
		executor: exec,
	}

	if k.App == nil {
		k.App = NewStaticApp(User{}, "", Project{}, nil)
	}
	if k.Editors == nil {
		tracker := NewEditorTracker()
		d, err := tracker.Attach(bus)
		if err != nil {
			return nil, err
		}
		k.Editors = tracker
		k.closers = append(k.closers, d)
	}
	return k, nil
}

// Executor returns the catch boundary shared by the registries.
func (k *Kernel) Executor() *dispatch.Executor {
	return k.executor
}

// Logger returns the kernel logger.
func (k *Kernel) Logger() *slog.Logger {
	return k.executor.Logger()
}

// API returns the capability set backed by this kernel.
func (k *Kernel) API() API {
	return API{
		Actions: k.Actions,
		Events:  k.Events,
		Parts:   k.Parts,
		Images:  k.Icons,
		Editors: k.Editors,
		App:     k.App,
	}
}

// Close disposes every live scope, then the kernel's own subscriptions.
func (k *Kernel) Close() error {
	errs := []error{k.Scopes.DisposeAll()}
	for i := len(k.closers) - 1; i >= 0; i-- {
		errs = append(errs, k.closers[i].Dispose())
	}
	k.closers = nil
	return errors.Join(errs...)
}
