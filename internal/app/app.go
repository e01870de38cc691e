// Package app wires the kernel, the dispatch loop and the plugin manager
// into a running extension host and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/dshills/extkernel/internal/config"
	"github.com/dshills/extkernel/internal/ctxlog"
	"github.com/dshills/extkernel/internal/kernel"
	"github.com/dshills/extkernel/internal/kernel/action"
	"github.com/dshills/extkernel/internal/kernel/dispatch"
	"github.com/dshills/extkernel/internal/plugin"
)

// DefaultShutdownTimeout bounds Run's shutdown after its context ends.
const DefaultShutdownTimeout = 5 * time.Second

// Application is the extension host. Every plugin call, action update and
// reload is serialized onto one dispatch loop.
type Application struct {
	mu sync.Mutex

	config *config.Config
	logger *slog.Logger
	meters *meterSetup

	kernel  *kernel.Kernel
	loop    *dispatch.Loop
	poller  *action.Poller
	plugins *plugin.Manager
	watcher *plugin.Watcher

	builtins map[string]plugin.Plugin
	order    []string

	running atomic.Bool
	stopped atomic.Bool
}

// Options configures the application.
type Options struct {
	// Config is the host configuration. Defaults to config.Default().
	Config *config.Config

	// Logger overrides the logger built from Config.Log.
	Logger *slog.Logger

	// Editors replaces the kernel's built-in editor tracker.
	Editors kernel.EditorManager
}

// New creates a stopped Application.
func New(opts Options) (*Application, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}

	app := &Application{
		config:   cfg,
		logger:   opts.Logger,
		builtins: make(map[string]plugin.Plugin),
	}
	if err := app.bootstrap(opts); err != nil {
		return nil, err
	}
	return app, nil
}

// bootstrap initializes components in dependency order.
func (app *Application) bootstrap(opts Options) error {
	cfg := app.config

	// 1. Logging
	if app.logger == nil {
		l, err := NewLogger(cfg.Log.Level, cfg.Log.Format, nil)
		if err != nil {
			return &InitError{Component: "logger", Err: err}
		}
		app.logger = l
	}

	// 2. Metrics
	kopts := []kernel.Option{
		kernel.WithLogger(app.logger),
		kernel.WithAppContext(appContext(cfg.App)),
	}
	if cfg.Metrics.Enabled {
		m, err := newMeterSetup()
		if err != nil {
			return &InitError{Component: "metrics", Err: err}
		}
		app.meters = m
		kopts = append(kopts, kernel.WithMetrics(m.kernel))
	}
	if opts.Editors != nil {
		kopts = append(kopts, kernel.WithEditorManager(opts.Editors))
	}

	// 3. Kernel
	k, err := kernel.New(kopts...)
	if err != nil {
		app.closeMeters()
		return &InitError{Component: "kernel", Err: err}
	}
	app.kernel = k

	// 4. Dispatch loop and action poller
	app.loop = dispatch.NewLoop(
		dispatch.WithQueueSize(cfg.Loop.QueueSize),
		dispatch.WithExecutor(k.Executor()),
	)
	app.poller = action.NewPoller(k.Actions,
		action.WithInterval(cfg.Poll.Interval.Duration),
		action.WithScheduler(app.loop),
	)

	// 5. Plugin manager
	app.plugins = plugin.NewManager(k, plugin.ManagerConfig{
		PluginPaths:      cfg.Plugins.Paths,
		AutoActivate:     cfg.Plugins.AutoActivate,
		ExecutionTimeout: cfg.Plugins.ExecutionTimeout.Duration,
		Disabled:         cfg.Plugins.Disabled,
		PluginConfig:     cfg.Plugins.Settings,
	}, plugin.WithManagerLogger(app.logger.With(slog.String("component", "plugins"))))

	return nil
}

func appContext(c config.AppConfig) *kernel.StaticApp {
	return kernel.NewStaticApp(
		kernel.User{ID: c.User.ID, Name: c.User.Name, Email: c.User.Email},
		c.WorkspaceID,
		kernel.Project{Name: c.Project.Name, Path: c.Project.Path},
		c.Endpoints,
	)
}

// RegisterBuiltin adds a compiled-in plugin. Built-ins registered before
// Start are loaded ahead of discovered plugins; later ones are loaded on
// the loop immediately.
func (app *Application) RegisterBuiltin(ctx context.Context, name string, p plugin.Plugin) error {
	app.mu.Lock()
	if _, ok := app.builtins[name]; ok {
		app.mu.Unlock()
		return plugin.ErrAlreadyLoaded
	}
	app.builtins[name] = p
	app.order = append(app.order, name)
	app.mu.Unlock()

	if !app.running.Load() {
		return nil
	}
	return app.do(ctx, func(ctx context.Context) error {
		_, err := app.plugins.Register(ctx, name, p)
		return err
	})
}

// Start launches the loop, loads plugins and begins polling. Plugin load
// failures are logged and returned joined but do not stop the host.
func (app *Application) Start(ctx context.Context) error {
	if app.stopped.Load() {
		return ErrNotRunning
	}
	if !app.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx = ctxlog.WithLogger(ctx, app.logger)
	// Plugins are unloaded on the loop after ctx ends, so the loop must
	// outlive it.
	if err := app.loop.Start(context.WithoutCancel(ctx)); err != nil {
		app.running.Store(false)
		return &InitError{Component: "dispatch loop", Err: err}
	}

	loadErr := app.loadPlugins(ctx)
	if loadErr != nil {
		app.logger.Warn("some plugins failed to load", slog.Any("error", loadErr))
	}

	if err := app.poller.Start(ctx); err != nil {
		return &InitError{Component: "action poller", Err: err}
	}

	if app.config.Plugins.Watch {
		if err := app.startWatcher(ctx); err != nil {
			app.logger.Warn("plugin watcher unavailable", slog.Any("error", err))
		}
	}

	app.logger.Info("extension host started",
		slog.Int("plugins", app.plugins.Count()),
		slog.Int("active", app.plugins.CountActive()),
	)
	return loadErr
}

func (app *Application) loadPlugins(ctx context.Context) error {
	app.mu.Lock()
	names := append([]string(nil), app.order...)
	app.mu.Unlock()

	return app.do(ctx, func(ctx context.Context) error {
		var errs []error
		for _, name := range names {
			if slices.Contains(app.config.Plugins.Disabled, name) {
				app.logger.Info("built-in plugin disabled", slog.String("plugin", name))
				continue
			}
			if _, err := app.plugins.Register(ctx, name, app.builtins[name]); err != nil {
				errs = append(errs, err)
			}
		}
		if err := app.plugins.LoadAll(ctx); err != nil {
			errs = append(errs, err)
		}
		for name, err := range app.plugins.Errors() {
			errs = append(errs, fmt.Errorf("activate %s: %w", name, err))
		}
		return errors.Join(errs...)
	})
}

func (app *Application) startWatcher(ctx context.Context) error {
	w, err := plugin.NewWatcher(app.plugins.Loader(), app.reload,
		plugin.WithWatcherLogger(app.logger.With(slog.String("component", "watcher"))),
	)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		_ = w.Close()
		return err
	}
	app.mu.Lock()
	app.watcher = w
	app.mu.Unlock()
	return nil
}

// reload is the watcher callback. It hops onto the loop so the reload is
// serialized with every other plugin call.
func (app *Application) reload(_ context.Context, name string) {
	err := app.loop.Submit(func(ctx context.Context) {
		if err := app.plugins.Reload(ctx, name); err != nil {
			app.logger.Error("plugin reload failed", slog.String("plugin", name), slog.Any("error", err))
			return
		}
		app.logger.Info("plugin reloaded", slog.String("plugin", name))
	})
	if err != nil {
		app.logger.Warn("plugin reload dropped", slog.String("plugin", name), slog.Any("error", err))
	}
}

// Do runs fn on the dispatch loop and returns its error.
func (app *Application) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !app.running.Load() {
		return ErrNotRunning
	}
	return app.do(ctx, fn)
}

func (app *Application) do(ctx context.Context, fn func(ctx context.Context) error) error {
	var result error
	if err := app.loop.Do(ctx, func(ctx context.Context) {
		result = fn(ctx)
	}); err != nil {
		return err
	}
	return result
}

// Perform runs an action on the loop.
func (app *Application) Perform(ctx context.Context, id string) error {
	return app.Do(ctx, func(ctx context.Context) error {
		return app.kernel.Actions.Perform(ctx, id)
	})
}

// Run starts the host and blocks until ctx is done, then shuts down.
func (app *Application) Run(ctx context.Context) error {
	startErr := app.Start(ctx)
	var initErr *InitError
	if errors.As(startErr, &initErr) {
		_ = app.Shutdown(context.Background())
		return startErr
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return app.Shutdown(shutdownCtx)
}

// Shutdown stops the watcher and poller, unloads every plugin in reverse
// load order, drains the loop and closes the kernel. It is idempotent.
func (app *Application) Shutdown(ctx context.Context) error {
	if !app.stopped.CompareAndSwap(false, true) {
		return nil
	}
	wasRunning := app.running.Swap(false)

	var errs []error

	app.mu.Lock()
	w := app.watcher
	app.watcher = nil
	app.mu.Unlock()
	if w != nil {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	app.poller.Stop()

	if wasRunning {
		if err := app.do(ctx, app.plugins.UnloadAll); err != nil {
			errs = append(errs, err)
		}
		if err := app.loop.Stop(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = ErrShutdownTimeout
			}
			errs = append(errs, err)
		}
	}

	if err := app.kernel.Close(); err != nil {
		errs = append(errs, err)
	}

	if app.meters != nil && app.logger.Enabled(ctx, slog.LevelDebug) {
		if rm, err := app.meters.collect(ctx); err == nil {
			summary := Summarize(rm)
			attrs := make([]any, 0, len(summary))
			for _, name := range summary.Names() {
				attrs = append(attrs, slog.Int64(name, summary[name]))
			}
			app.logger.Debug("kernel metrics", attrs...)
		}
	}
	app.closeMeters()

	app.logger.Info("extension host stopped")
	return errors.Join(errs...)
}

func (app *Application) closeMeters() {
	if app.meters != nil {
		_ = app.meters.shutdown(context.Background())
	}
}

// CollectMetrics reads the current kernel metrics.
func (app *Application) CollectMetrics(ctx context.Context) (metricdata.ResourceMetrics, error) {
	if app.meters == nil {
		return metricdata.ResourceMetrics{}, ErrMetricsDisabled
	}
	return app.meters.collect(ctx)
}

// IsRunning returns true if the application is running.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Config returns the configuration the application was built with.
func (app *Application) Config() *config.Config {
	return app.config
}

// Logger returns the host logger.
func (app *Application) Logger() *slog.Logger {
	return app.logger
}

// Kernel returns the shared kernel.
func (app *Application) Kernel() *kernel.Kernel {
	return app.kernel
}

// Loop returns the dispatch loop.
func (app *Application) Loop() *dispatch.Loop {
	return app.loop
}

// Plugins returns the plugin manager.
func (app *Application) Plugins() *plugin.Manager {
	return app.plugins
}

// Poller returns the action update poller.
func (app *Application) Poller() *action.Poller {
	return app.poller
}
