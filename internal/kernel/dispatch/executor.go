package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	kerrors "github.com/dshills/extkernel/internal/kernel/errors"
	"github.com/dshills/extkernel/internal/metrics"
)

// Executor runs plugin callbacks inside a catch boundary.
type Executor struct {
	logger  *slog.Logger
	metrics *metrics.Kernel
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the logger failures are reported to.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Kernel) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Logger returns the executor's logger.
func (e *Executor) Logger() *slog.Logger {
	return e.logger
}

// Metrics returns the executor's metrics sink, which may be nil.
func (e *Executor) Metrics() *metrics.Kernel {
	return e.metrics
}

// Call runs fn and returns a *kerrors.CallbackError if it returned an error
// or panicked. The failure is logged before returning.
func (e *Executor) Call(ctx context.Context, kind, id string, fn func() error) (err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = &kerrors.CallbackError{
				Kind:  kind,
				ID:    id,
				Panic: r,
				Stack: debug.Stack(),
			}
		}
		e.metrics.RecordCallback(ctx, kind, time.Since(start), err != nil)
		if err != nil {
			e.report(ctx, err)
		}
	}()

	if cbErr := fn(); cbErr != nil {
		return &kerrors.CallbackError{Kind: kind, ID: id, Err: cbErr}
	}
	return nil
}

// Run is Call for callbacks that do not return an error.
func (e *Executor) Run(ctx context.Context, kind, id string, fn func()) error {
	return e.Call(ctx, kind, id, func() error {
		fn()
		return nil
	})
}

func (e *Executor) report(ctx context.Context, err error) {
	cbErr, ok := err.(*kerrors.CallbackError)
	if !ok {
		e.logger.ErrorContext(ctx, "callback failed", slog.Any("error", err))
		return
	}
	if cbErr.Panicked() {
		e.logger.ErrorContext(ctx, "callback panicked",
			slog.String("kind", cbErr.Kind),
			slog.String("id", cbErr.ID),
			slog.Any("panic", cbErr.Panic),
			slog.String("stack", string(cbErr.Stack)),
		)
		return
	}
	e.logger.WarnContext(ctx, "callback returned error",
		slog.String("kind", cbErr.Kind),
		slog.String("id", cbErr.ID),
		slog.Any("error", cbErr.Err),
	)
}
