// Package metrics records kernel activity through OpenTelemetry instruments.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope used by NewDefault.
const MeterName = "github.com/dshills/extkernel"

// Instrument names.
const (
	Registrations    = "extkernel.registrations"
	Disposals        = "extkernel.disposals"
	CallbackFailures = "extkernel.callback.failures"
	CallbackDuration = "extkernel.callback.duration"
	EventsFired      = "extkernel.events.fired"
	ActionsPerformed = "extkernel.actions.performed"
)

// Kernel holds the instruments shared by the registries.
// A nil *Kernel is valid and records nothing.
type Kernel struct {
	registrations metric.Int64Counter
	disposals     metric.Int64Counter
	failures      metric.Int64Counter
	duration      metric.Float64Histogram
	eventsFired   metric.Int64Counter
	performed     metric.Int64Counter
}

// NewDefault creates instruments on the global meter provider.
func NewDefault() (*Kernel, error) {
	return New(otel.Meter(MeterName))
}

// New creates the kernel instruments on meter.
func New(meter metric.Meter) (*Kernel, error) {
	registrations, err := meter.Int64Counter(
		Registrations,
		metric.WithDescription("Registrations accepted by the kernel registries"),
	)
	if err != nil {
		return nil, err
	}

	disposals, err := meter.Int64Counter(
		Disposals,
		metric.WithDescription("Registrations reversed by disposal"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		CallbackFailures,
		metric.WithDescription("Plugin callbacks that returned an error or panicked"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		CallbackDuration,
		metric.WithDescription("Time spent inside plugin callbacks"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	eventsFired, err := meter.Int64Counter(
		EventsFired,
		metric.WithDescription("Events dispatched on the typed event bus"),
	)
	if err != nil {
		return nil, err
	}

	performed, err := meter.Int64Counter(
		ActionsPerformed,
		metric.WithDescription("Action perform invocations"),
	)
	if err != nil {
		return nil, err
	}

	return &Kernel{
		registrations: registrations,
		disposals:     disposals,
		failures:      failures,
		duration:      duration,
		eventsFired:   eventsFired,
		performed:     performed,
	}, nil
}

// RecordRegistration counts an accepted registration of the given kind.
func (k *Kernel) RecordRegistration(ctx context.Context, kind string) {
	if k == nil {
		return
	}
	k.registrations.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDisposal counts a reversed registration of the given kind.
func (k *Kernel) RecordDisposal(ctx context.Context, kind string) {
	if k == nil {
		return
	}
	k.disposals.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordCallback records the duration of a callback and counts it if it failed.
func (k *Kernel) RecordCallback(ctx context.Context, kind string, d time.Duration, failed bool) {
	if k == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	k.duration.Record(ctx, d.Seconds(), attrs)
	if failed {
		k.failures.Add(ctx, 1, attrs)
	}
}

// RecordEvent counts a fired event.
func (k *Kernel) RecordEvent(ctx context.Context, name string, handlers int) {
	if k == nil {
		return
	}
	k.eventsFired.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", name),
		attribute.Int("handlers", handlers),
	))
}

// RecordPerform counts an action perform.
func (k *Kernel) RecordPerform(ctx context.Context, actionID string, success bool) {
	if k == nil {
		return
	}
	k.performed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", actionID),
		attribute.Bool("success", success),
	))
}
