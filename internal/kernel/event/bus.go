package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dshills/extkernel/internal/kernel/dispatch"
	"github.com/dshills/extkernel/internal/kernel/disposable"
	kerrors "github.com/dshills/extkernel/internal/kernel/errors"
)

// UntypedHandler receives payloads already checked against the token.
type UntypedHandler func(ctx context.Context, payload any) error

// Bus is the event bus interface.
type Bus interface {
	// Subscribe adds h for key. Disposing the result removes it.
	Subscribe(key Key, h UntypedHandler) (disposable.Disposable, error)

	// Publish dispatches payload to key's handlers synchronously. The error
	// is non-nil only when nothing was dispatched.
	Publish(ctx context.Context, key Key, payload any) (Result, error)

	// Handlers returns the number of live handlers for key.
	Handlers(key Key) int

	// Stats returns bus statistics.
	Stats() Stats
}

// Result summarizes one dispatch.
type Result struct {
	// Handlers is the number of handlers invoked.
	Handlers int

	// Skipped counts handlers disposed after the snapshot was taken.
	Skipped int

	// Errors holds one *errors.CallbackError per failed handler.
	Errors []error
}

// Failed returns the number of handlers that failed.
func (r Result) Failed() int {
	return len(r.Errors)
}

// Err joins the handler failures.
func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

// Stats contains bus statistics.
type Stats struct {
	EventsFired       uint64
	HandlersExecuted  uint64
	HandlerFailures   uint64
	HandlerPanics     uint64
	Rejected          uint64
	ActiveSubscribers int
}

type subscription struct {
	id       uint64
	key      Key
	handler  UntypedHandler
	disposed atomic.Bool
}

// bus is the default Bus implementation.
type bus struct {
	mu       sync.RWMutex
	subs     map[Key][]*subscription
	executor *dispatch.Executor
	nextID   atomic.Uint64

	fired    atomic.Uint64
	executed atomic.Uint64
	failures atomic.Uint64
	panics   atomic.Uint64
	rejected atomic.Uint64
}

// Option configures the bus.
type Option func(*bus)

// WithExecutor sets the executor handlers run inside.
func WithExecutor(e *dispatch.Executor) Option {
	return func(b *bus) {
		if e != nil {
			b.executor = e
		}
	}
}

// NewBus creates a new event bus with the given options.
func NewBus(opts ...Option) Bus {
	b := &bus{
		subs:     make(map[Key][]*subscription),
		executor: dispatch.NewExecutor(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *bus) Subscribe(key Key, h UntypedHandler) (disposable.Disposable, error) {
	if key == nil {
		return nil, fmt.Errorf("subscribe: %w: nil event type", kerrors.ErrInvalidArgument)
	}
	if h == nil {
		return nil, kerrors.NewIDError("subscribe", key.Name(), fmt.Errorf("%w: nil handler", kerrors.ErrInvalidArgument))
	}

	sub := &subscription{
		id:      b.nextID.Add(1),
		key:     key,
		handler: h,
	}

	b.mu.Lock()
	// Copy on write so in-flight dispatch snapshots stay valid.
	old := b.subs[key]
	subs := make([]*subscription, len(old), len(old)+1)
	copy(subs, old)
	b.subs[key] = append(subs, sub)
	b.mu.Unlock()

	b.executor.Metrics().RecordRegistration(context.Background(), "handler")

	return disposable.Once(func() error {
		b.remove(sub)
		return nil
	}), nil
}

func (b *bus) remove(sub *subscription) {
	sub.disposed.Store(true)

	b.mu.Lock()
	old := b.subs[sub.key]
	subs := make([]*subscription, 0, len(old))
	for _, s := range old {
		if s != sub {
			subs = append(subs, s)
		}
	}
	if len(subs) == 0 {
		delete(b.subs, sub.key)
	} else {
		b.subs[sub.key] = subs
	}
	b.mu.Unlock()

	b.executor.Metrics().RecordDisposal(context.Background(), "handler")
}

func (b *bus) Publish(ctx context.Context, key Key, payload any) (Result, error) {
	if key == nil {
		b.rejected.Add(1)
		return Result{}, fmt.Errorf("publish: %w: nil event type", kerrors.ErrInvalidArgument)
	}
	if !key.Accepts(payload) {
		b.rejected.Add(1)
		return Result{}, kerrors.NewIDError("publish", key.Name(),
			fmt.Errorf("%w: got %T, want %s", kerrors.ErrPayloadMismatch, payload, key.PayloadType()))
	}

	b.mu.RLock()
	snapshot := b.subs[key]
	b.mu.RUnlock()

	b.fired.Add(1)

	var res Result
	for _, sub := range snapshot {
		if sub.disposed.Load() {
			res.Skipped++
			continue
		}

		res.Handlers++
		b.executed.Add(1)

		id := key.Name() + "#" + strconv.FormatUint(sub.id, 10)
		err := b.executor.Call(ctx, "handler", id, func() error {
			return sub.handler(ctx, payload)
		})
		if err == nil {
			continue
		}

		b.failures.Add(1)
		var cbErr *kerrors.CallbackError
		if errors.As(err, &cbErr) && cbErr.Panicked() {
			b.panics.Add(1)
		}
		res.Errors = append(res.Errors, err)
	}

	b.executor.Metrics().RecordEvent(ctx, key.Name(), res.Handlers)
	return res, nil
}

func (b *bus) Handlers(key Key) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[key])
}

func (b *bus) Stats() Stats {
	b.mu.RLock()
	active := 0
	for _, subs := range b.subs {
		active += len(subs)
	}
	b.mu.RUnlock()

	return Stats{
		EventsFired:       b.fired.Load(),
		HandlersExecuted:  b.executed.Load(),
		HandlerFailures:   b.failures.Load(),
		HandlerPanics:     b.panics.Load(),
		Rejected:          b.rejected.Load(),
		ActiveSubscribers: active,
	}
}

// AddHandler subscribes a typed handler to t.
func AddHandler[E any](b Bus, t *Type[E], h func(ctx context.Context, e E) error) (disposable.Disposable, error) {
	if t == nil {
		return nil, fmt.Errorf("add handler: %w: nil event type", kerrors.ErrInvalidArgument)
	}
	if h == nil {
		return nil, kerrors.NewIDError("add handler", t.Name(), fmt.Errorf("%w: nil handler", kerrors.ErrInvalidArgument))
	}
	return b.Subscribe(t, func(ctx context.Context, payload any) error {
		e, _ := payload.(E)
		return h(ctx, e)
	})
}

// Fire dispatches e to t's handlers and returns the dispatch summary.
func Fire[E any](ctx context.Context, b Bus, t *Type[E], e E) Result {
	if t == nil {
		return Result{Errors: []error{fmt.Errorf("fire: %w: nil event type", kerrors.ErrInvalidArgument)}}
	}
	res, err := b.Publish(ctx, t, e)
	if err != nil {
		res.Errors = append(res.Errors, err)
	}
	return res
}
