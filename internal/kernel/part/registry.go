package part

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/dshills/extkernel/internal/kernel/dispatch"
	"github.com/dshills/extkernel/internal/kernel/disposable"
	"github.com/dshills/extkernel/internal/kernel/dom"
	kerrors "github.com/dshills/extkernel/internal/kernel/errors"
	"github.com/dshills/extkernel/internal/kernel/event"
)

// Re-exported part lifecycle errors.
var (
	ErrInvalidStack = kerrors.ErrInvalidStack
	ErrPartRemoved  = kerrors.ErrPartRemoved
	ErrNotOpened    = kerrors.ErrNotOpened
	ErrInvalidPart  = kerrors.ErrInvalidPart
)

type record struct {
	state State
	stack Stack
	order uint64

	// lastView is the last view that rendered without failing.
	lastView *dom.Element
}

// Registry tracks part lifecycles. It is safe for concurrent use; OnOpen,
// View and event handlers always run with the lock released.
type Registry struct {
	mu     sync.Mutex
	parts  map[Part]*record
	active map[Stack]Part
	order  uint64

	executor *dispatch.Executor
	bus      event.Bus
}

// Option configures a Registry.
type Option func(*Registry)

// WithExecutor sets the executor part callbacks run inside.
func WithExecutor(e *dispatch.Executor) Option {
	return func(r *Registry) {
		if e != nil {
			r.executor = e
		}
	}
}

// WithBus publishes ActivePartChanged events on b.
func WithBus(b event.Bus) Option {
	return func(r *Registry) {
		r.bus = b
	}
}

// NewRegistry creates an empty part registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		parts:    make(map[Part]*record),
		active:   make(map[Stack]Part),
		executor: dispatch.NewExecutor(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func validPart(p Part) error {
	if p == nil {
		return fmt.Errorf("%w: nil part", ErrInvalidPart)
	}
	if t := reflect.TypeOf(p); !t.Comparable() {
		return fmt.Errorf("%w: %s is not comparable", ErrInvalidPart, t)
	}
	return nil
}

// partID names p by identity only; it must never call into the part.
func partID(p Part) string {
	if v := reflect.ValueOf(p); v.Kind() == reflect.Pointer {
		return fmt.Sprintf("%T@%#x", p, v.Pointer())
	}
	return fmt.Sprintf("%T", p)
}

// Open opens p in stack. The first open calls p.OnOpen. Opening a part that
// is already open in stack does nothing; opening it in another stack moves
// it there. Disposing the result removes the part.
func (r *Registry) Open(ctx context.Context, p Part, stack Stack) (disposable.Disposable, error) {
	if err := validPart(p); err != nil {
		return nil, err
	}
	if !stack.Valid() {
		return nil, fmt.Errorf("open part %s: %w: %s", partID(p), ErrInvalidStack, stack)
	}

	var (
		first   bool
		changed []ActivePartChanged
	)

	r.mu.Lock()
	rec := r.parts[p]
	switch {
	case rec == nil:
		r.order++
		r.parts[p] = &record{state: Opened, stack: stack, order: r.order}
		first = true
	case rec.state == Removed:
		r.mu.Unlock()
		return nil, fmt.Errorf("open part %s: %w", partID(p), ErrPartRemoved)
	case rec.stack == stack && (rec.state == Opened || rec.state == Active):
		r.mu.Unlock()
		return r.remover(p), nil
	default:
		if rec.stack != stack {
			if r.active[rec.stack] == p {
				delete(r.active, rec.stack)
				changed = append(changed, ActivePartChanged{Stack: rec.stack, Previous: p})
			}
			r.order++
			rec.order = r.order
			rec.stack = stack
		}
		rec.state = Opened
	}
	r.mu.Unlock()

	if first {
		r.executor.Metrics().RecordRegistration(ctx, "part")
		_ = r.executor.Run(ctx, "onopen", partID(p), func() { p.OnOpen(ctx) })
	}
	r.publish(ctx, changed)

	return r.remover(p), nil
}

func (r *Registry) remover(p Part) disposable.Disposable {
	return disposable.Once(func() error {
		err := r.Remove(context.Background(), p)
		if err != nil && !errors.Is(err, ErrPartRemoved) {
			return err
		}
		return nil
	})
}

// Activate makes p the active part of its stack. The previously active part
// of that stack goes back to Opened.
func (r *Registry) Activate(ctx context.Context, p Part) error {
	if err := validPart(p); err != nil {
		return err
	}

	r.mu.Lock()
	rec := r.parts[p]
	if err := r.checkOpen(p, rec, "activate"); err != nil {
		r.mu.Unlock()
		return err
	}
	if rec.state == Active {
		r.mu.Unlock()
		return nil
	}

	prev := r.active[rec.stack]
	if prev != nil {
		r.parts[prev].state = Opened
	}
	r.active[rec.stack] = p
	rec.state = Active
	change := ActivePartChanged{Stack: rec.stack, Part: p, Previous: prev}
	r.mu.Unlock()

	r.publish(ctx, []ActivePartChanged{change})
	return nil
}

// Hide hides p. If p was active its stack is left without an active part.
func (r *Registry) Hide(ctx context.Context, p Part) error {
	if err := validPart(p); err != nil {
		return err
	}

	r.mu.Lock()
	rec := r.parts[p]
	if err := r.checkOpen(p, rec, "hide"); err != nil {
		r.mu.Unlock()
		return err
	}

	var changed []ActivePartChanged
	if rec.state == Active {
		delete(r.active, rec.stack)
		changed = append(changed, ActivePartChanged{Stack: rec.stack, Previous: p})
	}
	rec.state = Hidden
	r.mu.Unlock()

	r.publish(ctx, changed)
	return nil
}

// Remove moves p to the terminal Removed state from any state. The registry
// keeps a view-less record of every removed part so later calls report
// ErrPartRemoved. Its size grows with the number of distinct parts seen.
func (r *Registry) Remove(ctx context.Context, p Part) error {
	if err := validPart(p); err != nil {
		return err
	}

	r.mu.Lock()
	rec := r.parts[p]
	if rec == nil {
		r.parts[p] = &record{state: Removed}
		r.mu.Unlock()
		return nil
	}
	if rec.state == Removed {
		r.mu.Unlock()
		return fmt.Errorf("remove part %s: %w", partID(p), ErrPartRemoved)
	}

	var changed []ActivePartChanged
	if rec.state == Active {
		delete(r.active, rec.stack)
		changed = append(changed, ActivePartChanged{Stack: rec.stack, Previous: p})
	}
	wasOpen := rec.state != Unopened
	rec.state = Removed
	rec.lastView = nil
	r.mu.Unlock()

	if wasOpen {
		r.executor.Metrics().RecordDisposal(ctx, "part")
	}
	r.publish(ctx, changed)
	return nil
}

func (r *Registry) checkOpen(p Part, rec *record, op string) error {
	if rec == nil || rec.state == Unopened {
		return fmt.Errorf("%s part %s: %w", op, partID(p), ErrNotOpened)
	}
	if rec.state == Removed {
		return fmt.Errorf("%s part %s: %w", op, partID(p), ErrPartRemoved)
	}
	return nil
}

// View renders p. If rendering fails or yields nothing, the last good view
// is returned instead. The returned element belongs to the caller.
func (r *Registry) View(ctx context.Context, p Part) (*dom.Element, error) {
	if err := validPart(p); err != nil {
		return nil, err
	}

	r.mu.Lock()
	rec := r.parts[p]
	if err := r.checkOpen(p, rec, "view"); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	var view *dom.Element
	err := r.executor.Run(ctx, "view", partID(p), func() { view = p.View(ctx) })

	if err != nil || view == nil {
		r.mu.Lock()
		last := rec.lastView.Clone()
		r.mu.Unlock()
		if last == nil {
			return nil, err
		}
		r.executor.Logger().WarnContext(ctx, "part view failed, keeping last view",
			slog.String("part", partID(p)))
		return last, nil
	}

	r.mu.Lock()
	if rec.state != Removed {
		rec.lastView = view.Clone()
	}
	r.mu.Unlock()
	return view, nil
}

// State returns p's lifecycle state. Unknown parts are Unopened.
func (r *Registry) State(p Part) State {
	if validPart(p) != nil {
		return Unopened
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec := r.parts[p]; rec != nil {
		return rec.state
	}
	return Unopened
}

// StackOf returns the stack p is open in.
func (r *Registry) StackOf(p Part) (Stack, bool) {
	if validPart(p) != nil {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.parts[p]
	if rec == nil || rec.state == Unopened || rec.state == Removed {
		return 0, false
	}
	return rec.stack, true
}

// Active returns the active part of stack.
func (r *Registry) Active(stack Stack) (Part, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.active[stack]
	return p, ok
}

// Parts returns the parts open or hidden in stack, in the order they were
// opened there.
func (r *Registry) Parts(stack Stack) []Part {
	type entry struct {
		p     Part
		order uint64
	}

	r.mu.Lock()
	var entries []entry
	for p, rec := range r.parts {
		if rec.stack != stack || rec.state == Removed || rec.state == Unopened {
			continue
		}
		entries = append(entries, entry{p: p, order: rec.order})
	}
	r.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })

	parts := make([]Part, len(entries))
	for i, e := range entries {
		parts[i] = e.p
	}
	return parts
}

func (r *Registry) publish(ctx context.Context, changes []ActivePartChanged) {
	if r.bus == nil {
		return
	}
	for _, c := range changes {
		event.Fire(ctx, r.bus, ActivePartChangedType, c)
	}
}
