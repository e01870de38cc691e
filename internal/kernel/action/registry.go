// Package action implements the action registry: contributed commands with
// a cheap, frequently polled update phase and a perform phase invoked once
// per user trigger.
package action

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/dshills/extkernel/internal/kernel/dispatch"
	"github.com/dshills/extkernel/internal/kernel/disposable"
	kerrors "github.com/dshills/extkernel/internal/kernel/errors"
)

// UpdateFunc refreshes an action's presentation. It runs on every poll tick
// and must not block or touch anything but st.
type UpdateFunc func(ctx context.Context, st *State)

// PerformFunc runs the action. Slow work belongs on a goroutine.
type PerformFunc func(ctx context.Context, st *State) error

// entry is one registered action.
type entry struct {
	id      string
	update  UpdateFunc
	perform PerformFunc

	// updating makes update single-flight per action.
	updating sync.Mutex
	disposed atomic.Bool

	mu   sync.Mutex
	last Presentation
}

// presentation returns a copy of the last presentation whose icon the
// caller owns.
func (e *entry) presentation() Presentation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last.clone()
}

func (e *entry) store(p Presentation) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last = p
}

// Registry holds the live actions. It is safe for concurrent use and never
// holds its lock while a callback runs.
type Registry struct {
	mu       sync.RWMutex
	actions  map[string]*entry
	executor *dispatch.Executor
}

// Option configures a Registry.
type Option func(*Registry)

// WithExecutor sets the executor callbacks run inside.
func WithExecutor(e *dispatch.Executor) Option {
	return func(r *Registry) {
		if e != nil {
			r.executor = e
		}
	}
}

// NewRegistry creates an empty action registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		actions:  make(map[string]*entry),
		executor: dispatch.NewExecutor(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an action. Disposing the returned handle removes it.
func (r *Registry) Register(id string, update UpdateFunc, perform PerformFunc) (disposable.Disposable, error) {
	if id == "" {
		return nil, kerrors.NewIDError("register action", id, fmt.Errorf("%w: empty id", kerrors.ErrInvalidArgument))
	}
	if update == nil || perform == nil {
		return nil, kerrors.NewIDError("register action", id, fmt.Errorf("%w: nil callback", kerrors.ErrInvalidArgument))
	}

	e := &entry{
		id:      id,
		update:  update,
		perform: perform,
		last:    defaultPresentation(id),
	}

	r.mu.Lock()
	if _, exists := r.actions[id]; exists {
		r.mu.Unlock()
		return nil, kerrors.NewIDError("register action", id, kerrors.ErrDuplicateID)
	}
	r.actions[id] = e
	r.mu.Unlock()

	r.executor.Metrics().RecordRegistration(context.Background(), "action")

	return disposable.Once(func() error {
		r.remove(e)
		return nil
	}), nil
}

func (r *Registry) remove(e *entry) {
	e.disposed.Store(true)

	r.mu.Lock()
	if r.actions[e.id] == e {
		delete(r.actions, e.id)
	}
	r.mu.Unlock()

	r.executor.Metrics().RecordDisposal(context.Background(), "action")
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.actions[id]
}

// Update runs the action's update callback and returns the resulting
// presentation. It returns false if id is not registered. If an update for
// the same action is already running, the last presentation is returned
// without calling update again. A failing update leaves the last good
// presentation in place.
func (r *Registry) Update(ctx context.Context, id string) (Presentation, bool) {
	e := r.lookup(id)
	if e == nil {
		return Presentation{}, false
	}

	if !e.updating.TryLock() {
		return e.presentation(), true
	}
	defer e.updating.Unlock()

	if e.disposed.Load() {
		return Presentation{}, false
	}

	st := NewState(e.presentation())
	if err := r.executor.Run(ctx, "update", id, func() { e.update(ctx, st) }); err != nil {
		return e.presentation(), true
	}

	p := st.Snapshot()
	if !e.disposed.Load() {
		e.store(p)
	}
	return p.clone(), true
}

// Perform refreshes the action and, if it is enabled, runs its perform
// callback. Callback failures are returned as *errors.CallbackError.
func (r *Registry) Perform(ctx context.Context, id string) error {
	e := r.lookup(id)
	if e == nil {
		return kerrors.NewIDError("perform action", id, kerrors.ErrNotRegistered)
	}

	p, ok := r.Update(ctx, id)
	if !ok || e.disposed.Load() {
		return kerrors.NewIDError("perform action", id, kerrors.ErrNotRegistered)
	}
	if !p.Enabled {
		return kerrors.NewIDError("perform action", id, kerrors.ErrDisabled)
	}

	st := NewState(p)
	err := r.executor.Call(ctx, "perform", id, func() error {
		return e.perform(ctx, st)
	})
	r.executor.Metrics().RecordPerform(ctx, id, err == nil)
	return err
}

// Presentation returns the last computed presentation for id. Each call
// returns its own icon element.
func (r *Registry) Presentation(id string) (Presentation, bool) {
	e := r.lookup(id)
	if e == nil {
		return Presentation{}, false
	}
	return e.presentation(), true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	return r.lookup(id) != nil
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.actions))
	for id := range r.actions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actions)
}
