package disposable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/extkernel/internal/kernel/dispatch"
	kerrors "github.com/dshills/extkernel/internal/kernel/errors"
)

// Registry creates scopes and remembers the live ones so the host can tear
// everything down at shutdown.
type Registry struct {
	mu       sync.Mutex
	scopes   []*Scope
	executor *dispatch.Executor
}

// Option configures a Registry.
type Option func(*Registry)

// WithExecutor sets the executor member disposals run inside.
func WithExecutor(e *dispatch.Executor) Option {
	return func(r *Registry) {
		if e != nil {
			r.executor = e
		}
	}
}

// NewRegistry creates a new scope registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		executor: dispatch.NewExecutor(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateScope creates a new, empty scope.
func (r *Registry) CreateScope(name string) *Scope {
	s := &Scope{
		id:       uuid.NewString(),
		name:     name,
		registry: r,
		executor: r.executor,
	}

	r.mu.Lock()
	r.scopes = append(r.scopes, s)
	r.mu.Unlock()

	return s
}

// Scopes returns the number of live scopes.
func (r *Registry) Scopes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scopes)
}

// DisposeAll disposes every live scope in reverse creation order.
func (r *Registry) DisposeAll() error {
	r.mu.Lock()
	scopes := make([]*Scope, len(r.scopes))
	copy(scopes, r.scopes)
	r.mu.Unlock()

	var errs []error
	for i := len(scopes) - 1; i >= 0; i-- {
		if err := scopes[i].DisposeAll(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) forget(s *Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, live := range r.scopes {
		if live == s {
			r.scopes = append(r.scopes[:i], r.scopes[i+1:]...)
			return
		}
	}
}

// Scope is an ordered set of disposables owned by one plugin activation.
type Scope struct {
	id       string
	name     string
	registry *Registry
	executor *dispatch.Executor

	mu       sync.Mutex
	members  []Disposable
	disposed bool
}

// ID returns the scope's unique id.
func (s *Scope) ID() string {
	return s.id
}

// Name returns the name the scope was created with.
func (s *Scope) Name() string {
	return s.name
}

// Len returns the number of members not yet disposed.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Disposed returns true once DisposeAll has started.
func (s *Scope) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Add appends d to the scope.
func (s *Scope) Add(d Disposable) error {
	if d == nil {
		return ErrNilDisposable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return fmt.Errorf("scope %s: %w", s.name, ErrUseAfterTeardown)
	}
	s.members = append(s.members, d)
	return nil
}

// DisposeAll disposes every member exactly once in reverse order. Failing
// members are logged and teardown continues; their errors are joined into
// the result. The scope rejects further adds afterward.
func (s *Scope) DisposeAll() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	members := s.members
	s.members = nil
	s.mu.Unlock()

	if s.registry != nil {
		s.registry.forget(s)
	}

	ctx := context.Background()
	var errs []error
	for i := len(members) - 1; i >= 0; i-- {
		d := members[i]
		id := fmt.Sprintf("%s#%d", s.name, i)
		if err := s.executor.Call(ctx, "dispose", id, d.Dispose); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		s.executor.Logger().Warn("scope teardown finished with failures",
			slog.String("scope", s.name),
			slog.String("scope_id", s.id),
			slog.Int("failures", len(errs)),
			slog.Int("members", len(members)),
		)
	}
	return errors.Join(errs...)
}

// Dispose makes a Scope usable as a member of another scope.
func (s *Scope) Dispose() error {
	return s.DisposeAll()
}

// Re-exported so callers need not import the errors package for the common checks.
var (
	ErrUseAfterTeardown = kerrors.ErrUseAfterTeardown
	ErrNilDisposable    = kerrors.ErrNilDisposable
)
