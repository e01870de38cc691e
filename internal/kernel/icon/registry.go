// Package icon maps image ids to element producers. Every lookup returns a
// node the caller owns.
package icon

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/extkernel/internal/kernel/dispatch"
	"github.com/dshills/extkernel/internal/kernel/disposable"
	"github.com/dshills/extkernel/internal/kernel/dom"
	kerrors "github.com/dshills/extkernel/internal/kernel/errors"
)

// Factory produces an image element. Its result is always copied, so it may
// return a cached node.
type Factory func() *dom.Element

// Kind is the way an icon is produced.
type Kind int

// Icon kinds.
const (
	KindURL Kind = iota
	KindHTML
	KindFactory
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindURL:
		return "url"
	case KindHTML:
		return "html"
	case KindFactory:
		return "factory"
	default:
		return "unknown"
	}
}

type registration struct {
	kind    Kind
	source  string
	factory Factory
}

// Registry holds icon registrations.
type Registry struct {
	mu       sync.RWMutex
	icons    map[string]*registration
	executor *dispatch.Executor
}

// Option configures a Registry.
type Option func(*Registry)

// WithExecutor sets the executor factories run inside.
func WithExecutor(e *dispatch.Executor) Option {
	return func(r *Registry) {
		if e != nil {
			r.executor = e
		}
	}
}

// NewRegistry creates an empty icon registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		icons:    make(map[string]*registration),
		executor: dispatch.NewExecutor(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterURL registers an image loaded from url.
func (r *Registry) RegisterURL(id, url string) (disposable.Disposable, error) {
	if url == "" {
		return nil, kerrors.NewIDError("register icon", id, fmt.Errorf("%w: empty url", kerrors.ErrInvalidArgument))
	}
	return r.register(id, &registration{kind: KindURL, source: url})
}

// RegisterHTML registers an image rendered from markup, such as an icon
// font glyph.
func (r *Registry) RegisterHTML(id, html string) (disposable.Disposable, error) {
	return r.register(id, &registration{kind: KindHTML, source: html})
}

// RegisterFactory registers an image produced by f on every lookup.
func (r *Registry) RegisterFactory(id string, f Factory) (disposable.Disposable, error) {
	if f == nil {
		return nil, kerrors.NewIDError("register icon", id, fmt.Errorf("%w: nil factory", kerrors.ErrInvalidArgument))
	}
	return r.register(id, &registration{kind: KindFactory, factory: f})
}

func (r *Registry) register(id string, reg *registration) (disposable.Disposable, error) {
	if id == "" {
		return nil, kerrors.NewIDError("register icon", id, fmt.Errorf("%w: empty id", kerrors.ErrInvalidArgument))
	}

	r.mu.Lock()
	if _, exists := r.icons[id]; exists {
		r.mu.Unlock()
		return nil, kerrors.NewIDError("register icon", id, kerrors.ErrDuplicateID)
	}
	r.icons[id] = reg
	r.mu.Unlock()

	r.executor.Metrics().RecordRegistration(context.Background(), "icon")

	return disposable.Once(func() error {
		r.mu.Lock()
		if r.icons[id] == reg {
			delete(r.icons, id)
		}
		r.mu.Unlock()
		r.executor.Metrics().RecordDisposal(context.Background(), "icon")
		return nil
	}), nil
}

// Image returns a fresh element for id. It returns false for unknown ids and
// for factories that fail or produce nothing.
func (r *Registry) Image(ctx context.Context, id string) (*dom.Element, bool) {
	r.mu.RLock()
	reg := r.icons[id]
	r.mu.RUnlock()

	if reg == nil {
		return nil, false
	}

	switch reg.kind {
	case KindURL:
		return dom.Img(reg.source), true
	case KindHTML:
		return dom.HTML(reg.source), true
	}

	var el *dom.Element
	if err := r.executor.Run(ctx, "icon", id, func() { el = reg.factory() }); err != nil || el == nil {
		return nil, false
	}

	// Factories may cache their nodes.
	return el.Clone(), true
}

// Kind returns how id is produced.
func (r *Registry) Kind(id string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.icons[id]
	if !ok {
		return 0, false
	}
	return reg.kind, true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.icons[id]
	return ok
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.icons))
	for id := range r.icons {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
