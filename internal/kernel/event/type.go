package event

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Key is the untyped view of an event token.
type Key interface {
	// Name returns the token's display name.
	Name() string

	// PayloadType returns the static payload type.
	PayloadType() reflect.Type

	// Accepts reports whether payload may be published under this token.
	Accepts(payload any) bool
}

// Type is an event token carrying payloads of type E. Tokens compare by
// identity.
type Type[E any] struct {
	name string
}

// NewType creates a new, distinct event token.
func NewType[E any](name string) *Type[E] {
	return &Type[E]{name: name}
}

// Name returns the token's name.
func (t *Type[E]) Name() string {
	return t.name
}

// PayloadType returns reflect.Type of E.
func (t *Type[E]) PayloadType() reflect.Type {
	return reflect.TypeFor[E]()
}

// Accepts reports whether payload is an E. A nil payload is accepted only
// when E is an interface type.
func (t *Type[E]) Accepts(payload any) bool {
	if payload == nil {
		var zero E
		return any(zero) == nil
	}
	_, ok := payload.(E)
	return ok
}

// String implements fmt.Stringer.
func (t *Type[E]) String() string {
	return fmt.Sprintf("%s(%s)", t.name, t.PayloadType())
}

// Fielder is implemented by payloads that can be flattened for script
// plugins.
type Fielder interface {
	Fields() map[string]any
}

var (
	catalogMu sync.RWMutex
	catalog   = make(map[string]Key)
)

// Export publishes t under its name so it can be found with Lookup. It
// panics if a different token was already exported under the same name.
func Export[E any](t *Type[E]) *Type[E] {
	catalogMu.Lock()
	defer catalogMu.Unlock()

	if existing, ok := catalog[t.name]; ok && existing != Key(t) {
		panic(fmt.Sprintf("event: token %q exported twice", t.name))
	}
	catalog[t.name] = t
	return t
}

// Lookup returns the exported token with the given name.
func Lookup(name string) (Key, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	k, ok := catalog[name]
	return k, ok
}

// Exported returns the names of all exported tokens, sorted.
func Exported() []string {
	catalogMu.RLock()
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	catalogMu.RUnlock()

	sort.Strings(names)
	return names
}
