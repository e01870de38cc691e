// Package disposable tracks reversible registrations.
//
// Every registry in the kernel hands out a Disposable per registration.
// Plugins collect them in the Scope created for their activation; disposing
// the scope unwinds every registration the plugin made, in reverse order,
// and nothing else.
package disposable

import "sync"

// Disposable reverses one registration. Dispose must be safe to call zero or
// more times.
type Disposable interface {
	Dispose() error
}

// Func adapts a function to Disposable. Unlike Once it runs on every call.
type Func func() error

// Dispose calls f.
func (f Func) Dispose() error {
	if f == nil {
		return nil
	}
	return f()
}

// Nop is a Disposable that does nothing.
var Nop Disposable = Func(nil)

// once runs its function on the first Dispose only.
type once struct {
	o   sync.Once
	fn  func() error
	err error
}

// Once returns a Disposable that runs fn on the first Dispose and returns
// the same result on every later call.
func Once(fn func() error) Disposable {
	return &once{fn: fn}
}

func (d *once) Dispose() error {
	d.o.Do(func() {
		if d.fn != nil {
			d.err = d.fn()
		}
		d.fn = nil
	})
	return d.err
}
