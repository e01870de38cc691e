package kernel

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/dshills/extkernel/internal/kernel/disposable"
	"github.com/dshills/extkernel/internal/kernel/event"
	"github.com/dshills/extkernel/internal/kernel/event/events"
)

// EditorManager reports the editors open in the host.
type EditorManager interface {
	// OpenEditors returns the locations of open files, oldest first.
	OpenEditors() []string

	// ActiveEditor returns the most recently opened file still open.
	ActiveEditor() (string, bool)
}

// EditorTracker is an EditorManager fed by editor events.
type EditorTracker struct {
	mu   sync.Mutex
	open []string
}

// NewEditorTracker creates an empty tracker.
func NewEditorTracker() *EditorTracker {
	return &EditorTracker{}
}

// Attach subscribes the tracker to the editor events on bus.
func (t *EditorTracker) Attach(bus event.Bus) (disposable.Disposable, error) {
	opened, err := event.AddHandler(bus, events.EditorOpenedType, func(_ context.Context, e events.EditorOpened) error {
		t.Opened(e.File.Location)
		return nil
	})
	if err != nil {
		return nil, err
	}
	closed, err := event.AddHandler(bus, events.EditorClosedType, func(_ context.Context, e events.EditorClosed) error {
		t.Closed(e.File.Location)
		return nil
	})
	if err != nil {
		_ = opened.Dispose()
		return nil, err
	}
	return disposable.Once(func() error {
		return errors.Join(closed.Dispose(), opened.Dispose())
	}), nil
}

// Opened records an opened file. Reopening makes it the active editor again.
func (t *EditorTracker) Opened(location string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = slices.DeleteFunc(t.open, func(l string) bool { return l == location })
	t.open = append(t.open, location)
}

// Closed records a closed file.
func (t *EditorTracker) Closed(location string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = slices.DeleteFunc(t.open, func(l string) bool { return l == location })
}

// OpenEditors implements EditorManager.
func (t *EditorTracker) OpenEditors() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.open)
}

// ActiveEditor implements EditorManager.
func (t *EditorTracker) ActiveEditor() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.open) == 0 {
		return "", false
	}
	return t.open[len(t.open)-1], true
}
