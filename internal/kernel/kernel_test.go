package kernel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/extkernel/internal/ctxlog"
	"github.com/dshills/extkernel/internal/kernel/action"
	"github.com/dshills/extkernel/internal/kernel/event"
	"github.com/dshills/extkernel/internal/kernel/event/events"
	"github.com/dshills/extkernel/internal/kernel/part"
)

func newTestKernel(t *testing.T, opts ...Option) *Kernel {
	t.Helper()
	k, err := New(append([]Option{WithLogger(ctxlog.Discard())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func TestAPIIsBackedByRegistries(t *testing.T) {
	k := newTestKernel(t)
	api := k.API()

	_, err := api.Actions.Register("a1", func(context.Context, *action.State) {}, func(context.Context, *action.State) error { return nil })
	require.NoError(t, err)
	assert.True(t, k.Actions.Has("a1"))

	_, err = api.Images.RegisterURL("logo", "logo.png")
	require.NoError(t, err)
	assert.True(t, k.Icons.Has("logo"))

	p := &part.Panel{Name: "P"}
	_, err = api.Parts.Open(context.Background(), p, part.Information)
	require.NoError(t, err)
	assert.Equal(t, part.Opened, k.Parts.State(p))
}

func TestScopeTeardownIsolatesTenants(t *testing.T) {
	k := newTestKernel(t)
	api := k.API()
	noop := func(context.Context, *action.State) error { return nil }

	first := k.Scopes.CreateScope("first")
	second := k.Scopes.CreateScope("second")

	d, err := api.Actions.Register("first.run", func(context.Context, *action.State) {}, noop)
	require.NoError(t, err)
	require.NoError(t, first.Add(d))
	d, err = api.Actions.Register("second.run", func(context.Context, *action.State) {}, noop)
	require.NoError(t, err)
	require.NoError(t, second.Add(d))

	var secondEvents int
	d, err = event.AddHandler(api.Events, events.ServerRunningType, func(context.Context, events.ServerRunning) error {
		secondEvents++
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, second.Add(d))

	require.NoError(t, first.DisposeAll())

	assert.Equal(t, []string{"second.run"}, k.Actions.IDs())
	event.Fire(context.Background(), api.Events, events.ServerRunningType, events.ServerRunning{})
	assert.Equal(t, 1, secondEvents)
}

func TestCloseDisposesEverything(t *testing.T) {
	k, err := New(WithLogger(ctxlog.Discard()))
	require.NoError(t, err)

	s := k.Scopes.CreateScope("plugin")
	d, err := k.Icons.RegisterHTML("x", "<b/>")
	require.NoError(t, err)
	require.NoError(t, s.Add(d))

	require.NoError(t, k.Close())
	assert.False(t, k.Icons.Has("x"))
	assert.True(t, s.Disposed())
	assert.Equal(t, 0, k.Events.Stats().ActiveSubscribers)
}

func TestEditorTrackerFollowsEvents(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	file := func(loc string) events.File { return events.File{Location: loc} }
	event.Fire(ctx, k.Events, events.EditorOpenedType, events.EditorOpened{File: file("a.go")})
	event.Fire(ctx, k.Events, events.EditorOpenedType, events.EditorOpened{File: file("b.go")})
	event.Fire(ctx, k.Events, events.EditorOpenedType, events.EditorOpened{File: file("a.go")})

	assert.Equal(t, []string{"b.go", "a.go"}, k.Editors.OpenEditors())
	active, ok := k.Editors.ActiveEditor()
	require.True(t, ok)
	assert.Equal(t, "a.go", active)

	event.Fire(ctx, k.Events, events.EditorClosedType, events.EditorClosed{File: file("a.go")})
	event.Fire(ctx, k.Events, events.EditorClosedType, events.EditorClosed{File: file("b.go")})
	_, ok = k.Editors.ActiveEditor()
	assert.False(t, ok)
}

type fixedEditors struct{}

func (fixedEditors) OpenEditors() []string        { return []string{"x"} }
func (fixedEditors) ActiveEditor() (string, bool) { return "x", true }

func TestHostSuppliedCapabilities(t *testing.T) {
	app := NewStaticApp(
		User{ID: "u1", Name: "Ada"},
		"ws-1",
		Project{Name: "demo", Path: "/projects/demo"},
		map[string]string{"api": "http://localhost:8080"},
	)
	k := newTestKernel(t, WithAppContext(app), WithEditorManager(fixedEditors{}))
	api := k.API()

	assert.Equal(t, "Ada", api.App.CurrentUser().Name)
	assert.Equal(t, "ws-1", api.App.WorkspaceID())
	assert.Equal(t, "demo", api.App.Project().Name)
	assert.Equal(t, []string{"x"}, api.Editors.OpenEditors())

	endpoints := api.App.Endpoints()
	endpoints["api"] = "changed"
	assert.Equal(t, "http://localhost:8080", api.App.Endpoints()["api"])
}

func TestDefaultAppContext(t *testing.T) {
	k := newTestKernel(t)
	assert.Equal(t, User{}, k.App.CurrentUser())
	assert.NotNil(t, k.App.Endpoints())
}
