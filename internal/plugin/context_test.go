package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/extkernel/internal/kernel/dom"
	"github.com/dshills/extkernel/internal/kernel/event"
	"github.com/dshills/extkernel/internal/kernel/event/events"
	"github.com/dshills/extkernel/internal/plugin/security"
)

func TestContextRegistrationsAreScoped(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()
	scope := k.Scopes.CreateScope("ctx")
	pc := NewContext("ctx", k.API(), scope, nil, nil)

	assert.Equal(t, "ctx", pc.Name())
	assert.NotEmpty(t, pc.ID())
	assert.Same(t, scope, pc.Scope())
	assert.Nil(t, pc.Permissions())
	assert.True(t, pc.Can(security.CapabilityApp))

	var stopped []string
	_, err := AddHandler(pc, events.ServerStoppedType, func(_ context.Context, e events.ServerStopped) error {
		stopped = append(stopped, e.Server)
		return nil
	})
	require.NoError(t, err)

	_, err = pc.RegisterIconURL("ctx.url", "icon.png")
	require.NoError(t, err)
	_, err = pc.RegisterIconHTML("ctx.html", "<svg/>")
	require.NoError(t, err)
	_, err = pc.RegisterIconFactory("ctx.factory", func() *dom.Element {
		return dom.NewElement("span")
	})
	require.NoError(t, err)
	_, err = pc.RegisterAction("ctx.action", noUpdate, noPerform)
	require.NoError(t, err)

	assert.Equal(t, 5, scope.Len())

	event.Fire(ctx, k.Events, events.ServerStoppedType, events.ServerStopped{Server: "ls"})
	assert.Equal(t, []string{"ls"}, stopped)

	require.NoError(t, scope.DisposeAll())

	event.Fire(ctx, k.Events, events.ServerStoppedType, events.ServerStopped{Server: "again"})
	assert.Equal(t, []string{"ls"}, stopped)
	assert.False(t, k.Icons.Has("ctx.url"))
	assert.False(t, k.Icons.Has("ctx.html"))
	assert.False(t, k.Icons.Has("ctx.factory"))
	assert.False(t, k.Actions.Has("ctx.action"))
}

func TestContextAfterTeardown(t *testing.T) {
	k := newTestKernel(t)
	scope := k.Scopes.CreateScope("late")
	pc := NewContext("late", k.API(), scope, nil, nil)
	require.NoError(t, scope.DisposeAll())

	_, err := pc.RegisterAction("late.a", noUpdate, noPerform)
	assert.ErrorIs(t, err, ErrNotActive)
	assert.False(t, k.Actions.Has("late.a"), "registration must not outlive the plugin")
}

func TestContextCapabilityDenied(t *testing.T) {
	k := newTestKernel(t)
	checker := security.NewPermissionChecker("none")
	pc := NewContext("none", k.API(), k.Scopes.CreateScope("none"), checker, nil)

	_, err := pc.RegisterIconURL("none.icon", "x.png")
	assert.ErrorIs(t, err, ErrCapabilityDenied)

	_, err = AddHandler(pc, events.EditorOpenedType, func(context.Context, events.EditorOpened) error { return nil })
	assert.ErrorIs(t, err, ErrCapabilityDenied)

	assert.False(t, k.Icons.Has("none.icon"))
	assert.Zero(t, pc.Scope().Len())
}

func TestFuncsNilIsNoop(t *testing.T) {
	var f Funcs
	assert.NoError(t, f.Activate(context.Background(), nil))
	assert.NoError(t, f.Deactivate(context.Background(), nil))
}
