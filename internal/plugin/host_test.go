package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/extkernel/internal/ctxlog"
	"github.com/dshills/extkernel/internal/kernel"
	"github.com/dshills/extkernel/internal/kernel/action"
	"github.com/dshills/extkernel/internal/kernel/disposable"
	kerrors "github.com/dshills/extkernel/internal/kernel/errors"
	"github.com/dshills/extkernel/internal/kernel/part"
	"github.com/dshills/extkernel/internal/plugin/security"
)

func newTestKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	k, err := kernel.New(kernel.WithLogger(ctxlog.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k
}

func noUpdate(context.Context, *action.State) {}

func noPerform(context.Context, *action.State) error { return nil }

// recorder is a Plugin that registers one action and records its calls.
type recorder struct {
	actionID      string
	activateErr   error
	deactivateErr error
	loadErr       error

	loads, activations, deactivations, closes int
}

func (r *recorder) Load(context.Context) error {
	r.loads++
	return r.loadErr
}

func (r *recorder) Activate(_ context.Context, pc *Context) error {
	r.activations++
	if r.actionID != "" {
		if _, err := pc.RegisterAction(r.actionID, noUpdate, noPerform); err != nil {
			return err
		}
	}
	return r.activateErr
}

func (r *recorder) Deactivate(context.Context, *Context) error {
	r.deactivations++
	return r.deactivateErr
}

func (r *recorder) Close() error {
	r.closes++
	return nil
}

func TestNewHostValidation(t *testing.T) {
	k := newTestKernel(t)

	_, err := NewHost("x", nil, k)
	assert.ErrorIs(t, err, ErrNilPlugin)

	_, err = NewHost("", Funcs{}, k)
	assert.ErrorIs(t, err, ErrInvalidPlugin)

	_, err = NewHost("x", Funcs{}, nil)
	assert.ErrorIs(t, err, ErrInvalidPlugin)

	h, err := NewHost("x", Funcs{}, k)
	require.NoError(t, err)
	assert.Equal(t, "x", h.Name())
	assert.Equal(t, StateUnloaded, h.State())
	assert.Nil(t, h.Manifest())
	assert.Nil(t, h.Context())
}

func TestHostLifecycle(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()
	p := &recorder{actionID: "rec.run"}

	h, err := NewHost("rec", p, k)
	require.NoError(t, err)

	require.NoError(t, h.Load(ctx))
	assert.Equal(t, StateLoaded, h.State())
	assert.Equal(t, 1, p.loads)
	assert.ErrorIs(t, h.Load(ctx), ErrAlreadyLoaded)

	require.NoError(t, h.Activate(ctx))
	assert.Equal(t, StateActive, h.State())
	assert.True(t, k.Actions.Has("rec.run"))
	require.NotNil(t, h.Context())
	assert.Equal(t, 1, h.Stats().Registrations)

	assert.ErrorIs(t, h.Activate(ctx), ErrNotLoaded)

	require.NoError(t, h.Deactivate(ctx))
	assert.Equal(t, StateLoaded, h.State())
	assert.False(t, k.Actions.Has("rec.run"))
	assert.Equal(t, 1, p.deactivations)
	assert.Nil(t, h.Context())

	// A second activation gets a fresh context.
	require.NoError(t, h.Activate(ctx))
	assert.True(t, k.Actions.Has("rec.run"))
	assert.Equal(t, 2, h.Stats().Activations)

	require.NoError(t, h.Unload(ctx))
	assert.Equal(t, StateUnloaded, h.State())
	assert.False(t, k.Actions.Has("rec.run"))
	assert.Equal(t, 2, p.deactivations)
	assert.Equal(t, 1, p.closes)

	require.NoError(t, h.Unload(ctx))
	assert.Equal(t, 1, p.closes)
}

func TestHostActivateNotLoaded(t *testing.T) {
	h, err := NewHost("x", Funcs{}, newTestKernel(t))
	require.NoError(t, err)

	assert.ErrorIs(t, h.Activate(context.Background()), ErrNotLoaded)
}

func TestHostLoadFailure(t *testing.T) {
	p := &recorder{loadErr: errors.New("bad code")}
	h, err := NewHost("x", p, newTestKernel(t))
	require.NoError(t, err)

	err = h.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, kerrors.ErrCallbackFailure)
	assert.Equal(t, StateError, h.State())
	assert.Equal(t, err, h.Error())

	// Nothing to tear down.
	require.NoError(t, h.Deactivate(context.Background()))
	assert.Equal(t, 0, p.deactivations)
}

func TestHostFailedActivationKeepsScopeUntilDeactivate(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()
	p := &recorder{actionID: "half.done", activateErr: errors.New("boom")}

	h, err := NewHost("half", p, k)
	require.NoError(t, err)
	require.NoError(t, h.Load(ctx))

	err = h.Activate(ctx)
	require.Error(t, err)
	assert.Equal(t, StateError, h.State())
	assert.True(t, h.Stats().HasError)

	// The registration made before the failure stays until teardown.
	assert.True(t, k.Actions.Has("half.done"))

	require.NoError(t, h.Deactivate(ctx))
	assert.False(t, k.Actions.Has("half.done"))
	assert.Equal(t, 1, p.deactivations)
	assert.Equal(t, StateLoaded, h.State())
}

func TestHostActivatePanicIsRecovered(t *testing.T) {
	h, err := NewHost("panicky", Funcs{
		OnActivate: func(context.Context, *Context) error { panic("kaboom") },
	}, newTestKernel(t))
	require.NoError(t, err)
	require.NoError(t, h.Load(context.Background()))

	err = h.Activate(context.Background())

	var cbErr *kerrors.CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.True(t, cbErr.Panicked())
	assert.Equal(t, "activate", cbErr.Kind)
	assert.Equal(t, StateError, h.State())
}

func TestHostTeardownJoinsErrors(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	var leaked disposable.Disposable
	h, err := NewHost("leaky", Funcs{
		OnActivate: func(_ context.Context, pc *Context) error {
			leaked = disposable.Func(func() error { return errors.New("dispose failed") })
			return pc.AddDisposable(leaked)
		},
		OnDeactivate: func(context.Context, *Context) error { return errors.New("deactivate failed") },
	}, k)
	require.NoError(t, err)
	require.NoError(t, h.Load(ctx))
	require.NoError(t, h.Activate(ctx))

	err = h.Deactivate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deactivate failed")
	assert.Contains(t, err.Error(), "dispose failed")
	assert.Equal(t, StateLoaded, h.State())
}

func TestHostPermissions(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	checker := security.NewPermissionChecker("limited")
	checker.Grant(security.CapabilityParts)

	var actionErr, partErr error
	h, err := NewHost("limited", Funcs{
		OnActivate: func(ctx context.Context, pc *Context) error {
			_, actionErr = pc.RegisterAction("limited.a", noUpdate, noPerform)
			_, partErr = pc.OpenPart(ctx, &part.Panel{Name: "Limited"}, part.Tooling)
			return nil
		},
	}, k, WithHostPermissions(checker))
	require.NoError(t, err)
	require.NoError(t, h.Load(ctx))
	require.NoError(t, h.Activate(ctx))

	assert.ErrorIs(t, actionErr, ErrCapabilityDenied)
	assert.False(t, k.Actions.Has("limited.a"))
	assert.NoError(t, partErr)
	assert.Len(t, k.Parts.Parts(part.Tooling), 1)

	require.NoError(t, h.Unload(ctx))
	assert.Empty(t, k.Parts.Parts(part.Tooling))
}

func TestHostStats(t *testing.T) {
	m := NewManifestMinimal("stats", t.TempDir())
	m.Version = "2.0.0"

	h, err := NewHost("stats", &recorder{actionID: "stats.a"}, newTestKernel(t), WithHostManifest(m))
	require.NoError(t, err)
	require.NoError(t, h.Load(context.Background()))
	require.NoError(t, h.Activate(context.Background()))

	assert.Equal(t, HostStats{
		Name:          "stats",
		Version:       "2.0.0",
		State:         StateActive,
		Registrations: 1,
		Activations:   1,
	}, h.Stats())
}

func TestHostReloadRestoresActivation(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()
	p := &recorder{actionID: "re.a"}

	h, err := NewHost("re", p, k)
	require.NoError(t, err)
	require.NoError(t, h.Load(ctx))
	require.NoError(t, h.Activate(ctx))

	require.NoError(t, h.Reload(ctx))
	assert.Equal(t, StateActive, h.State())
	assert.True(t, k.Actions.Has("re.a"))
	assert.Equal(t, 2, p.loads)
	assert.Equal(t, 1, p.closes)
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateUnloaded:     "unloaded",
		StateLoaded:       "loaded",
		StateActivating:   "activating",
		StateActive:       "active",
		StateDeactivating: "deactivating",
		StateError:        "error",
		State(99):         "unknown",
	}
	for s, want := range tests {
		assert.Equal(t, want, s.String())
	}

	assert.True(t, StateError.HasScope())
	assert.False(t, StateLoaded.HasScope())
}
