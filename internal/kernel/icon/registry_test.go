package icon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/extkernel/internal/ctxlog"
	"github.com/dshills/extkernel/internal/kernel/dispatch"
	"github.com/dshills/extkernel/internal/kernel/dom"
	kerrors "github.com/dshills/extkernel/internal/kernel/errors"
)

func newTestRegistry() *Registry {
	return NewRegistry(WithExecutor(dispatch.NewExecutor(dispatch.WithLogger(ctxlog.Discard()))))
}

func TestURLIconIsFreshEachCall(t *testing.T) {
	r := newTestRegistry()
	_, err := r.RegisterURL("js.plugin.png", "/static/js.png")
	require.NoError(t, err)

	a, ok := r.Image(context.Background(), "js.plugin.png")
	require.True(t, ok)
	b, ok := r.Image(context.Background(), "js.plugin.png")
	require.True(t, ok)

	assert.NotSame(t, a, b)
	assert.Equal(t, `<img src="/static/js.png"/>`, a.String())

	a.SetAttr("src", "corrupted")
	c, _ := r.Image(context.Background(), "js.plugin.png")
	assert.Equal(t, `<img src="/static/js.png"/>`, c.String())
}

func TestHTMLIcon(t *testing.T) {
	r := newTestRegistry()
	_, err := r.RegisterHTML("fa.cog", `<i class="fa fa-cog"></i>`)
	require.NoError(t, err)

	el, ok := r.Image(context.Background(), "fa.cog")
	require.True(t, ok)
	assert.Equal(t, `<span><i class="fa fa-cog"></i></span>`, el.String())

	kind, ok := r.Kind("fa.cog")
	require.True(t, ok)
	assert.Equal(t, KindHTML, kind)
}

func TestFactoryInvokedEachCall(t *testing.T) {
	r := newTestRegistry()
	calls := 0
	_, err := r.RegisterFactory("svg", func() *dom.Element {
		calls++
		return dom.NewElement("svg")
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, ok := r.Image(context.Background(), "svg")
		require.True(t, ok)
	}
	assert.Equal(t, 3, calls)
}

func TestFactorySharedNodeIsCloned(t *testing.T) {
	r := newTestRegistry()
	shared := dom.Img("shared.png")
	_, err := r.RegisterFactory("lazy", func() *dom.Element { return shared })
	require.NoError(t, err)

	first, ok := r.Image(context.Background(), "lazy")
	require.True(t, ok)
	second, ok := r.Image(context.Background(), "lazy")
	require.True(t, ok)

	assert.NotSame(t, first, second)
	assert.Equal(t, first.String(), second.String())
}

func TestFactoryCachedNodesAreNeverShared(t *testing.T) {
	r := newTestRegistry()
	cached := []*dom.Element{dom.Img("a.png"), dom.Img("b.png")}
	calls := 0
	_, err := r.RegisterFactory("cycle", func() *dom.Element {
		el := cached[calls%len(cached)]
		calls++
		return el
	})
	require.NoError(t, err)

	first, ok := r.Image(context.Background(), "cycle")
	require.True(t, ok)
	_, ok = r.Image(context.Background(), "cycle")
	require.True(t, ok)
	third, ok := r.Image(context.Background(), "cycle")
	require.True(t, ok)

	assert.NotSame(t, first, third)
	assert.NotSame(t, cached[0], first)
	first.SetAttr("src", "corrupted")
	assert.Equal(t, `<img src="a.png"/>`, third.String())
	assert.Equal(t, `<img src="a.png"/>`, cached[0].String())
}

func TestFactoryFailureIsAbsent(t *testing.T) {
	r := newTestRegistry()
	_, err := r.RegisterFactory("nil", func() *dom.Element { return nil })
	require.NoError(t, err)
	_, err = r.RegisterFactory("panics", func() *dom.Element { panic("no resource") })
	require.NoError(t, err)

	_, ok := r.Image(context.Background(), "nil")
	assert.False(t, ok)
	assert.NotPanics(t, func() {
		_, ok = r.Image(context.Background(), "panics")
	})
	assert.False(t, ok)
	_, ok = r.Image(context.Background(), "missing")
	assert.False(t, ok)
}

func TestDuplicateIcon(t *testing.T) {
	r := newTestRegistry()
	d, err := r.RegisterURL("logo", "a.png")
	require.NoError(t, err)

	_, err = r.RegisterHTML("logo", "<b/>")
	assert.ErrorIs(t, err, kerrors.ErrDuplicateID)

	require.NoError(t, d.Dispose())
	assert.False(t, r.Has("logo"))

	_, err = r.RegisterHTML("logo", "<b/>")
	require.NoError(t, err)

	// The stale handle must not remove the new registration.
	require.NoError(t, d.Dispose())
	assert.True(t, r.Has("logo"))
	assert.Equal(t, []string{"logo"}, r.IDs())
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRegistry()

	_, err := r.RegisterURL("", "a.png")
	assert.ErrorIs(t, err, kerrors.ErrInvalidArgument)
	_, err = r.RegisterURL("x", "")
	assert.ErrorIs(t, err, kerrors.ErrInvalidArgument)
	_, err = r.RegisterFactory("x", nil)
	assert.ErrorIs(t, err, kerrors.ErrInvalidArgument)
	assert.Equal(t, "factory", KindFactory.String())
}
