package event

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/extkernel/internal/ctxlog"
	"github.com/dshills/extkernel/internal/kernel/dispatch"
	"github.com/dshills/extkernel/internal/kernel/disposable"
	kerrors "github.com/dshills/extkernel/internal/kernel/errors"
)

type opened struct{ File string }

type saved struct{ File string }

func newTestBus() Bus {
	return NewBus(WithExecutor(dispatch.NewExecutor(dispatch.WithLogger(ctxlog.Discard()))))
}

func TestFireReachesOnlyMatchingToken(t *testing.T) {
	b := newTestBus()
	openedT := NewType[opened]("opened")
	savedT := NewType[saved]("saved")

	var order []string
	for _, name := range []string{"h1", "h2", "h3"} {
		_, err := AddHandler(b, openedT, func(_ context.Context, e opened) error {
			order = append(order, name+":"+e.File)
			return nil
		})
		require.NoError(t, err)
	}
	_, err := AddHandler(b, savedT, func(context.Context, saved) error {
		order = append(order, "saved")
		return nil
	})
	require.NoError(t, err)

	res := Fire(context.Background(), b, openedT, opened{File: "a.go"})

	assert.Equal(t, []string{"h1:a.go", "h2:a.go", "h3:a.go"}, order)
	assert.Equal(t, 3, res.Handlers)
	assert.NoError(t, res.Err())
}

func TestTokensWithSamePayloadDoNotCollide(t *testing.T) {
	b := newTestBus()
	first := NewType[opened]("opened")
	second := NewType[opened]("opened")

	calls := 0
	_, err := AddHandler(b, first, func(context.Context, opened) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	res := Fire(context.Background(), b, second, opened{})
	assert.Equal(t, 0, res.Handlers)
	assert.Equal(t, 0, calls)
}

func TestHandlerAddedDuringFireMissesEvent(t *testing.T) {
	b := newTestBus()
	typ := NewType[opened]("opened")

	var lateCalls int
	_, err := AddHandler(b, typ, func(context.Context, opened) error {
		_, err := AddHandler(b, typ, func(context.Context, opened) error {
			lateCalls++
			return nil
		})
		return err
	})
	require.NoError(t, err)

	Fire(context.Background(), b, typ, opened{})
	assert.Equal(t, 0, lateCalls)
	assert.Equal(t, 2, b.Handlers(typ))

	Fire(context.Background(), b, typ, opened{})
	assert.Equal(t, 1, lateCalls)
}

func TestHandlerDisposedDuringFireIsSkipped(t *testing.T) {
	b := newTestBus()
	typ := NewType[opened]("opened")

	var second disposable.Disposable
	var secondCalls int
	_, err := AddHandler(b, typ, func(context.Context, opened) error {
		return second.Dispose()
	})
	require.NoError(t, err)
	second, err = AddHandler(b, typ, func(context.Context, opened) error {
		secondCalls++
		return nil
	})
	require.NoError(t, err)

	res := Fire(context.Background(), b, typ, opened{})
	assert.Equal(t, 0, secondCalls)
	assert.Equal(t, 1, res.Handlers)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, b.Handlers(typ))
}

func TestFailingHandlersAreIsolated(t *testing.T) {
	b := newTestBus()
	typ := NewType[opened]("opened")
	cause := errors.New("bad handler")

	var ran []int
	_, err := AddHandler(b, typ, func(context.Context, opened) error {
		ran = append(ran, 1)
		return cause
	})
	require.NoError(t, err)
	_, err = AddHandler(b, typ, func(context.Context, opened) error {
		ran = append(ran, 2)
		panic("handler exploded")
	})
	require.NoError(t, err)
	_, err = AddHandler(b, typ, func(context.Context, opened) error {
		ran = append(ran, 3)
		return nil
	})
	require.NoError(t, err)

	var res Result
	assert.NotPanics(t, func() {
		res = Fire(context.Background(), b, typ, opened{})
	})

	assert.Equal(t, []int{1, 2, 3}, ran)
	assert.Equal(t, 3, res.Handlers)
	assert.Equal(t, 2, res.Failed())
	assert.ErrorIs(t, res.Err(), cause)
	assert.ErrorIs(t, res.Err(), kerrors.ErrCallbackFailure)

	stats := b.Stats()
	assert.Equal(t, uint64(2), stats.HandlerFailures)
	assert.Equal(t, uint64(1), stats.HandlerPanics)
}

func TestPublishPayloadMismatch(t *testing.T) {
	b := newTestBus()
	typ := NewType[opened]("opened")
	called := false
	_, err := b.Subscribe(typ, func(context.Context, any) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	_, err = b.Publish(context.Background(), typ, saved{})
	assert.ErrorIs(t, err, kerrors.ErrPayloadMismatch)
	assert.False(t, called)
	assert.Equal(t, uint64(1), b.Stats().Rejected)
	assert.Equal(t, uint64(0), b.Stats().EventsFired)
}

func TestDisposeRemovesHandler(t *testing.T) {
	b := newTestBus()
	typ := NewType[opened]("opened")
	calls := 0
	d, err := AddHandler(b, typ, func(context.Context, opened) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	Fire(context.Background(), b, typ, opened{})
	require.NoError(t, d.Dispose())
	require.NoError(t, d.Dispose())
	Fire(context.Background(), b, typ, opened{})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.Handlers(typ))
	assert.Equal(t, 0, b.Stats().ActiveSubscribers)
}

func TestSubscribeValidation(t *testing.T) {
	b := newTestBus()
	typ := NewType[opened]("opened")

	_, err := b.Subscribe(nil, func(context.Context, any) error { return nil })
	assert.ErrorIs(t, err, kerrors.ErrInvalidArgument)
	_, err = b.Subscribe(typ, nil)
	assert.ErrorIs(t, err, kerrors.ErrInvalidArgument)
	_, err = AddHandler[opened](b, typ, nil)
	assert.ErrorIs(t, err, kerrors.ErrInvalidArgument)

	res := Fire[opened](context.Background(), b, nil, opened{})
	assert.ErrorIs(t, res.Err(), kerrors.ErrInvalidArgument)
}

func TestInterfacePayload(t *testing.T) {
	b := newTestBus()
	typ := NewType[error]("failure")

	var got []error
	_, err := AddHandler(b, typ, func(_ context.Context, e error) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)

	cause := errors.New("x")
	Fire(context.Background(), b, typ, cause)
	Fire(context.Background(), b, typ, nil)

	assert.Equal(t, []error{cause, nil}, got)
}
