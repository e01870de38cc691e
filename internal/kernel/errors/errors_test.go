package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbackError(t *testing.T) {
	cause := errors.New("boom")
	err := &CallbackError{Kind: "perform", ID: "a1", Err: cause}

	assert.Equal(t, "perform a1 failed: boom", err.Error())
	assert.ErrorIs(t, err, ErrCallbackFailure)
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.Panicked())
}

func TestCallbackErrorPanic(t *testing.T) {
	err := &CallbackError{Kind: "handler", ID: "sub-1", Panic: "nil map"}

	assert.Equal(t, "handler sub-1 panicked: nil map", err.Error())
	assert.True(t, err.Panicked())
	assert.Nil(t, err.Unwrap())
}

func TestCallbackErrorWrapped(t *testing.T) {
	err := fmt.Errorf("teardown: %w", &CallbackError{Kind: "dispose", ID: "x"})

	var cbErr *CallbackError
	assert.True(t, errors.As(err, &cbErr))
	assert.Equal(t, "dispose", cbErr.Kind)
	assert.ErrorIs(t, err, ErrCallbackFailure)
}

func TestIDError(t *testing.T) {
	err := NewIDError("register action", "a1", ErrDuplicateID)

	assert.Equal(t, "register action a1: id already registered", err.Error())
	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.NotErrorIs(t, err, ErrNotRegistered)
}
