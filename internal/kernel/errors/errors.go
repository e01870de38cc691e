// Package errors defines the error taxonomy shared by the kernel registries.
package errors

import (
	"errors"
	"fmt"
)

// Registration and lifecycle errors.
var (
	// ErrDuplicateID is returned when an id is already registered.
	ErrDuplicateID = errors.New("id already registered")

	// ErrNotRegistered is returned when an id has no live registration.
	ErrNotRegistered = errors.New("not registered")

	// ErrInvalidArgument is returned for empty ids and nil callbacks.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUseAfterTeardown is returned when adding to a disposed scope.
	ErrUseAfterTeardown = errors.New("scope already disposed")

	// ErrNilDisposable is returned when a nil disposable is added to a scope.
	ErrNilDisposable = errors.New("disposable is nil")

	// ErrDisabled is returned when performing an action whose update disabled it.
	ErrDisabled = errors.New("action disabled")

	// ErrPayloadMismatch is returned when an event payload does not match its token.
	ErrPayloadMismatch = errors.New("event payload does not match type")
)

// Part lifecycle errors.
var (
	// ErrInvalidStack is returned for a stack outside the fixed set.
	ErrInvalidStack = errors.New("invalid part stack")

	// ErrPartRemoved is returned for any operation on a removed part.
	ErrPartRemoved = errors.New("part removed")

	// ErrNotOpened is returned when activating or hiding a part that was never opened.
	ErrNotOpened = errors.New("part not opened")

	// ErrInvalidPart is returned for nil or non-comparable parts.
	ErrInvalidPart = errors.New("invalid part")
)

// ErrCallbackFailure matches every *CallbackError.
var ErrCallbackFailure = errors.New("callback failed")

// CallbackError wraps a failure raised by plugin-supplied code.
type CallbackError struct {
	// Kind names the callback family ("update", "perform", "handler", "dispose", ...).
	Kind string

	// ID identifies the registration the callback belongs to.
	ID string

	// Err is the returned error, or nil if the callback panicked.
	Err error

	// Panic is the recovered panic value, if any.
	Panic any

	// Stack is the stack trace captured at the panic.
	Stack []byte
}

// Error implements the error interface.
func (e *CallbackError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("%s %s panicked: %v", e.Kind, e.ID, e.Panic)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Kind, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallbackError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match CallbackError with ErrCallbackFailure.
func (e *CallbackError) Is(target error) bool {
	return target == ErrCallbackFailure
}

// Panicked reports whether the callback panicked rather than returning an error.
func (e *CallbackError) Panicked() bool {
	return e.Panic != nil
}

// IDError attaches the offending id to a registry error.
type IDError struct {
	Op  string
	ID  string
	Err error
}

// Error implements the error interface.
func (e *IDError) Error() string {
	return e.Op + " " + e.ID + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *IDError) Unwrap() error {
	return e.Err
}

// NewIDError creates an IDError.
func NewIDError(op, id string, err error) *IDError {
	return &IDError{Op: op, ID: id, Err: err}
}
