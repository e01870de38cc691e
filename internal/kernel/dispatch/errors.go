package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrAlreadyRunning is returned when Start is called on a running loop.
	ErrAlreadyRunning = errors.New("dispatch loop is already running")

	// ErrNotRunning is returned when tasks are submitted to a stopped loop.
	ErrNotRunning = errors.New("dispatch loop is not running")

	// ErrQueueFull is returned when the task queue is at capacity.
	ErrQueueFull = errors.New("dispatch queue is full")

	// ErrNilTask is returned when a nil task is submitted.
	ErrNilTask = errors.New("task cannot be nil")
)
