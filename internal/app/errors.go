package app

import "errors"

// Application errors.
var (
	// ErrAlreadyRunning indicates the application is already running.
	ErrAlreadyRunning = errors.New("application already running")

	// ErrNotRunning indicates the application is not running.
	ErrNotRunning = errors.New("application not running")

	// ErrShutdownTimeout indicates shutdown did not finish in time.
	ErrShutdownTimeout = errors.New("shutdown timed out")

	// ErrMetricsDisabled is returned by CollectMetrics when metrics are off.
	ErrMetricsDisabled = errors.New("metrics disabled")
)

// InitError represents an initialization error.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
