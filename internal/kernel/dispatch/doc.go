// Package dispatch provides the catch boundary every plugin callback runs
// inside, and the single logical dispatch loop the host serializes polling
// ticks, performs and event fires onto.
//
// The Executor converts returned errors and panics into
// *errors.CallbackError values, logs them and records metrics. It never lets
// a panic escape.
//
// The Loop runs submitted tasks one at a time in FIFO order on a dedicated
// goroutine. Long-running work triggered from a task is offloaded with Go,
// whose continuation is posted back onto the loop.
package dispatch
