package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the task queue capacity used when none is configured.
const DefaultQueueSize = 1024

// Task is a unit of work run on the loop goroutine.
type Task func(ctx context.Context)

// Loop serializes tasks onto a single goroutine.
type Loop struct {
	queueSize int
	executor  *Executor

	mu      sync.RWMutex // guards queue creation and close
	queue   chan Task
	running atomic.Bool
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc

	// inflight counts goroutines started with Go that have not posted back.
	inflight sync.WaitGroup

	// Stats
	submitted atomic.Uint64
	executed  atomic.Uint64
	dropped   atomic.Uint64
	panicked  atomic.Uint64
}

// loopKey marks contexts handed to tasks running on a particular loop.
type loopKey struct{}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithQueueSize sets the task queue size.
func WithQueueSize(size int) LoopOption {
	return func(l *Loop) {
		if size > 0 {
			l.queueSize = size
		}
	}
}

// WithExecutor sets the executor used to guard tasks.
func WithExecutor(e *Executor) LoopOption {
	return func(l *Loop) {
		if e != nil {
			l.executor = e
		}
	}
}

// NewLoop creates a new, stopped dispatch loop.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		queueSize: DefaultQueueSize,
		executor:  NewExecutor(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the loop goroutine.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return ErrAlreadyRunning
	}

	l.queue = make(chan Task, l.queueSize)
	l.done = make(chan struct{})
	l.ctx, l.cancel = context.WithCancel(context.WithValue(ctx, loopKey{}, l))
	l.running.Store(true)

	go l.run(l.ctx, l.queue, l.done)
	return nil
}

// Stop stops accepting tasks, drains the queue and waits for the loop
// goroutine to exit or ctx to be done.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running.Load() {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.running.Store(false)
	close(l.queue)
	done := l.done
	cancel := l.cancel
	l.mu.Unlock()

	defer cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning returns true if the loop accepts tasks.
func (l *Loop) IsRunning() bool {
	return l.running.Load()
}

// InLoop reports whether ctx was handed to a task by this loop.
func (l *Loop) InLoop(ctx context.Context) bool {
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}

// Submit queues task without waiting for it to run.
func (l *Loop) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.running.Load() {
		return ErrNotRunning
	}

	select {
	case l.queue <- task:
		l.submitted.Add(1)
		return nil
	default:
		l.dropped.Add(1)
		return ErrQueueFull
	}
}

// Do runs task on the loop and waits for it to finish. Called from a task
// already running on this loop, it runs task inline instead of deadlocking.
func (l *Loop) Do(ctx context.Context, task Task) error {
	if task == nil {
		return ErrNilTask
	}
	if l.InLoop(ctx) {
		l.execute(ctx, task)
		return nil
	}

	finished := make(chan struct{})
	err := l.Submit(func(loopCtx context.Context) {
		defer close(finished)
		task(loopCtx)
	})
	if err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go runs work on its own goroutine and posts then back onto the loop with
// work's result. It is how tasks offload slow work without blocking the loop.
func (l *Loop) Go(work func(ctx context.Context) error, then func(ctx context.Context, err error)) {
	l.mu.RLock()
	base := l.ctx
	l.mu.RUnlock()
	if base == nil {
		base = context.Background()
	}

	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()

		var err error
		callErr := l.executor.Call(base, "async", "work", func() error {
			err = work(base)
			return nil
		})
		if callErr != nil {
			err = callErr
		}
		if then == nil {
			return
		}
		if submitErr := l.Submit(func(ctx context.Context) { then(ctx, err) }); submitErr != nil {
			l.executor.Logger().Warn("dropping async continuation", slog.Any("error", submitErr))
		}
	}()
}

// Wait blocks until every goroutine started with Go has finished.
func (l *Loop) Wait() {
	l.inflight.Wait()
}

// Stats returns loop statistics.
func (l *Loop) Stats() LoopStats {
	l.mu.RLock()
	depth := 0
	if l.queue != nil {
		depth = len(l.queue)
	}
	l.mu.RUnlock()

	return LoopStats{
		Submitted:  l.submitted.Load(),
		Executed:   l.executed.Load(),
		Dropped:    l.dropped.Load(),
		Panicked:   l.panicked.Load(),
		QueueDepth: depth,
	}
}

// LoopStats contains statistics for a dispatch loop.
type LoopStats struct {
	Submitted  uint64
	Executed   uint64
	Dropped    uint64
	Panicked   uint64
	QueueDepth int
}

func (l *Loop) run(ctx context.Context, queue <-chan Task, done chan<- struct{}) {
	defer close(done)

	for task := range queue {
		l.execute(ctx, task)
	}
}

func (l *Loop) execute(ctx context.Context, task Task) {
	l.executed.Add(1)
	err := l.executor.Run(ctx, "task", "loop", func() { task(ctx) })
	if err != nil {
		l.panicked.Add(1)
	}
}
