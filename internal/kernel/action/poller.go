package action

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/extkernel/internal/kernel/dispatch"
)

// DefaultPollInterval is the refresh cadence hosts use for visible actions.
const DefaultPollInterval = 500 * time.Millisecond

// ErrPollerRunning is returned by Start on a running poller.
var ErrPollerRunning = errors.New("poller is already running")

// Scheduler accepts tasks for the dispatch loop. *dispatch.Loop implements it.
type Scheduler interface {
	Submit(task dispatch.Task) error
}

// Poller calls Update for every live action on a fixed cadence. Each action
// is scheduled as its own task, and an action whose previous update is still
// queued is not queued again.
type Poller struct {
	registry  *Registry
	interval  time.Duration
	scheduler Scheduler
	filter    func(id string) bool

	mu      sync.Mutex
	pending map[string]bool
	cancel  context.CancelFunc
	done    chan struct{}

	ticks atomic.Uint64
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the polling cadence.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithScheduler routes updates through s instead of running them inline.
func WithScheduler(s Scheduler) PollerOption {
	return func(p *Poller) {
		p.scheduler = s
	}
}

// WithFilter limits polling to ids for which keep returns true.
func WithFilter(keep func(id string) bool) PollerOption {
	return func(p *Poller) {
		p.filter = keep
	}
}

// NewPoller creates a stopped poller for r.
func NewPoller(r *Registry, opts ...PollerOption) *Poller {
	p := &Poller{
		registry: r,
		interval: DefaultPollInterval,
		pending:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the polling cadence.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Ticks returns the number of completed tick rounds.
func (p *Poller) Ticks() uint64 {
	return p.ticks.Load()
}

// Start begins polling until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrPollerRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, p.done)
	return nil
}

// Stop halts polling and waits for the ticker goroutine to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one polling round. Without a scheduler the updates run inline
// before Tick returns.
func (p *Poller) Tick(ctx context.Context) {
	defer p.ticks.Add(1)

	for _, id := range p.registry.IDs() {
		if p.filter != nil && !p.filter(id) {
			continue
		}
		if p.scheduler == nil {
			p.registry.Update(ctx, id)
			continue
		}
		p.schedule(id)
	}
}

func (p *Poller) schedule(id string) {
	p.mu.Lock()
	if p.pending[id] {
		p.mu.Unlock()
		return
	}
	p.pending[id] = true
	p.mu.Unlock()

	err := p.scheduler.Submit(func(ctx context.Context) {
		p.clear(id)
		p.registry.Update(ctx, id)
	})
	if err != nil {
		p.clear(id)
	}
}

func (p *Poller) clear(id string) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}
