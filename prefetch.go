package querycache

import (
	"context"
	"sync"
	"time"
)

// Prefetcher triggers a prefetch for an item the user has dwelt on for
// delay. Leaving before delay cancels it, so passing over an item costs
// nothing.
type Prefetcher struct {
	delay   time.Duration
	trigger func(ctx context.Context, id string)
	cfg     timerConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	timers map[string]pendingPrefetch
	seq    uint64
	closed bool
}

type pendingPrefetch struct {
	t   Timer
	seq uint64
}

// NewPrefetcher calls trigger(ctx, id) once id has been entered for delay
// without a Leave. ctx ends when the Prefetcher is closed.
func NewPrefetcher(delay time.Duration, trigger func(ctx context.Context, id string), opts ...TimerOption) *Prefetcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Prefetcher{
		delay:   delay,
		trigger: trigger,
		cfg:     newTimerConfig(opts),
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[string]pendingPrefetch),
	}
}

// Enter starts the dwell timer for id. A timer already running for id is
// kept.
func (p *Prefetcher) Enter(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if _, ok := p.timers[id]; ok {
		return
	}
	p.seq++
	seq := p.seq
	p.timers[id] = pendingPrefetch{seq: seq, t: p.cfg.afterFunc(p.delay, func() { p.fire(id, seq) })}
}

// Leave cancels the pending prefetch for id, if any.
func (p *Prefetcher) Leave(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pp, ok := p.timers[id]; ok {
		pp.t.Stop()
		delete(p.timers, id)
	}
}

func (p *Prefetcher) fire(id string, seq uint64) {
	p.mu.Lock()
	pp, ok := p.timers[id]
	if p.closed || !ok || pp.seq != seq {
		p.mu.Unlock()
		return
	}
	delete(p.timers, id)
	p.wg.Add(1)
	p.mu.Unlock()

	defer p.wg.Done()
	p.cfg.logger.Debug("prefetch triggered", Fields{"id": id})
	p.trigger(p.ctx, id)
}

// Pending reports whether a dwell timer is running for id.
func (p *Prefetcher) Pending(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.timers[id]
	return ok
}

// Close stops all timers, cancels running prefetches and waits for them.
func (p *Prefetcher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for id, pp := range p.timers {
		pp.t.Stop()
		delete(p.timers, id)
	}
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
