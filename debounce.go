package querycache

import (
	"sync"
	"time"
)

// Debouncer holds back a changing value until it has been quiet for a
// while, then commits it. Every Push restarts the quiet period, so a burst
// of pushes commits only its last value, once.
type Debouncer[T any] struct {
	quiet  time.Duration
	commit func(T)
	cfg    timerConfig

	mu         sync.Mutex
	pending    T
	hasPending bool
	timer      Timer
	seq        uint64
	committed  T
	hasValue   bool
	closed     bool
}

// NewDebouncer calls commit with the settled value after quiet. commit
// runs on the timer goroutine (or the caller of Flush), never under the
// debouncer's lock.
func NewDebouncer[T any](quiet time.Duration, commit func(T), opts ...TimerOption) *Debouncer[T] {
	return &Debouncer[T]{quiet: quiet, commit: commit, cfg: newTimerConfig(opts)}
}

// Push records v as the latest value and restarts the quiet period.
func (d *Debouncer[T]) Push(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending, d.hasPending = v, true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.cfg.afterFunc(d.quiet, func() { d.fire(seq) })
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	if d.closed || seq != d.seq || !d.hasPending {
		// a later Push, Cancel or Flush owns the value now
		d.mu.Unlock()
		return
	}
	v := d.take()
	d.mu.Unlock()
	d.deliver(v)
}

// take moves the pending value to committed. Caller holds d.mu.
func (d *Debouncer[T]) take() T {
	v := d.pending
	var zero T
	d.pending, d.hasPending = zero, false
	d.committed, d.hasValue = v, true
	d.timer = nil
	d.seq++
	return v
}

func (d *Debouncer[T]) deliver(v T) {
	if d.commit != nil {
		d.commit(v)
	}
}

// Flush commits the pending value now. It reports whether there was one.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if d.closed || !d.hasPending {
		d.mu.Unlock()
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	v := d.take()
	d.mu.Unlock()
	d.deliver(v)
	return true
}

// Cancel drops the pending value; the last committed value stays.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	var zero T
	d.pending, d.hasPending = zero, false
	d.seq++
}

// Committed returns the last committed value.
func (d *Debouncer[T]) Committed() (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.committed, d.hasValue
}

// Pending reports whether a value is waiting for its quiet period.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasPending
}

// Close cancels any pending value; later pushes are ignored.
func (d *Debouncer[T]) Close() {
	d.Cancel()
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}
