// Package throttle limits how often expensive callbacks run.
//
// A Throttler runs its callback at most once per interval. The first call
// after a quiet period runs immediately (leading edge). Calls made while
// the interval has not elapsed, or while the callback is still running,
// are coalesced: the most recent argument is kept and delivered once the
// interval has passed (trailing edge). Callbacks never overlap and are never
// reordered, so a consumer observes arguments in call order with
// intermediate ones possibly dropped.
package throttle

import (
	"sync"
	"time"
)

// DefaultInterval is the spacing used when none is configured.
const DefaultInterval = 500 * time.Millisecond

// Throttler coalesces calls to fn.
// All methods are safe for concurrent use.
type Throttler[T any] struct {
	mu        sync.Mutex
	interval  time.Duration
	fn        func(T)
	lastStart time.Time
	running   bool
	pending   bool
	arg       T
	timer     *time.Timer
	seq       uint64 // invalidates timers scheduled before Stop
	stopped   bool
	idle      *sync.Cond
}

// New creates a Throttler running fn at most once per interval.
// A non-positive interval selects DefaultInterval.
func New[T any](interval time.Duration, fn func(T)) *Throttler[T] {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Throttler[T]{interval: interval, fn: fn}
	t.idle = sync.NewCond(&t.mu)
	return t
}

// Call requests a run with arg. It never blocks on the callback.
func (t *Throttler[T]) Call(arg T) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	t.arg = arg
	t.pending = true
	t.scheduleLocked()
}

func (t *Throttler[T]) scheduleLocked() {
	if t.running || t.timer != nil || !t.pending {
		return
	}

	wait := t.interval - time.Since(t.lastStart)
	if wait <= 0 {
		t.startLocked()
		return
	}

	seq := t.seq
	t.timer = time.AfterFunc(wait, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if seq != t.seq {
			return
		}
		t.timer = nil
		t.startLocked()
	})
}

func (t *Throttler[T]) startLocked() {
	arg := t.arg
	var zero T
	t.arg = zero
	t.pending = false
	t.running = true
	t.lastStart = time.Now()
	go t.run(arg)
}

func (t *Throttler[T]) run(arg T) {
	t.fn(arg)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	if !t.stopped {
		t.scheduleLocked()
	}
	if !t.busyLocked() {
		t.idle.Broadcast()
	}
}

func (t *Throttler[T]) busyLocked() bool {
	return t.running || t.pending || t.timer != nil
}

// Wait blocks until no run is in progress or scheduled.
func (t *Throttler[T]) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.busyLocked() {
		t.idle.Wait()
	}
}

// Stop cancels any pending run. A run already in progress completes.
// Calls after Stop are ignored.
func (t *Throttler[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	t.seq++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
	var zero T
	t.arg = zero
	if !t.running {
		t.idle.Broadcast()
	}
}
