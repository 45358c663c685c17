package throttle

import (
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Group keeps one Throttler per key, created on first use. Keys typically
// combine an event kind with a document URI so that rapid edits to one
// document never delay work for another.
type Group[T any] struct {
	interval   time.Duration
	fn         func(key string, arg T)
	throttlers cmap.ConcurrentMap[string, *Throttler[T]]

	// retired holds stopped throttlers until Wait has seen them idle.
	mu      sync.Mutex
	retired []*Throttler[T]
}

// NewGroup creates a Group whose throttlers call fn with their key.
func NewGroup[T any](interval time.Duration, fn func(key string, arg T)) *Group[T] {
	return &Group[T]{
		interval:   interval,
		fn:         fn,
		throttlers: cmap.New[*Throttler[T]](),
	}
}

// Call forwards arg to the throttler for key.
func (g *Group[T]) Call(key string, arg T) {
	th := g.throttlers.Upsert(key, nil, func(exist bool, inMap, _ *Throttler[T]) *Throttler[T] {
		if exist {
			return inMap
		}
		return New(g.interval, func(a T) { g.fn(key, a) })
	})
	th.Call(arg)
}

// Len returns the number of keys seen so far.
func (g *Group[T]) Len() int {
	return g.throttlers.Count()
}

// Wait blocks until every throttler is idle, including throttlers dropped
// by Stop whose last run is still in progress.
func (g *Group[T]) Wait() {
	g.mu.Lock()
	retired := g.retired
	g.retired = nil
	g.mu.Unlock()

	for _, th := range retired {
		th.Wait()
	}
	for _, th := range g.throttlers.Items() {
		th.Wait()
	}
}

// Stop stops every throttler and forgets them. Runs already in progress
// complete; Wait blocks until they have. Later calls start new throttlers.
func (g *Group[T]) Stop() {
	items := g.throttlers.Items()
	g.throttlers.Clear()

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, th := range items {
		th.Stop()
		g.retired = append(g.retired, th)
	}
}
