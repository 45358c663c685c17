package event

import (
	"sync"
	"sync/atomic"
)

// Emitter delivers events of one kind to its listeners.
//
// Fire calls every listener synchronously, in subscription order, on the
// caller's goroutine. Listeners added or removed during a Fire take effect
// from the next Fire. Emitters are safe for concurrent use.
type Emitter[E any] struct {
	mu        sync.RWMutex
	nextID    atomic.Uint64
	listeners []listener[E]
}

type listener[E any] struct {
	id uint64
	fn func(E)
}

// Subscribe registers fn and returns a Disposable that unregisters it.
func (e *Emitter[E]) Subscribe(fn func(E)) Disposable {
	id := e.nextID.Add(1)

	e.mu.Lock()
	e.listeners = append(e.listeners, listener[E]{id: id, fn: fn})
	e.mu.Unlock()

	return DisposeFunc(func() { e.remove(id) })
}

func (e *Emitter[E]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, l := range e.listeners {
		if l.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Fire delivers ev to every current listener.
func (e *Emitter[E]) Fire(ev E) {
	e.mu.RLock()
	snapshot := e.listeners
	e.mu.RUnlock()

	for _, l := range snapshot {
		l.fn(ev)
	}
}

// Len returns the number of registered listeners.
func (e *Emitter[E]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
