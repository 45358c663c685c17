// Package event provides typed publish/subscribe primitives.
//
// Subscribing returns a Disposable; disposing it removes the listener.
// Owners collect the disposables they create in a Disposables bag and
// release them together when they are themselves disposed.
package event

import "sync"

// Disposable releases a resource such as a listener registration.
// Dispose must be safe to call more than once.
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a function to Disposable. The function runs at most once.
func DisposeFunc(fn func()) Disposable {
	return &onceDisposable{fn: fn}
}

type onceDisposable struct {
	once sync.Once
	fn   func()
}

func (d *onceDisposable) Dispose() {
	d.once.Do(d.fn)
}

// Disposables collects disposables and releases them in reverse order of
// addition. The zero value is ready to use.
type Disposables struct {
	mu    sync.Mutex
	items []Disposable
}

// Add appends disposables to the bag.
func (d *Disposables) Add(items ...Disposable) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = append(d.items, items...)
}

// Len returns the number of disposables held.
func (d *Disposables) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// Dispose releases every held disposable and empties the bag.
func (d *Disposables) Dispose() {
	d.mu.Lock()
	items := d.items
	d.items = nil
	d.mu.Unlock()

	for i := len(items) - 1; i >= 0; i-- {
		items[i].Dispose()
	}
}
