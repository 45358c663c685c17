// Package multiview implements the registry's MultiView on top of
// presentation surfaces.
//
// A multiview owns the child views of one document on one surface. It
// reports every child it adds or removes to the registry, and reports
// itself closed when it is disposed.
package multiview

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dyluth/vista/internal/registry"
	"github.com/dyluth/vista/pkg/views"
)

// ErrDisposed is returned when adding a child to a disposed multiview.
var ErrDisposed = errors.New("multiview disposed")

// Reporter receives multiview and view lifecycle transitions.
// *registry.Registry implements it.
type Reporter interface {
	AcceptOpenView(view registry.View, model views.Model)
	AcceptCloseView(view registry.View)
	AcceptShowView(view registry.View)
	AcceptHideView(view registry.View)
	AcceptChangeView(view registry.View, change any, model views.Model)
	AcceptOpenMultiView(docURI string, m registry.MultiView)
	AcceptCloseMultiView(m registry.MultiView)
}

// Base keeps the children of a multiview and reports their transitions.
// Concrete multiviews embed it and provide AddChild.
type Base struct {
	id        string
	docURI    string
	reporter  Reporter
	self      registry.MultiView
	onDispose func()

	mu       sync.Mutex
	order    []views.Key
	children map[views.Key]registry.View
	disposed bool
	once     sync.Once
}

func newBase(id, docURI string, reporter Reporter) *Base {
	return &Base{
		id:       id,
		docURI:   docURI,
		reporter: reporter,
		children: make(map[views.Key]registry.View),
	}
}

func (b *Base) ID() string     { return b.id }
func (b *Base) DocURI() string { return b.docURI }

func (b *Base) HasChild(key views.Key) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.children[key]
	return ok
}

func (b *Base) Child(key views.Key) registry.View {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.children[key]
}

// Children returns the children in the order they were added.
func (b *Base) Children() []registry.View {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]registry.View, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.children[key])
	}
	return out
}

// add inserts v, sends it the initial model if there is one and reports it
// opened. A child whose initial model cannot be delivered is dropped again.
func (b *Base) add(ctx context.Context, v registry.View, initial views.Model) (registry.View, error) {
	key := v.Key()

	b.mu.Lock()
	if b.disposed {
		b.mu.Unlock()
		return nil, ErrDisposed
	}
	if _, ok := b.children[key]; ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", registry.ErrDuplicateChild, key)
	}
	b.children[key] = v
	b.order = append(b.order, key)
	b.mu.Unlock()

	if initial != nil {
		if err := v.SetModel(ctx, initial); err != nil {
			b.remove(key)
			return nil, fmt.Errorf("failed to send initial model to %s: %w", key, err)
		}
	}
	b.reporter.AcceptOpenView(v, initial)
	return v, nil
}

func (b *Base) remove(key views.Key) registry.View {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.children[key]
	if !ok {
		return nil
	}
	delete(b.children, key)
	b.order = slices.DeleteFunc(b.order, func(k views.Key) bool { return k == key })
	return v
}

// RemoveChild removes the child with key and reports it closed. It returns
// nil if there is no such child.
func (b *Base) RemoveChild(key views.Key) registry.View {
	v := b.remove(key)
	if v == nil {
		return nil
	}
	b.reporter.AcceptCloseView(v)
	return v
}

// Dispose removes every child and reports the multiview closed. Only the
// first call has any effect.
func (b *Base) Dispose() {
	b.once.Do(func() {
		b.mu.Lock()
		b.disposed = true
		keys := slices.Clone(b.order)
		b.mu.Unlock()

		for _, key := range keys {
			b.RemoveChild(key)
		}
		b.reporter.AcceptCloseMultiView(b.self)
		if b.onDispose != nil {
			b.onDispose()
		}
	})
}

// Disposed reports whether Dispose has been called.
func (b *Base) Disposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}
