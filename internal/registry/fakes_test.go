package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dyluth/vista/pkg/views"
)

type call struct {
	method string
	arg    any
}

type fakeView struct {
	key   views.Key
	owner *fakeMultiView

	mu    sync.Mutex
	calls []call
	fail  error
}

func (v *fakeView) Key() views.Key { return v.key }

func (v *fakeView) SetModel(_ context.Context, m views.Model) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, call{"setModel", m})
	return v.fail
}

func (v *fakeView) UpdateModel(_ context.Context, d views.Delta) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, call{"updateModel", d})
	return v.fail
}

func (v *fakeView) Dispose() {
	v.owner.reg.AcceptCloseView(v)
}

func (v *fakeView) recorded() []call {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]call(nil), v.calls...)
}

type fakeMultiView struct {
	id     string
	docURI string
	reg    *Registry

	mu       sync.Mutex
	children map[views.Key]*fakeView
}

func newFakeMultiView(reg *Registry, id, docURI string) *fakeMultiView {
	return &fakeMultiView{id: id, docURI: docURI, reg: reg, children: make(map[views.Key]*fakeView)}
}

func (m *fakeMultiView) ID() string     { return m.id }
func (m *fakeMultiView) DocURI() string { return m.docURI }

func (m *fakeMultiView) HasChild(key views.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.children[key]
	return ok
}

func (m *fakeMultiView) Child(key views.Key) View {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.children[key]; ok {
		return v
	}
	return nil
}

func (m *fakeMultiView) Children() []View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]View, 0, len(m.children))
	for _, v := range m.children {
		out = append(out, v)
	}
	return out
}

func (m *fakeMultiView) AddChild(ctx context.Context, key views.Key, initial views.Model) (View, error) {
	m.mu.Lock()
	if _, ok := m.children[key]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateChild, key)
	}
	v := &fakeView{key: key, owner: m}
	m.children[key] = v
	m.mu.Unlock()

	if initial != nil {
		_ = v.SetModel(ctx, initial)
	}
	m.reg.AcceptOpenView(v, initial)
	return v, nil
}

func (m *fakeMultiView) RemoveChild(key views.Key) View {
	m.mu.Lock()
	v, ok := m.children[key]
	delete(m.children, key)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	v.Dispose()
	return v
}

func (m *fakeMultiView) Dispose() {
	for _, v := range m.Children() {
		m.RemoveChild(v.Key())
	}
	m.reg.AcceptCloseMultiView(m)
}

type fakeFactory struct {
	reg     *Registry
	created atomic.Int32
	started chan struct{}
	release chan struct{}
	err     error
}

func (f *fakeFactory) Create(_ context.Context, docURI string) (MultiView, error) {
	n := f.created.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return newFakeMultiView(f.reg, fmt.Sprintf("mv-%d", n), docURI), nil
}

var errBoom = errors.New("boom")
