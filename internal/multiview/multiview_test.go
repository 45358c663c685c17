package multiview

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dyluth/vista/internal/registry"
	"github.com/dyluth/vista/internal/surface"
	"github.com/dyluth/vista/pkg/protocol"
	"github.com/dyluth/vista/pkg/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = "file:///repo/app.sysl"

var key = views.Key{DocURI: doc, PluginID: "p", ViewID: "a"}

type events struct {
	mu      sync.Mutex
	opened  []views.Key
	closed  []views.Key
	shown   []views.Key
	hidden  []views.Key
	changes []registry.ChangeEvent
}

func (e *events) list(which *[]views.Key) []views.Key {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]views.Key(nil), *which...)
}

func setup(t *testing.T, opts ...Option) (*registry.Registry, *SurfaceFactory, *surface.MemoryOpener, *events) {
	t.Helper()
	reg := registry.New()
	opener := &surface.MemoryOpener{}
	f := NewSurfaceFactory(opener, reg, opts...)
	reg.SetMultiViewFactory(f)
	t.Cleanup(f.Close)

	ev := &events{}
	record := func(dst *[]views.Key) func(registry.ViewEvent) {
		return func(e registry.ViewEvent) {
			ev.mu.Lock()
			defer ev.mu.Unlock()
			*dst = append(*dst, e.Key)
		}
	}
	reg.OnDidOpenView(record(&ev.opened))
	reg.OnDidCloseView(record(&ev.closed))
	reg.OnDidShowView(record(&ev.shown))
	reg.OnDidHideView(record(&ev.hidden))
	reg.OnDidChangeView(func(e registry.ChangeEvent) {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		ev.changes = append(ev.changes, e)
	})
	return reg, f, opener, ev
}

func onlySurface(t *testing.T, opener *surface.MemoryOpener) *surface.Memory {
	t.Helper()
	surfaces := opener.Surfaces()
	require.Len(t, surfaces, 1)
	return surfaces[0]
}

func TestOpenViewRendersInitialModel(t *testing.T) {
	reg, _, opener, ev := setup(t)

	opened, err := reg.OpenView(context.Background(), key, views.Model{"nodes": []any{"n1"}})
	require.NoError(t, err)
	require.Len(t, opened, 1)
	assert.Equal(t, key, opened[0].Key())
	assert.Len(t, reg.Views(key), 1)
	assert.Equal(t, []views.Key{key}, ev.list(&ev.opened))

	sent := onlySurface(t, opener).Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, protocol.SurfaceRender, sent[0].Type)
	assert.Equal(t, key, sent[0].ViewKey())
	assert.Equal(t, []any{"n1"}, sent[0].Model["nodes"])
}

func TestOpenViewTwiceKeepsOneChild(t *testing.T) {
	reg, _, opener, _ := setup(t)
	ctx := context.Background()

	_, err := reg.OpenView(ctx, key, nil)
	require.NoError(t, err)
	again, err := reg.OpenView(ctx, key, nil)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, reg.Views(key), 1)
	assert.Len(t, opener.Surfaces(), 1)
}

func TestAddChildDuplicate(t *testing.T) {
	reg, _, _, _ := setup(t)
	ctx := context.Background()
	_, err := reg.OpenView(ctx, key, nil)
	require.NoError(t, err)

	m := reg.MultiViews(doc)[0]
	_, err = m.AddChild(ctx, key, nil)
	assert.ErrorIs(t, err, registry.ErrDuplicateChild)
}

func TestEditsReachSurface(t *testing.T) {
	reg, _, opener, _ := setup(t)
	ctx := context.Background()
	_, err := reg.OpenView(ctx, key, nil)
	require.NoError(t, err)

	edits := views.NewEdits().
		Update(key, views.Delta{"added": "n2"}).
		Set(key, views.Model{"nodes": []any{}})
	require.NoError(t, reg.ApplyEdit(ctx, edits.Entries()))

	sent := onlySurface(t, opener).Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, protocol.SurfaceUpdate, sent[0].Type)
	assert.Equal(t, key, sent[0].ViewKey())
	assert.Equal(t, "n2", sent[0].Delta["added"])
	assert.Equal(t, protocol.SurfaceRender, sent[1].Type)
}

func TestSurfaceOpensAndClosesViews(t *testing.T) {
	reg, _, opener, ev := setup(t)
	ctx := context.Background()
	other := views.Key{DocURI: doc, PluginID: "p", ViewID: "b"}

	_, err := reg.OpenView(ctx, key, nil)
	require.NoError(t, err)
	s := onlySurface(t, opener)

	require.NoError(t, s.Inject(protocol.SurfaceMessage{Type: protocol.SurfaceDidOpen, Key: &other}))
	assert.Eventually(t, func() bool { return len(reg.Views(other)) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Inject(protocol.SurfaceMessage{Type: protocol.SurfaceDidClose, Key: &key}))
	assert.Eventually(t, func() bool { return reg.Views(key) == nil }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []views.Key{key, other}, ev.list(&ev.opened))
	assert.Equal(t, []views.Key{key}, ev.list(&ev.closed))
}

func TestSurfaceCloseForUnknownViewIsIgnored(t *testing.T) {
	reg, _, opener, ev := setup(t)
	_, err := reg.OpenView(context.Background(), key, nil)
	require.NoError(t, err)
	s := onlySurface(t, opener)

	unknown := views.Key{DocURI: doc, PluginID: "p", ViewID: "zzz"}
	require.NoError(t, s.Inject(protocol.SurfaceMessage{Type: protocol.SurfaceDidClose, Key: &unknown}))
	require.NoError(t, s.Inject(protocol.SurfaceMessage{Type: protocol.SurfaceDidShow, Key: &key}))

	assert.Eventually(t, func() bool { return len(ev.list(&ev.shown)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, ev.list(&ev.closed))
	assert.Len(t, reg.Views(key), 1)
}

func TestSurfaceChangeShowHide(t *testing.T) {
	reg, _, opener, ev := setup(t)
	_, err := reg.OpenView(context.Background(), key, nil)
	require.NoError(t, err)
	s := onlySurface(t, opener)

	require.NoError(t, s.Inject(protocol.SurfaceMessage{Type: protocol.SurfaceDidHide, Key: &key}))
	require.NoError(t, s.Inject(protocol.SurfaceMessage{Type: protocol.SurfaceDidShow, Key: &key}))
	require.NoError(t, s.Inject(protocol.SurfaceMessage{
		Type:  protocol.SurfaceDidChange,
		Key:   &key,
		Data:  json.RawMessage(`{"moved":"n1"}`),
		Model: views.Model{"nodes": []any{"n1"}},
	}))

	assert.Eventually(t, func() bool {
		ev.mu.Lock()
		defer ev.mu.Unlock()
		return len(ev.changes) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []views.Key{key}, ev.list(&ev.hidden))
	assert.Equal(t, []views.Key{key}, ev.list(&ev.shown))

	ev.mu.Lock()
	defer ev.mu.Unlock()
	assert.Equal(t, key, ev.changes[0].Key)
	assert.Equal(t, map[string]any{"moved": "n1"}, ev.changes[0].Change)
	assert.Equal(t, []any{"n1"}, ev.changes[0].Model["nodes"])
}

func TestSurfaceCloseDisposesMultiView(t *testing.T) {
	reg, _, opener, ev := setup(t)
	_, err := reg.OpenView(context.Background(), key, nil)
	require.NoError(t, err)
	m := reg.MultiViews(doc)[0].(*SurfaceMultiView)

	require.NoError(t, onlySurface(t, opener).Close())

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("multiview did not stop")
	}
	assert.True(t, m.Disposed())
	assert.Nil(t, reg.MultiViews(doc))
	assert.Nil(t, reg.Views(key))
	assert.Equal(t, []views.Key{key}, ev.list(&ev.closed))

	_, err = m.AddChild(context.Background(), key, nil)
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestViewDisposeRemovesChild(t *testing.T) {
	reg, _, _, ev := setup(t)
	opened, err := reg.OpenView(context.Background(), key, nil)
	require.NoError(t, err)

	opened[0].Dispose()
	opened[0].Dispose()

	assert.Nil(t, reg.Views(key))
	assert.Equal(t, []views.Key{key}, ev.list(&ev.closed))
}

type fakeSnapshotter struct {
	mu    sync.Mutex
	saved []surface.Snapshot
}

func (f *fakeSnapshotter) Save(_ context.Context, docURI string, key views.Key, data []byte) (surface.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := surface.Snapshot{ID: "s1", DocURI: docURI, Key: key, Data: data}
	f.saved = append(f.saved, snap)
	return snap, nil
}

func (f *fakeSnapshotter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func TestSurfaceSnapshotIsSaved(t *testing.T) {
	snaps := &fakeSnapshotter{}
	reg, _, opener, _ := setup(t, WithSnapshotter(snaps))
	_, err := reg.OpenView(context.Background(), key, nil)
	require.NoError(t, err)

	require.NoError(t, onlySurface(t, opener).Inject(protocol.SurfaceMessage{
		Type: protocol.SurfaceSnapshot,
		Key:  &key,
		Data: json.RawMessage(`"PHN2Zz4="`),
	}))

	assert.Eventually(t, func() bool { return snaps.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, doc, snaps.saved[0].DocURI)
	assert.Equal(t, key, snaps.saved[0].Key)
}

type failingOpener struct{}

func (failingOpener) Open(context.Context, string) (surface.Surface, error) {
	return nil, errors.New("no renderer")
}

func TestCreateFailsWhenSurfaceCannotOpen(t *testing.T) {
	reg := registry.New()
	reg.SetMultiViewFactory(NewSurfaceFactory(failingOpener{}, reg))

	_, err := reg.OpenView(context.Background(), key, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open surface")
	assert.Nil(t, reg.MultiViews(doc))
}

func TestAdoptRegistersMultiView(t *testing.T) {
	reg, f, _, _ := setup(t)
	s := surface.NewMemory(doc)

	m := f.Adopt(s)
	assert.Equal(t, []registry.MultiView{m}, reg.MultiViews(doc))

	opened, err := reg.OpenView(context.Background(), key, views.Model{})
	require.NoError(t, err)
	assert.Len(t, opened, 1)
	assert.Len(t, s.Sent(), 1)
}
