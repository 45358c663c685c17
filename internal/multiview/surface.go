package multiview

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/dyluth/vista/internal/registry"
	"github.com/dyluth/vista/internal/surface"
	"github.com/dyluth/vista/pkg/protocol"
	"github.com/dyluth/vista/pkg/views"
	"github.com/google/uuid"
)

// Snapshotter stores snapshots taken by a surface.
// *surface.SnapshotStore implements it.
type Snapshotter interface {
	Save(ctx context.Context, docURI string, key views.Key, data []byte) (surface.Snapshot, error)
}

// Option configures a SurfaceMultiView.
type Option func(*SurfaceMultiView)

// WithSnapshotter saves view/snapshot messages through s. Without one they
// are logged and dropped.
func WithSnapshotter(s Snapshotter) Option {
	return func(m *SurfaceMultiView) { m.snapshots = s }
}

// SurfaceMultiView hosts the views of one document on a presentation
// surface. Messages from the surface are translated into child and
// registry transitions; when the surface closes the multiview disposes
// itself.
type SurfaceMultiView struct {
	*Base

	surface   surface.Surface
	snapshots Snapshotter

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSurfaceMultiView(s surface.Surface, reporter Reporter, opts ...Option) *SurfaceMultiView {
	ctx, cancel := context.WithCancel(context.Background())
	m := &SurfaceMultiView{
		Base:    newBase(uuid.New().String(), s.DocURI(), reporter),
		surface: s,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.Base.self = m
	m.Base.onDispose = func() {
		cancel()
		if err := s.Close(); err != nil {
			log.Printf("[WARN] Failed to close surface: id=%s error=%v", s.ID(), err)
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Surface returns the surface the multiview draws on.
func (m *SurfaceMultiView) Surface() surface.Surface {
	return m.surface
}

// Done is closed once the multiview has stopped reading its surface.
func (m *SurfaceMultiView) Done() <-chan struct{} {
	return m.done
}

// AddChild creates a SurfaceView for key. See registry.MultiView.
func (m *SurfaceMultiView) AddChild(ctx context.Context, key views.Key, initial views.Model) (registry.View, error) {
	return m.add(ctx, &SurfaceView{key: key, owner: m}, initial)
}

func (m *SurfaceMultiView) start() {
	go m.run()
}

func (m *SurfaceMultiView) run() {
	defer close(m.done)
	for msg := range m.surface.Messages() {
		m.handle(msg)
	}
	log.Printf("[INFO] Surface gone, disposing multiview: id=%s doc=%s", m.id, m.docURI)
	m.Dispose()
}

func (m *SurfaceMultiView) handle(msg protocol.SurfaceMessage) {
	key := msg.ViewKey()
	if key.DocURI == "" {
		key.DocURI = m.docURI
	}
	if key.DocURI != m.docURI {
		log.Printf("[WARN] Ignoring surface message for another document: type=%s key=%s doc=%s", msg.Type, key, m.docURI)
		return
	}

	switch msg.Type {
	case protocol.SurfaceDidOpen:
		if m.HasChild(key) {
			return
		}
		if _, err := m.AddChild(m.ctx, key, nil); err != nil {
			log.Printf("[WARN] Failed to add view opened by surface: key=%s error=%v", key, err)
		}

	case protocol.SurfaceDidClose:
		if m.HasChild(key) {
			m.RemoveChild(key)
		}

	case protocol.SurfaceDidChange:
		child := m.Child(key)
		if child == nil {
			log.Printf("[DEBUG] Change for unknown view: key=%s", key)
			return
		}
		var change any
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &change); err != nil {
				log.Printf("[WARN] Malformed view change: key=%s error=%v", key, err)
				return
			}
		}
		m.reporter.AcceptChangeView(child, change, msg.Model)

	case protocol.SurfaceDidShow:
		if child := m.Child(key); child != nil {
			m.reporter.AcceptShowView(child)
		}

	case protocol.SurfaceDidHide:
		if child := m.Child(key); child != nil {
			m.reporter.AcceptHideView(child)
		}

	case protocol.SurfaceSnapshot:
		if m.snapshots == nil {
			log.Printf("[DEBUG] Dropping snapshot, no store configured: key=%s", key)
			return
		}
		snap, err := m.snapshots.Save(m.ctx, m.docURI, key, msg.Data)
		if err != nil {
			log.Printf("[ERROR] Failed to save snapshot: key=%s error=%v", key, err)
			return
		}
		log.Printf("[INFO] Snapshot saved: id=%s key=%s bytes=%d", snap.ID, key, len(snap.Data))

	default:
		log.Printf("[WARN] Unknown surface message: type=%s", msg.Type)
	}
}

// SurfaceView is a child of a SurfaceMultiView. Model updates are sent to
// the surface with the view's key in the meta block.
type SurfaceView struct {
	key   views.Key
	owner *SurfaceMultiView
}

func (v *SurfaceView) Key() views.Key { return v.key }

func (v *SurfaceView) SetModel(ctx context.Context, model views.Model) error {
	return v.owner.surface.Send(ctx, protocol.SurfaceMessage{
		Type:  protocol.SurfaceRender,
		Model: model.WithKey(v.key),
	})
}

func (v *SurfaceView) UpdateModel(ctx context.Context, delta views.Delta) error {
	return v.owner.surface.Send(ctx, protocol.SurfaceMessage{
		Type:  protocol.SurfaceUpdate,
		Delta: delta.WithKey(v.key),
	})
}

// Dispose removes the view from its multiview.
func (v *SurfaceView) Dispose() {
	if v.owner.Child(v.key) == registry.View(v) {
		v.owner.RemoveChild(v.key)
	}
}

// SurfaceFactory creates SurfaceMultiViews on surfaces provided by an
// Opener. It implements registry.MultiViewFactory.
type SurfaceFactory struct {
	opener   surface.Opener
	reporter Reporter
	opts     []Option

	mu      sync.Mutex
	created []*SurfaceMultiView
}

// NewSurfaceFactory creates a factory reporting to reporter.
func NewSurfaceFactory(opener surface.Opener, reporter Reporter, opts ...Option) *SurfaceFactory {
	return &SurfaceFactory{opener: opener, reporter: reporter, opts: opts}
}

// Create opens a surface for docURI and starts a multiview on it. The
// multiview is reported to the registry before it reads any surface
// message.
func (f *SurfaceFactory) Create(ctx context.Context, docURI string) (registry.MultiView, error) {
	s, err := f.opener.Open(ctx, docURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open surface: %w", err)
	}
	return f.Adopt(s), nil
}

// Adopt starts a multiview on a surface that is already open, such as a
// renderer that connected on its own.
func (f *SurfaceFactory) Adopt(s surface.Surface) *SurfaceMultiView {
	m := newSurfaceMultiView(s, f.reporter, f.opts...)
	f.reporter.AcceptOpenMultiView(s.DocURI(), m)

	f.mu.Lock()
	f.created = append(f.created, m)
	f.mu.Unlock()

	log.Printf("[INFO] Multiview opened: id=%s doc=%s surface=%s", m.id, m.docURI, s.ID())
	m.start()
	return m
}

// Close disposes every multiview the factory created.
func (f *SurfaceFactory) Close() {
	f.mu.Lock()
	created := f.created
	f.created = nil
	f.mu.Unlock()

	for _, m := range created {
		m.Dispose()
	}
}
