// Package registry tracks which views exist, which multiviews own them and
// who listens for their lifecycle.
//
// The registry is an index: multiviews own views and report transitions
// through the Accept* methods, and the registry fans those out to listeners
// registered with the OnDid* methods. Listeners run synchronously on the
// reporting goroutine in registration order, so for a single view they
// observe transitions in the order they were reported.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/dyluth/vista/internal/event"
	"github.com/dyluth/vista/internal/metrics"
	"github.com/dyluth/vista/pkg/views"
	"golang.org/x/sync/singleflight"
)

// Registry is the central index of views and multiviews.
// All methods are safe for concurrent use. The registry never holds its
// lock while calling a multiview, a view, a factory or a listener.
type Registry struct {
	mu         sync.RWMutex
	views      map[views.Key][]View
	multiviews map[string][]MultiView
	factory    MultiViewFactory
	finder     DocumentFinder

	creating singleflight.Group

	onOpen   event.Emitter[ViewEvent]
	onClose  event.Emitter[ViewEvent]
	onShow   event.Emitter[ViewEvent]
	onHide   event.Emitter[ViewEvent]
	onChange event.Emitter[ChangeEvent]

	metrics *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records registry activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New creates an empty registry. The multiview factory and document finder
// are set afterwards because their implementations depend on the registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		views:      make(map[views.Key][]View),
		multiviews: make(map[string][]MultiView),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New(nil)
	}
	return r
}

// SetMultiViewFactory sets the factory used by OpenView.
func (r *Registry) SetMultiViewFactory(f MultiViewFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factory = f
}

// SetDocumentFinder sets the finder used to attach documents to events.
func (r *Registry) SetDocumentFinder(f DocumentFinder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finder = f
}

// Views returns the views registered under key, or nil if there are none.
func (r *Registry) Views(key views.Key) []View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.views[key])
}

// AllViews returns every registered view.
func (r *Registry) AllViews() []View {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []View
	for _, vs := range r.views {
		out = append(out, vs...)
	}
	return out
}

// MultiViews returns the multiviews of a document, or nil if there are none.
func (r *Registry) MultiViews(docURI string) []MultiView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.multiviews[docURI])
}

// AllMultiViews returns every registered multiview.
func (r *Registry) AllMultiViews() []MultiView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []MultiView
	for _, ms := range r.multiviews {
		out = append(out, ms...)
	}
	return out
}

// OpenView ensures a multiview exists for key's document and adds a view
// for key to every multiview of that document that does not yet have one.
// It returns the views it created. Multiview creation is shared between
// concurrent callers for the same document.
func (r *Registry) OpenView(ctx context.Context, key views.Key, model views.Model) ([]View, error) {
	r.mu.RLock()
	factory := r.factory
	r.mu.RUnlock()
	if factory == nil {
		return nil, ErrNoMultiViewFactory
	}

	mvs, err := r.ensureMultiViews(ctx, factory, key.DocURI)
	if err != nil {
		return nil, err
	}

	var opened []View
	var errs []error
	for _, m := range mvs {
		if m.HasChild(key) {
			continue
		}
		v, err := m.AddChild(ctx, key, model)
		if errors.Is(err, ErrDuplicateChild) {
			// Another caller added it between the check and the add.
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to open view %s in multiview %s: %w", key, m.ID(), err))
			continue
		}
		opened = append(opened, v)
	}
	return opened, errors.Join(errs...)
}

func (r *Registry) ensureMultiViews(ctx context.Context, factory MultiViewFactory, docURI string) ([]MultiView, error) {
	if mvs := r.MultiViews(docURI); len(mvs) > 0 {
		return mvs, nil
	}

	_, err, _ := r.creating.Do(docURI, func() (any, error) {
		if len(r.MultiViews(docURI)) > 0 {
			return nil, nil
		}
		log.Printf("[DEBUG] Creating multiview: doc=%s", docURI)
		m, err := factory.Create(ctx, docURI)
		if err != nil {
			return nil, fmt.Errorf("failed to create multiview for %s: %w", docURI, err)
		}
		r.AcceptOpenMultiView(docURI, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return r.MultiViews(docURI), nil
}

// ApplyEdit applies each entry's edits, in order, to every view registered
// under the entry's key. Keys with no registered view are skipped. Every
// edit is attempted; the returned error joins all failures and is nil only
// if every edit succeeded.
func (r *Registry) ApplyEdit(ctx context.Context, edits []views.KeyedEdits) error {
	var errs []error
	for _, entry := range edits {
		for _, v := range r.Views(entry.Key) {
			for _, e := range entry.Edits {
				err := applyOne(ctx, v, e)
				r.metrics.EditsApplied.WithLabelValues(metrics.Result(err)).Inc()
				if err != nil {
					errs = append(errs, fmt.Errorf("failed to apply edit to %s: %w", entry.Key, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func applyOne(ctx context.Context, v View, e views.Edit) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.IsDelta() {
		return v.UpdateModel(ctx, e.Delta)
	}
	return v.SetModel(ctx, e.Model)
}

// AcceptOpenView indexes view and notifies open listeners with the model
// the view was opened with. Reporting the same view twice has no effect.
func (r *Registry) AcceptOpenView(view View, model views.Model) {
	key := view.Key()

	r.mu.Lock()
	if slices.Contains(r.views[key], view) {
		r.mu.Unlock()
		return
	}
	r.views[key] = append(r.views[key], view)
	r.mu.Unlock()

	r.metrics.OpenViews.Inc()
	ev := r.viewEvent(view)
	ev.Model = model
	r.onOpen.Fire(ev)
}

// AcceptCloseView removes view from the index and notifies close
// listeners. Closing a view that is not indexed has no effect.
func (r *Registry) AcceptCloseView(view View) {
	if !r.unindex(view) {
		return
	}
	r.metrics.OpenViews.Dec()
	r.onClose.Fire(r.viewEvent(view))
}

func (r *Registry) unindex(view View) bool {
	key := view.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	vs := r.views[key]
	i := slices.Index(vs, view)
	if i < 0 {
		return false
	}
	vs = slices.Delete(slices.Clone(vs), i, i+1)
	if len(vs) == 0 {
		delete(r.views, key)
	} else {
		r.views[key] = vs
	}
	return true
}

// AcceptShowView notifies show listeners that view became visible.
func (r *Registry) AcceptShowView(view View) {
	r.onShow.Fire(r.viewEvent(view))
}

// AcceptHideView notifies hide listeners that view was hidden.
func (r *Registry) AcceptHideView(view View) {
	r.onHide.Fire(r.viewEvent(view))
}

// AcceptChangeView notifies change listeners that the model of view was
// changed in the surface.
func (r *Registry) AcceptChangeView(view View, change any, model views.Model) {
	r.onChange.Fire(ChangeEvent{ViewEvent: r.viewEvent(view), Change: change, Model: model})
}

// AcceptOpenMultiView records m as a multiview of docURI. Reporting the
// same multiview twice has no effect.
func (r *Registry) AcceptOpenMultiView(docURI string, m MultiView) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Contains(r.multiviews[docURI], m) {
		return
	}
	r.multiviews[docURI] = append(r.multiviews[docURI], m)
	r.metrics.OpenMultiViews.Inc()
}

// AcceptCloseMultiView forgets m. Views of its document that are no
// longer hosted by any remaining multiview are closed.
func (r *Registry) AcceptCloseMultiView(m MultiView) {
	docURI := m.DocURI()

	r.mu.Lock()
	ms := r.multiviews[docURI]
	i := slices.Index(ms, m)
	if i < 0 {
		r.mu.Unlock()
		return
	}
	ms = slices.Delete(slices.Clone(ms), i, i+1)
	if len(ms) == 0 {
		delete(r.multiviews, docURI)
	} else {
		r.multiviews[docURI] = ms
	}
	var candidates []View
	for key, vs := range r.views {
		if key.DocURI == docURI {
			candidates = append(candidates, vs...)
		}
	}
	r.mu.Unlock()
	r.metrics.OpenMultiViews.Dec()

	for _, v := range candidates {
		if !hostedBy(ms, v) {
			log.Printf("[WARN] Closing orphaned view: key=%s multiview=%s", v.Key(), m.ID())
			r.AcceptCloseView(v)
		}
	}
}

func hostedBy(ms []MultiView, v View) bool {
	for _, m := range ms {
		if m.Child(v.Key()) == v {
			return true
		}
	}
	return false
}

// OnDidOpenView subscribes to views being opened.
func (r *Registry) OnDidOpenView(fn func(ViewEvent)) event.Disposable {
	return r.onOpen.Subscribe(fn)
}

// OnDidCloseView subscribes to views being closed.
func (r *Registry) OnDidCloseView(fn func(ViewEvent)) event.Disposable {
	return r.onClose.Subscribe(fn)
}

// OnDidShowView subscribes to views becoming visible.
func (r *Registry) OnDidShowView(fn func(ViewEvent)) event.Disposable {
	return r.onShow.Subscribe(fn)
}

// OnDidHideView subscribes to views being hidden.
func (r *Registry) OnDidHideView(fn func(ViewEvent)) event.Disposable {
	return r.onHide.Subscribe(fn)
}

// OnDidChangeView subscribes to changes made to views in the surface.
func (r *Registry) OnDidChangeView(fn func(ChangeEvent)) event.Disposable {
	return r.onChange.Subscribe(fn)
}

func (r *Registry) viewEvent(view View) ViewEvent {
	key := view.Key()
	ev := ViewEvent{View: view, Key: key}

	r.mu.RLock()
	finder := r.finder
	r.mu.RUnlock()

	if finder != nil {
		if doc, ok := finder.Find(key.DocURI); ok {
			ev.Document = doc
		}
	}
	return ev
}
