package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/dyluth/vista/internal/channel"
	"github.com/dyluth/vista/internal/event"
	"github.com/dyluth/vista/internal/registry"
	"github.com/dyluth/vista/pkg/protocol"
	"github.com/dyluth/vista/pkg/views"
)

// Channel carries notifications to and from one persistent plugin.
type Channel interface {
	Start(ctx context.Context) error
	OnNotification(method string, fn channel.Handler) event.Disposable
	Notify(ctx context.Context, method string, params any) error
	Close() error
}

// Router relays view traffic between a plugin's channel and the registry.
//
// Requests from the plugin (view/open, view/edit) are applied to the
// registry in the order they arrive. Lifecycle events from the registry are
// forwarded to the plugin. When the router starts it reports every view
// that is already open, and no live event is forwarded before that replay
// has been sent.
type Router struct {
	pluginID string
	ch       Channel
	views    Views

	ctx    context.Context
	cancel context.CancelFunc

	// sendMu serializes forwarding so the plugin sees registry events in
	// the order the registry reported them.
	sendMu   sync.Mutex
	replayed map[registry.View]struct{}
	subs     event.Disposables

	// openMu guards queues. A document has a queue while its multiview is
	// being created; requests for it wait there in arrival order.
	openMu sync.Mutex
	queues map[string][]func()
	opens  sync.WaitGroup
}

// NewRouter creates a router for the plugin reachable through ch.
func NewRouter(pluginID string, ch Channel, v Views) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	return &Router{
		pluginID: pluginID,
		ch:       ch,
		views:    v,
		ctx:      ctx,
		cancel:   cancel,
		replayed: make(map[registry.View]struct{}),
		queues:   make(map[string][]func()),
	}
}

// Start starts the channel and begins routing.
func (r *Router) Start(ctx context.Context) error {
	if err := r.ch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start channel: %w", err)
	}

	r.subs.Add(
		r.ch.OnNotification(protocol.MethodViewOpen, r.handleOpen),
		r.ch.OnNotification(protocol.MethodViewEdit, r.handleEdit),
	)

	// Listeners registered below block on sendMu until the replay is out.
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.subs.Add(
		r.views.OnDidOpenView(func(e registry.ViewEvent) {
			r.sendMu.Lock()
			defer r.sendMu.Unlock()
			if _, ok := r.replayed[e.View]; ok {
				// Opened while the replay was taken; already reported.
				delete(r.replayed, e.View)
				return
			}
			r.sendLocked(protocol.MethodViewDidOpen, protocol.DidOpenViewParams{View: protocol.ViewRef{Key: e.Key, Model: e.Model}})
		}),
		r.views.OnDidCloseView(func(e registry.ViewEvent) {
			r.sendMu.Lock()
			defer r.sendMu.Unlock()
			delete(r.replayed, e.View)
			r.sendLocked(protocol.MethodViewDidClose, protocol.KeyParams{Key: e.Key})
		}),
		r.views.OnDidShowView(func(e registry.ViewEvent) {
			r.forward(protocol.MethodViewDidShow, protocol.KeyParams{Key: e.Key})
		}),
		r.views.OnDidHideView(func(e registry.ViewEvent) {
			r.forward(protocol.MethodViewDidHide, protocol.KeyParams{Key: e.Key})
		}),
		r.views.OnDidChangeView(func(e registry.ChangeEvent) {
			r.forward(protocol.MethodViewDidChange, protocol.DidChangeViewParams{Key: e.Key, ModelChanges: []any{e.Change}})
		}),
	)

	open := r.views.AllViews()
	for _, v := range open {
		r.replayed[v] = struct{}{}
		r.sendLocked(protocol.MethodViewDidOpen, protocol.DidOpenViewParams{View: protocol.ViewRef{Key: v.Key()}})
	}

	log.Printf("[INFO] Router started: plugin=%s replayed=%d", r.pluginID, len(open))
	return nil
}

// Dispose stops routing and waits for queued view/open requests.
// The channel itself is left open.
func (r *Router) Dispose() {
	r.subs.Dispose()
	r.openMu.Lock()
	r.cancel()
	r.openMu.Unlock()
	r.opens.Wait()
}

func (r *Router) forward(method string, params any) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	r.sendLocked(method, params)
}

func (r *Router) sendLocked(method string, params any) {
	if r.ctx.Err() != nil {
		return
	}
	if err := r.ch.Notify(r.ctx, method, params); err != nil {
		log.Printf("[WARN] Failed to notify plugin: plugin=%s method=%s error=%v", r.pluginID, method, err)
	}
}

// handleOpen opens the requested views in order. Views of a document that
// already has a multiview are opened before the handler returns. Creating a
// multiview may wait for a surface to connect, so that happens on a
// goroutine and later requests for the document are queued behind it.
func (r *Router) handleOpen(raw json.RawMessage) {
	var params protocol.OpenViewParams
	if err := json.Unmarshal(raw, &params); err != nil {
		log.Printf("[WARN] Ignoring malformed %s: plugin=%s error=%v", protocol.MethodViewOpen, r.pluginID, err)
		return
	}

	r.openMu.Lock()
	defer r.openMu.Unlock()
	if r.ctx.Err() != nil {
		return
	}

	for _, item := range params.Views {
		doc := item.Key.DocURI
		if _, queued := r.queues[doc]; !queued && len(r.views.MultiViews(doc)) > 0 {
			r.open(item)
			continue
		}
		r.enqueueLocked(doc, func() { r.open(item) })
	}
}

func (r *Router) open(item protocol.ViewItem) {
	if _, err := r.views.OpenView(r.ctx, item.Key, item.Model); err != nil {
		log.Printf("[ERROR] Failed to open view: plugin=%s key=%s error=%v", r.pluginID, item.Key, err)
	}
}

func (r *Router) handleEdit(raw json.RawMessage) {
	var params protocol.EditViewParams
	if err := json.Unmarshal(raw, &params); err != nil {
		log.Printf("[WARN] Ignoring malformed %s: plugin=%s error=%v", protocol.MethodViewEdit, r.pluginID, err)
		return
	}

	r.openMu.Lock()
	if r.ctx.Err() != nil {
		r.openMu.Unlock()
		return
	}
	var now []views.KeyedEdits
	for _, entry := range params.Edits {
		if _, queued := r.queues[entry.Key.DocURI]; queued {
			r.enqueueLocked(entry.Key.DocURI, func() { r.applyEdits([]views.KeyedEdits{entry}) })
			continue
		}
		now = append(now, entry)
	}
	r.openMu.Unlock()

	if len(now) > 0 {
		r.applyEdits(now)
	}
}

func (r *Router) applyEdits(edits []views.KeyedEdits) {
	if err := r.views.ApplyEdit(r.ctx, edits); err != nil {
		log.Printf("[WARN] Failed to apply view edits: plugin=%s error=%v", r.pluginID, err)
	}
}

// enqueueLocked appends op to doc's queue, starting a drain goroutine if
// the queue was empty. The caller holds openMu.
func (r *Router) enqueueLocked(doc string, op func()) {
	q, running := r.queues[doc]
	r.queues[doc] = append(q, op)
	if running {
		return
	}
	r.opens.Add(1)
	go r.drain(doc)
}

func (r *Router) drain(doc string) {
	defer r.opens.Done()
	for {
		r.openMu.Lock()
		q := r.queues[doc]
		if len(q) == 0 || r.ctx.Err() != nil {
			delete(r.queues, doc)
			r.openMu.Unlock()
			return
		}
		op := q[0]
		r.queues[doc] = q[1:]
		r.openMu.Unlock()

		op()
	}
}
