package plugin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/internal/event"
	"github.com/dyluth/vista/internal/launcher"
	"github.com/dyluth/vista/internal/throttle"
	"github.com/dyluth/vista/pkg/protocol"
)

// pendingNotification is the latest document state for one method.
type pendingNotification struct {
	method string
	doc    document.Document
}

// ChannelClient talks to a long-running plugin over a Channel. Document
// events are pushed to the plugin as textDocument/* notifications and a
// Router relays view traffic.
type ChannelClient struct {
	cfg      config.Plugin
	deps     Deps
	ch       Channel
	router   *Router
	launcher Launcher

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	subs      event.Disposables
	throttles *throttle.Group[pendingNotification]
	proc      launcher.Process
	started   bool
	stopped   bool
}

// NewChannelClient creates a client for the plugin behind ch. When l is not
// nil and the plugin has a command or image, Start launches it first.
func NewChannelClient(cfg config.Plugin, ch Channel, l Launcher, deps Deps) *ChannelClient {
	ctx, cancel := context.WithCancel(context.Background())
	c := &ChannelClient{
		cfg:      cfg,
		deps:     deps,
		ch:       ch,
		router:   NewRouter(cfg.ID, ch, deps.Views),
		launcher: l,
		ctx:      ctx,
		cancel:   cancel,
	}
	c.throttles = throttle.NewGroup(cfg.ThrottleDelay, c.flush)
	return c
}

// ID returns the plugin id.
func (c *ChannelClient) ID() string { return c.cfg.ID }

// Router returns the client's router.
func (c *ChannelClient) Router() *Router { return c.router }

// Start launches the plugin if needed, starts routing and subscribes to
// document events.
func (c *ChannelClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if c.stopped {
		return ErrClientStopped
	}

	if c.launcher != nil && (len(c.cfg.Command) > 0 || c.cfg.Image != "") {
		proc, err := c.launcher.Launch(ctx, c.cfg)
		if err != nil {
			return fmt.Errorf("failed to launch plugin '%s': %w", c.cfg.ID, err)
		}
		c.proc = proc
	}

	if err := c.router.Start(ctx); err != nil {
		c.stopProcess(ctx)
		return fmt.Errorf("failed to start plugin '%s': %w", c.cfg.ID, err)
	}

	c.subs.Add(
		c.deps.Events.OnRender(func(doc document.Document) {
			if err := c.Render(c.ctx, doc); err != nil {
				log.Printf("[ERROR] Plugin render failed: plugin=%s uri=%s error=%v", c.cfg.ID, doc.URI(), err)
			}
		}),
		c.deps.Events.OnDidChange(func(e document.ChangeEvent) {
			c.queue(protocol.MethodTextDidChange, e.Document)
		}),
		c.deps.Events.OnDidSave(func(doc document.Document) {
			c.queue(protocol.MethodTextDidSave, doc)
		}),
		c.deps.Events.OnDidOpen(func(doc document.Document) {
			c.notifyDocument(protocol.MethodTextDidOpen, doc)
		}),
		c.deps.Events.OnDidClose(func(doc document.Document) {
			c.notifyDocument(protocol.MethodTextDidClose, doc)
		}),
	)

	c.started = true
	log.Printf("[INFO] Channel plugin started: plugin=%s", c.cfg.ID)
	return nil
}

// Stop unsubscribes, stops routing, closes the channel and stops the
// launched process. Every step runs even if an earlier one fails.
func (c *ChannelClient) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	c.subs.Dispose()
	c.throttles.Stop()
	c.cancel()
	c.throttles.Wait()
	c.router.Dispose()

	var errs []error
	if err := c.ch.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
	}
	if err := c.stopProcess(ctx); err != nil {
		errs = append(errs, err)
	}
	c.started = false

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to stop plugin '%s': %w", c.cfg.ID, err)
	}
	log.Printf("[INFO] Channel plugin stopped: plugin=%s", c.cfg.ID)
	return nil
}

func (c *ChannelClient) stopProcess(ctx context.Context) error {
	if c.proc == nil {
		return nil
	}
	proc := c.proc
	c.proc = nil
	if err := proc.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop process %s: %w", proc.ID(), err)
	}
	return nil
}

// Render sends textDocument/render for doc.
func (c *ChannelClient) Render(ctx context.Context, doc document.Document) error {
	if !c.cfg.Matches(doc.Path()) {
		return nil
	}
	return c.ch.Notify(ctx, protocol.MethodRender, textDocumentParams(doc))
}

func (c *ChannelClient) queue(method string, doc document.Document) {
	if doc == nil || !c.cfg.Matches(doc.Path()) {
		return
	}
	c.throttles.Call(method+"|"+doc.URI(), pendingNotification{method: method, doc: doc})
}

func (c *ChannelClient) flush(_ string, p pendingNotification) {
	c.notifyDocument(p.method, p.doc)
}

func (c *ChannelClient) notifyDocument(method string, doc document.Document) {
	if doc == nil || !c.cfg.Matches(doc.Path()) {
		return
	}
	if err := c.ch.Notify(c.ctx, method, textDocumentParams(doc)); err != nil && c.ctx.Err() == nil {
		log.Printf("[WARN] Failed to notify plugin: plugin=%s method=%s uri=%s error=%v", c.cfg.ID, method, doc.URI(), err)
	}
}

func textDocumentParams(doc document.Document) protocol.TextDocumentParams {
	return protocol.TextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        doc.URI(),
			LanguageID: doc.LanguageID(),
			Version:    doc.Version(),
			Text:       doc.Text(),
		},
	}
}
