package plugin

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"maps"
	"sync"
	"time"

	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/internal/event"
	"github.com/dyluth/vista/internal/launcher"
	"github.com/dyluth/vista/internal/metrics"
	"github.com/dyluth/vista/internal/registry"
	"github.com/dyluth/vista/internal/throttle"
	"github.com/dyluth/vista/pkg/protocol"
	"github.com/dyluth/vista/pkg/views"
)

// Throttle key prefixes for the command client's event kinds.
const (
	kindChange  = "change"
	kindSave    = "save"
	kindDiagram = "diagram"
)

// pendingCall is the latest event of one kind for one document.
type pendingCall struct {
	kind   string
	doc    document.Document
	detail map[string]any
}

// CommandClient talks to a plugin that runs once per request: the request
// is written to stdin as JSON and the response read from stdout.
type CommandClient struct {
	cfg     config.Plugin
	deps    Deps
	metrics *metrics.Metrics
	run     runner

	// ctx bounds calls made from event handlers. Stop cancels it and the
	// next Start replaces it.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	subs      event.Disposables
	throttles *throttle.Group[pendingCall]
	started   bool
}

// NewCommandClient creates a client for a command plugin.
func NewCommandClient(cfg config.Plugin, deps Deps) *CommandClient {
	dir := cfg.Dir
	if dir == "" {
		dir = deps.Workspace
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &CommandClient{
		cfg:     cfg,
		deps:    deps,
		metrics: deps.metrics(),
		run: runner{
			command: cfg.Command,
			dir:     dir,
			env:     append([]string{launcher.EnvPluginID + "=" + cfg.ID}, cfg.Environment...),
			timeout: cfg.Timeout,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	c.throttles = throttle.NewGroup(cfg.ThrottleDelay, c.flush)
	return c
}

// ID returns the plugin id.
func (c *CommandClient) ID() string { return c.cfg.ID }

// Start subscribes to document and view events and initializes the plugin.
// If initialization fails the subscriptions are removed again.
func (c *CommandClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	if c.ctx.Err() != nil {
		c.ctx, c.cancel = context.WithCancel(context.Background())
	}

	c.subs.Add(
		c.deps.Events.OnRender(c.onRender),
		c.deps.Events.OnDidChange(func(e document.ChangeEvent) { c.onDocumentEvent(kindChange, e.Document) }),
		c.deps.Events.OnDidSave(func(doc document.Document) { c.onDocumentEvent(kindSave, doc) }),
		c.deps.Views.OnDidChangeView(c.onDidChangeView),
	)

	if _, err := c.callPlugin(ctx, protocol.Request{Initialize: &protocol.InitializeRequest{}}); err != nil {
		c.subs.Dispose()
		return fmt.Errorf("failed to initialize plugin '%s': %w", c.cfg.ID, err)
	}

	c.started = true
	log.Printf("[INFO] Command plugin started: plugin=%s command=%v", c.cfg.ID, c.cfg.Command)
	return nil
}

// Stop unsubscribes, drops pending throttled calls and asks the plugin to
// shut down with an empty request.
func (c *CommandClient) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subs.Dispose()
	c.throttles.Stop()
	c.cancel()
	c.throttles.Wait()

	if !c.started {
		return nil
	}
	c.started = false

	_, err := c.callPlugin(ctx, protocol.Request{})
	if err != nil && !errors.Is(err, ErrNoResponse) {
		return fmt.Errorf("failed to stop plugin '%s': %w", c.cfg.ID, err)
	}
	log.Printf("[INFO] Command plugin stopped: plugin=%s", c.cfg.ID)
	return nil
}

// Render asks the plugin to render doc and opens any views it returns.
func (c *CommandClient) Render(ctx context.Context, doc document.Document) error {
	if !c.cfg.Matches(doc.Path()) {
		return nil
	}
	return c.process(ctx, doc, protocol.ActionSaveFile, protocol.SourceText, true, nil)
}

func (c *CommandClient) onRender(doc document.Document) {
	if err := c.Render(c.ctx, doc); err != nil {
		log.Printf("[ERROR] Plugin render failed: plugin=%s uri=%s error=%v", c.cfg.ID, doc.URI(), err)
	}
}

// onDocumentEvent queues a text change or save. Documents nobody is
// looking at are skipped.
func (c *CommandClient) onDocumentEvent(kind string, doc document.Document) {
	if doc == nil || !c.cfg.Matches(doc.Path()) {
		return
	}
	if len(c.deps.Views.MultiViews(doc.URI())) == 0 {
		return
	}
	c.throttles.Call(kind+":"+doc.URI(), pendingCall{kind: kind, doc: doc})
}

// onDidChangeView queues a change made to one of this plugin's views.
func (c *CommandClient) onDidChangeView(e registry.ChangeEvent) {
	if e.Document == nil || e.Key.PluginID != c.cfg.ID {
		return
	}
	c.throttles.Call(kindDiagram+":"+e.Document.URI(), pendingCall{
		kind: kindDiagram,
		doc:  e.Document,
		detail: map[string]any{
			"model": e.Model,
			"delta": e.Change,
		},
	})
}

// flush runs a throttled call.
func (c *CommandClient) flush(_ string, p pendingCall) {
	var err error
	switch p.kind {
	case kindChange:
		err = c.process(c.ctx, p.doc, protocol.ActionModify, protocol.SourceText, false, nil)
	case kindSave:
		err = c.process(c.ctx, p.doc, protocol.ActionSaveFile, protocol.SourceText, false, nil)
	case kindDiagram:
		err = c.process(c.ctx, p.doc, protocol.ActionModify, protocol.SourceDiagram, false, p.detail)
	}
	if err != nil && c.ctx.Err() == nil {
		log.Printf("[WARN] Plugin update failed: plugin=%s kind=%s uri=%s error=%v", c.cfg.ID, p.kind, p.doc.URI(), err)
	}
}

// process builds a request for doc, calls the plugin and applies the
// diagrams in the response.
func (c *CommandClient) process(ctx context.Context, doc document.Document, action protocol.Action, source protocol.Source, openIfNot bool, detail map[string]any) error {
	req := protocol.Request{
		Onchange: &protocol.OnChangeRequest{
			Change: protocol.Change{
				FilePath: doc.Path(),
				Action:   action,
				Source:   source,
				Detail:   detail,
			},
			Context: c.buildContext(ctx, doc),
		},
	}

	res, err := c.callPlugin(ctx, req)
	if err != nil {
		return err
	}
	return c.handleResponse(ctx, res, doc, openIfNot)
}

func (c *CommandClient) buildContext(ctx context.Context, doc document.Document) protocol.Context {
	out := protocol.Context{
		FilePath:    doc.Path(),
		FileContent: doc.Text(),
		SyslRoot:    c.deps.Workspace,
	}
	if c.deps.Compiler != nil {
		module, err := c.deps.Compiler.Compile(ctx, doc)
		if err != nil {
			log.Printf("[WARN] Failed to compile document: plugin=%s uri=%s error=%v", c.cfg.ID, doc.URI(), err)
		} else {
			out.Module = base64.StdEncoding.EncodeToString(module)
		}
	}
	return out
}

// handleResponse turns each rendered diagram into a view. Existing views
// get the new model; missing ones are opened only when openIfNot is set.
func (c *CommandClient) handleResponse(ctx context.Context, res *protocol.Response, doc document.Document, openIfNot bool) error {
	if res.Onchange == nil {
		return nil
	}

	var errs []error
	for _, d := range res.Onchange.RenderDiagram {
		key, model := c.diagramView(doc, d)

		if len(c.deps.Views.Views(key)) > 0 {
			edit := views.KeyedEdits{Key: key, Edits: []views.Edit{views.SetModel(model)}}
			if err := c.deps.Views.ApplyEdit(ctx, []views.KeyedEdits{edit}); err != nil {
				errs = append(errs, fmt.Errorf("failed to update view %s: %w", key, err))
			}
		} else if openIfNot {
			if _, err := c.deps.Views.OpenView(ctx, key, model); err != nil {
				errs = append(errs, fmt.Errorf("failed to open view %s: %w", key, err))
			}
		}
	}
	return errors.Join(errs...)
}

// diagramView derives the key and model of a diagram in a response. The
// view id is the diagram's type id, else its label. The label defaults to
// the plugin id, so anonymous diagrams of one response share a view.
func (c *CommandClient) diagramView(doc document.Document, d protocol.Diagram) (views.Key, views.Model) {
	label := d.Label()
	if label == "" {
		label = c.cfg.ID
	}

	viewID := d.TypeID()
	if viewID == "" {
		viewID = label
	}

	key := views.Key{DocURI: doc.URI(), PluginID: c.cfg.ID, ViewID: viewID}
	model := views.Model(maps.Clone(d.Content)).WithMeta(views.Meta{
		Key:   key,
		Kind:  views.KindDiagram,
		Label: label,
	})
	return key, model
}

// callPlugin sends one request and decodes the response.
func (c *CommandClient) callPlugin(ctx context.Context, req protocol.Request) (*protocol.Response, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	log.Printf("[DEBUG] Calling plugin: plugin=%s request=%s", c.cfg.ID, describeRequest(req))
	start := time.Now()
	res, err := c.call(ctx, input)
	c.metrics.PluginCalls.WithLabelValues(c.cfg.ID, metrics.Result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	log.Printf("[DEBUG] Plugin call successful: plugin=%s duration=%s", c.cfg.ID, time.Since(start))
	return res, nil
}

func (c *CommandClient) call(ctx context.Context, input []byte) (*protocol.Response, error) {
	out, err := c.run.run(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to call plugin '%s': %w", c.cfg.ID, err)
	}

	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, ErrNoResponse
	}

	if err := protocol.ValidateResponse(out); err != nil {
		return nil, fmt.Errorf("invalid response from plugin '%s': %w", c.cfg.ID, err)
	}

	var res protocol.Response
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("failed to decode response from plugin '%s': %w", c.cfg.ID, err)
	}
	if res.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrPluginResponse, res.Error)
	}
	return &res, nil
}

// describeRequest summarises a request for logging without the document
// content and compiled module.
func describeRequest(req protocol.Request) string {
	switch {
	case req.Initialize != nil:
		return "initialize"
	case req.Onchange != nil:
		ch := req.Onchange.Change
		return fmt.Sprintf("onchange file=%s action=%s source=%s content=<%d B> module=<%d B>",
			ch.FilePath, ch.Action, ch.Source, len(req.Onchange.Context.FileContent), len(req.Onchange.Context.Module))
	default:
		return "shutdown"
	}
}
