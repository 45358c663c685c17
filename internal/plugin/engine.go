package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/internal/event"
	"github.com/dyluth/vista/internal/metrics"
	"github.com/panjf2000/ants/v2"
)

// firstInspectPort is the first port handed to plugins started in debug
// mode without an explicit inspect port.
const firstInspectPort = 6051

// Factory builds the client for a plugin.
type Factory interface {
	Build(cfg config.Plugin) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(cfg config.Plugin) (Client, error)

func (f FactoryFunc) Build(cfg config.Plugin) (Client, error) { return f(cfg) }

// EngineConfig configures an Engine.
type EngineConfig struct {
	Instance string
	Locator  *Locator
	Factory  Factory
	Events   Events
	// Metrics is optional.
	Metrics *metrics.Metrics
	// OnStartFailure, if set, is called with the ids of the plugins that
	// failed to build or start.
	OnStartFailure func(ids []string)
	// PoolSize bounds concurrent starts and stops. Zero means one worker
	// per plugin.
	PoolSize int
}

// Engine manages the lifecycle of every plugin.
type Engine struct {
	cfg     EngineConfig
	metrics *metrics.Metrics

	mu              sync.RWMutex
	plugins         []Client
	failures        map[string]error
	registration    event.Disposable
	nextInspectPort int
}

// NewEngine creates an engine. Nothing runs until Activate.
func NewEngine(cfg EngineConfig) *Engine {
	m := cfg.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	return &Engine{
		cfg:             cfg,
		metrics:         m,
		failures:        make(map[string]error),
		nextInspectPort: firstInspectPort,
	}
}

// Activate discovers plugins, builds a client for each and starts them all
// concurrently. A plugin that fails to build or start does not affect the
// others; its error is available from Failures. The document source is
// registered only if at least one plugin started.
//
// Activate returns an error only if discovery fails.
func (e *Engine) Activate(ctx context.Context) error {
	configs, err := e.cfg.Locator.Locate()
	if err != nil {
		return fmt.Errorf("failed to locate plugins: %w", err)
	}

	e.mu.Lock()
	e.failures = make(map[string]error)
	e.mu.Unlock()

	clients := e.build(configs)

	e.mu.Lock()
	e.plugins = clients
	e.mu.Unlock()

	startErrs := e.runAll(clients, func(c Client) error { return c.Start(ctx) })

	e.mu.Lock()
	for i, c := range clients {
		e.metrics.PluginStarts.WithLabelValues(c.ID(), metrics.Result(startErrs[i])).Inc()
		if startErrs[i] != nil {
			e.failures[c.ID()] = startErrs[i]
		}
	}
	failed := sortedKeys(e.failures)
	started := len(clients) - countErrors(startErrs)
	e.mu.Unlock()

	if len(failed) > 0 {
		log.Printf("[WARN] Failed to start plugins: %s", strings.Join(failed, ", "))
		e.logEvent("plugins_failed", map[string]interface{}{
			"plugins": failed,
		})
		if e.cfg.OnStartFailure != nil {
			e.cfg.OnStartFailure(failed)
		}
	}

	if started > 0 {
		reg, err := e.cfg.Events.Register()
		if err != nil {
			log.Printf("[ERROR] Failed to register document source: %v", err)
		} else {
			e.mu.Lock()
			e.registration = reg
			e.mu.Unlock()
		}
	}

	e.logEvent("engine_activated", map[string]interface{}{
		"started": started,
		"failed":  len(failed),
		"plugins": e.PluginIDs(),
	})
	return nil
}

// build creates a client for each config. Build failures are recorded.
func (e *Engine) build(configs []config.Plugin) []Client {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := make([]Client, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Debug && cfg.InspectPort == 0 {
			cfg.InspectPort = e.nextInspectPort
			e.nextInspectPort++
		}

		c, err := e.cfg.Factory.Build(cfg)
		if err != nil {
			log.Printf("[ERROR] Failed to build plugin client: plugin=%s error=%v", cfg.ID, err)
			e.failures[cfg.ID] = fmt.Errorf("failed to build client: %w", err)
			e.metrics.PluginStarts.WithLabelValues(cfg.ID, metrics.ResultFailure).Inc()
			continue
		}
		clients = append(clients, c)
	}
	return clients
}

// Deactivate unregisters the document source and stops every plugin
// concurrently. It returns the joined stop errors.
func (e *Engine) Deactivate(ctx context.Context) error {
	e.mu.Lock()
	reg := e.registration
	e.registration = nil
	clients := e.plugins
	e.mu.Unlock()

	if reg != nil {
		reg.Dispose()
	}

	stopErrs := e.runAll(clients, func(c Client) error { return c.Stop(ctx) })

	var errs []error
	for i, err := range stopErrs {
		if err != nil {
			errs = append(errs, fmt.Errorf("plugin '%s': %w", clients[i].ID(), err))
		}
	}

	e.logEvent("engine_deactivated", map[string]interface{}{
		"plugins": len(clients),
		"failed":  len(errs),
	})
	return errors.Join(errs...)
}

// runAll calls fn for every client on a worker pool and waits for all of
// them. The result holds one error per client, in order.
func (e *Engine) runAll(clients []Client, fn func(Client) error) []error {
	errs := make([]error, len(clients))
	if len(clients) == 0 {
		return errs
	}

	size := e.cfg.PoolSize
	if size <= 0 {
		size = len(clients)
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		for i := range errs {
			errs[i] = fmt.Errorf("failed to create worker pool: %w", err)
		}
		return errs
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			errs[i] = fn(c)
		}
		if err := pool.Submit(task); err != nil {
			errs[i] = fmt.Errorf("failed to schedule plugin '%s': %w", c.ID(), err)
			wg.Done()
		}
	}
	wg.Wait()
	return errs
}

// Plugins returns every client, including those that failed to start.
func (e *Engine) Plugins() []Client {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Client, len(e.plugins))
	copy(out, e.plugins)
	return out
}

// PluginIDs returns the ids of every client.
func (e *Engine) PluginIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, len(e.plugins))
	for i, c := range e.plugins {
		ids[i] = c.ID()
	}
	return ids
}

// Failures returns the build and start errors by plugin id.
func (e *Engine) Failures() map[string]error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]error, len(e.failures))
	for id, err := range e.failures {
		out[id] = err
	}
	return out
}

// StartErr joins every failure, ordered by plugin id, or returns nil.
func (e *Engine) StartErr() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var errs []error
	for _, id := range sortedKeys(e.failures) {
		errs = append(errs, fmt.Errorf("plugin '%s': %w", id, e.failures[id]))
	}
	return errors.Join(errs...)
}

// Render asks every started plugin to render doc, one at a time, and
// returns the joined errors.
func (e *Engine) Render(ctx context.Context, doc document.Document) error {
	e.mu.RLock()
	clients := make([]Client, 0, len(e.plugins))
	for _, c := range e.plugins {
		if _, failed := e.failures[c.ID()]; !failed {
			clients = append(clients, c)
		}
	}
	e.mu.RUnlock()

	var errs []error
	for _, c := range clients {
		if err := c.Render(ctx, doc); err != nil {
			errs = append(errs, fmt.Errorf("plugin '%s': %w", c.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// logEvent writes one structured JSON line.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "engine"
	data["event_type"] = eventType
	data["instance"] = e.cfg.Instance

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Engine] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}

func sortedKeys(m map[string]error) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func countErrors(errs []error) int {
	n := 0
	for _, err := range errs {
		if err != nil {
			n++
		}
	}
	return n
}
