package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/internal/launcher"
	"github.com/dyluth/vista/internal/metrics"
	"github.com/dyluth/vista/internal/multiview"
	"github.com/dyluth/vista/internal/plugin"
	"github.com/dyluth/vista/internal/printer"
	"github.com/dyluth/vista/internal/registry"
	"github.com/dyluth/vista/internal/surface"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type stackOptions struct {
	Workspace string
	Config    *config.VistaConfig
	// Opener provides presentation surfaces: the hub for run, memory
	// surfaces for render.
	Opener surface.Opener
	// Producers feed the document source, e.g. a file watcher.
	Producers []document.Producer
	// Registerer receives vista's collectors. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// stack is everything between the document source and the plugins.
type stack struct {
	rdb      *redis.Client
	metrics  *metrics.Metrics
	registry *registry.Registry
	views    *multiview.SurfaceFactory
	source   *document.Source
	engine   *plugin.Engine
}

func newStack(opts stackOptions) (*stack, error) {
	cfg := opts.Config

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)

	snapshots, err := surface.NewSnapshotStore(rdb, cfg.Instance)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	m := metrics.New(opts.Registerer)
	reg := registry.New(registry.WithMetrics(m))
	views := multiview.NewSurfaceFactory(opts.Opener, reg, multiview.WithSnapshotter(snapshots))
	reg.SetMultiViewFactory(views)

	src := document.NewSource(opts.Producers...)
	reg.SetDocumentFinder(src)

	deps := plugin.Deps{
		Views:     reg,
		Events:    src,
		Metrics:   m,
		Workspace: opts.Workspace,
	}
	if len(cfg.Compiler) > 0 {
		deps.Compiler = plugin.NewExecCompiler(cfg.Compiler, opts.Workspace)
	}

	factory := plugin.NewClientFactory(deps, rdb, launcher.Options{
		Instance:  cfg.Instance,
		RedisURL:  cfg.Redis.URL,
		Workspace: opts.Workspace,
	})

	engine := plugin.NewEngine(plugin.EngineConfig{
		Instance: cfg.Instance,
		Locator: &plugin.Locator{
			Configured:    cfg.PluginList(),
			WorkspaceDirs: []string{opts.Workspace},
			Defaults:      *cfg.Defaults,
		},
		Factory: factory,
		Events:  src,
		Metrics: m,
		OnStartFailure: func(ids []string) {
			printer.Warning("Failed to start plugins: %s\n", strings.Join(ids, ", "))
		},
	})

	return &stack{
		rdb:      rdb,
		metrics:  m,
		registry: reg,
		views:    views,
		source:   src,
		engine:   engine,
	}, nil
}

// close stops the plugins, disposes every multiview and closes Redis.
func (s *stack) close(ctx context.Context) error {
	var errs []error
	if err := s.engine.Deactivate(ctx); err != nil {
		errs = append(errs, err)
	}
	s.views.Close()
	if err := s.rdb.Close(); err != nil {
		log.Printf("[WARN] Failed to close Redis client: %v", err)
	}
	return errors.Join(errs...)
}

// adopt hosts the views of a renderer that connected on its own and asks
// the plugins to render its document.
func (s *stack) adopt(surf surface.Surface) {
	s.views.Adopt(surf)

	doc, ok := s.source.Find(surf.DocURI())
	if !ok {
		loaded, err := document.Load(document.PathFromURI(surf.DocURI()))
		if err != nil {
			log.Printf("[WARN] Cannot render document for surface: doc=%s error=%v", surf.DocURI(), err)
			return
		}
		doc = loaded
	}
	s.source.FireRender(doc)
}

// sortedViews returns the registered views ordered by key.
func (s *stack) sortedViews() []registry.View {
	all := s.registry.AllViews()
	sort.Slice(all, func(i, j int) bool {
		return all[i].Key().String() < all[j].Key().String()
	})
	return all
}

// started counts the plugins that are running.
func (s *stack) started() int {
	failures := s.engine.Failures()
	n := 0
	for _, id := range s.engine.PluginIDs() {
		if _, failed := failures[id]; !failed {
			n++
		}
	}
	return n
}
