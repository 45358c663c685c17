package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/internal/event"
	"github.com/dyluth/vista/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	id       string
	startErr error
	stopErr  error

	started  atomic.Bool
	stopped  atomic.Bool
	rendered atomic.Int32
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Start(context.Context) error {
	if c.startErr != nil {
		return c.startErr
	}
	c.started.Store(true)
	return nil
}

func (c *fakeClient) Stop(context.Context) error {
	c.stopped.Store(true)
	return c.stopErr
}

func (c *fakeClient) Render(context.Context, document.Document) error {
	c.rendered.Add(1)
	return nil
}

// countingEvents records registrations of the document source.
type countingEvents struct {
	*document.Source
	registered atomic.Int32
	disposed   atomic.Int32
}

func (e *countingEvents) Register() (event.Disposable, error) {
	e.registered.Add(1)
	return event.DisposeFunc(func() { e.disposed.Add(1) }), nil
}

type engineFixture struct {
	engine  *Engine
	events  *countingEvents
	clients map[string]*fakeClient
	metrics *metrics.Metrics
	built   []config.Plugin
	failed  []string
}

func newEngineFixture(t *testing.T, plugins []config.Plugin, clients ...*fakeClient) *engineFixture {
	t.Helper()
	f := &engineFixture{
		events:  &countingEvents{Source: document.NewSource()},
		clients: make(map[string]*fakeClient),
		metrics: metrics.New(nil),
	}
	for _, c := range clients {
		f.clients[c.id] = c
	}

	var mu sync.Mutex
	f.engine = NewEngine(EngineConfig{
		Instance: "test",
		Locator:  &Locator{Configured: plugins},
		Factory: FactoryFunc(func(cfg config.Plugin) (Client, error) {
			mu.Lock()
			defer mu.Unlock()
			f.built = append(f.built, cfg)
			c, ok := f.clients[cfg.ID]
			if !ok {
				return nil, errors.New("no client")
			}
			return c, nil
		}),
		Events:  f.events,
		Metrics: f.metrics,
		OnStartFailure: func(ids []string) {
			f.failed = ids
		},
	})
	return f
}

func plugins(ids ...string) []config.Plugin {
	out := make([]config.Plugin, len(ids))
	for i, id := range ids {
		out[i] = config.Plugin{ID: id, Kind: config.KindCommand, Command: []string{id}}
	}
	return out
}

func TestEngine_ActivateStartsAll(t *testing.T) {
	a, b := &fakeClient{id: "a"}, &fakeClient{id: "b"}
	f := newEngineFixture(t, plugins("a", "b"), a, b)

	require.NoError(t, f.engine.Activate(context.Background()))

	assert.True(t, a.started.Load())
	assert.True(t, b.started.Load())
	assert.Equal(t, []string{"a", "b"}, f.engine.PluginIDs())
	assert.Empty(t, f.engine.Failures())
	assert.NoError(t, f.engine.StartErr())
	assert.Nil(t, f.failed)
	assert.Equal(t, int32(1), f.events.registered.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PluginStarts.WithLabelValues("a", metrics.ResultSuccess)))
}

func TestEngine_IndependentStartFailures(t *testing.T) {
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b", startErr: errors.New("port in use")}
	f := newEngineFixture(t, plugins("a", "b"), a, b)

	require.NoError(t, f.engine.Activate(context.Background()))

	assert.True(t, a.started.Load())
	assert.Len(t, f.engine.Plugins(), 2)
	require.Contains(t, f.engine.Failures(), "b")
	assert.NotContains(t, f.engine.Failures(), "a")
	assert.ErrorContains(t, f.engine.StartErr(), "plugin 'b': port in use")
	assert.Equal(t, []string{"b"}, f.failed)
	assert.Equal(t, int32(1), f.events.registered.Load())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.PluginStarts.WithLabelValues("b", metrics.ResultFailure)))
}

func TestEngine_FailuresResetOnActivate(t *testing.T) {
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b", startErr: errors.New("port in use")}
	f := newEngineFixture(t, plugins("a", "b"), a, b)

	require.NoError(t, f.engine.Activate(context.Background()))
	require.Contains(t, f.engine.Failures(), "b")
	require.NoError(t, f.engine.Deactivate(context.Background()))

	b.startErr = nil
	require.NoError(t, f.engine.Activate(context.Background()))

	assert.Empty(t, f.engine.Failures())
	assert.NoError(t, f.engine.StartErr())
	assert.True(t, b.started.Load())
}

func TestEngine_NoRegistrationWhenAllFail(t *testing.T) {
	a := &fakeClient{id: "a", startErr: errors.New("boom")}
	f := newEngineFixture(t, plugins("a", "missing"), a)

	require.NoError(t, f.engine.Activate(context.Background()))

	assert.Equal(t, []string{"a", "missing"}, f.failed)
	assert.Equal(t, []string{"a"}, f.engine.PluginIDs())
	assert.Equal(t, int32(0), f.events.registered.Load())
}

func TestEngine_NoPlugins(t *testing.T) {
	f := newEngineFixture(t, nil)

	require.NoError(t, f.engine.Activate(context.Background()))
	assert.Empty(t, f.engine.Plugins())
	assert.Equal(t, int32(0), f.events.registered.Load())
	assert.NoError(t, f.engine.Deactivate(context.Background()))
}

func TestEngine_LocateFailure(t *testing.T) {
	dir := t.TempDir()
	// A file where the plugins directory should be cannot be listed.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".vista"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vista", "plugins"), nil, 0o644))

	e := NewEngine(EngineConfig{
		Locator: &Locator{WorkspaceDirs: []string{dir}},
		Factory: FactoryFunc(func(config.Plugin) (Client, error) { return nil, nil }),
		Events:  document.NewSource(),
	})
	err := e.Activate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to locate plugins")
}

func TestEngine_AssignsInspectPorts(t *testing.T) {
	ps := plugins("a", "b", "c", "d")
	ps[0].Debug = true
	ps[1].Debug = true
	ps[1].InspectPort = 9229
	ps[3].Debug = true
	f := newEngineFixture(t, ps, &fakeClient{id: "a"}, &fakeClient{id: "b"}, &fakeClient{id: "c"}, &fakeClient{id: "d"})

	require.NoError(t, f.engine.Activate(context.Background()))

	ports := map[string]int{}
	for _, p := range f.built {
		ports[p.ID] = p.InspectPort
	}
	assert.Equal(t, map[string]int{"a": 6051, "b": 9229, "c": 0, "d": 6052}, ports)
}

func TestEngine_Deactivate(t *testing.T) {
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b", stopErr: errors.New("hung")}
	c := &fakeClient{id: "c"}
	f := newEngineFixture(t, plugins("a", "b", "c"), a, b, c)
	require.NoError(t, f.engine.Activate(context.Background()))

	err := f.engine.Deactivate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin 'b': hung")

	assert.True(t, a.stopped.Load())
	assert.True(t, b.stopped.Load())
	assert.True(t, c.stopped.Load())
	assert.Equal(t, int32(1), f.events.disposed.Load())
}

func TestEngine_DeactivateStopsFailedClients(t *testing.T) {
	a := &fakeClient{id: "a", startErr: errors.New("boom")}
	f := newEngineFixture(t, plugins("a"), a)
	require.NoError(t, f.engine.Activate(context.Background()))

	require.NoError(t, f.engine.Deactivate(context.Background()))
	assert.True(t, a.stopped.Load())
}

func TestEngine_Render(t *testing.T) {
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b", startErr: errors.New("boom")}
	f := newEngineFixture(t, plugins("a", "b"), a, b)
	require.NoError(t, f.engine.Activate(context.Background()))

	require.NoError(t, f.engine.Render(context.Background(), document.NewSimpleDocument(docURI, "")))

	assert.Equal(t, int32(1), a.rendered.Load())
	assert.Equal(t, int32(0), b.rendered.Load())
}

func TestEngine_PoolSizeOne(t *testing.T) {
	a, b, c := &fakeClient{id: "a"}, &fakeClient{id: "b"}, &fakeClient{id: "c"}
	f := newEngineFixture(t, plugins("a", "b", "c"), a, b, c)
	f.engine.cfg.PoolSize = 1

	require.NoError(t, f.engine.Activate(context.Background()))

	assert.True(t, a.started.Load())
	assert.True(t, b.started.Load())
	assert.True(t, c.started.Load())
}
