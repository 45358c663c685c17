package plugin

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/internal/launcher"
	"github.com/dyluth/vista/internal/registry"
	"github.com/dyluth/vista/pkg/protocol"
	"github.com/dyluth/vista/pkg/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEngine_WorkspaceCommandPlugin discovers a script in the workspace,
// renders a document through it and shuts it down again.
func TestEngine_WorkspaceCommandPlugin(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "requests.log")
	t.Setenv("REQUEST_LOG", logPath)
	writeFile(t, filepath.Join(dir, ".vista", "plugins", "diagrams.sh"), "#!/bin/sh\n"+diagramPlugin, 0o755)

	e := NewEngine(EngineConfig{
		Instance: "test",
		Locator:  &Locator{WorkspaceDirs: []string{dir}},
		Factory:  NewClientFactory(h.deps(), nil, launcher.Options{Instance: "test", Workspace: dir}),
		Events:   h.source,
		Metrics:  h.metrics,
	})
	require.NoError(t, e.Activate(context.Background()))
	require.Equal(t, []string{"diagrams"}, e.PluginIDs())
	require.NoError(t, e.StartErr())

	h.source.FireRender(document.NewSimpleDocument(docURI, "App:"))

	key := views.Key{DocURI: docURI, PluginID: "diagrams", ViewID: "a"}
	require.Len(t, h.reg.Views(key), 1)
	assert.Equal(t, []string{protocol.SurfaceRender}, sentTypes(h.surface(t)))

	require.NoError(t, e.Deactivate(context.Background()))
	reqs := requests(t, logPath)
	require.Len(t, reqs, 3)
	assert.JSONEq(t, `{}`, reqs[2])
}

// TestEngine_AnonymousDiagramOpensOnce renders a document through a plugin
// whose diagram has neither a type nor a label. The view is named after the
// plugin and opened exactly once.
func TestEngine_AnonymousDiagramOpensOnce(t *testing.T) {
	h := newHarness(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".vista", "plugins", "p.sh"), `#!/bin/sh
case "$(cat)" in
  *'"initialize"'*) echo '{"initialize":{}}' ;;
  *'"onchange"'*) echo '{"onchange":{"renderDiagram":[{"content":{"nodes":[{"key":"a"}],"edges":[]}}]}}' ;;
esac
`, 0o755)

	var opened []registry.ViewEvent
	h.reg.OnDidOpenView(func(e registry.ViewEvent) { opened = append(opened, e) })

	e := NewEngine(EngineConfig{
		Instance: "test",
		Locator:  &Locator{WorkspaceDirs: []string{dir}},
		Factory:  NewClientFactory(h.deps(), nil, launcher.Options{Instance: "test", Workspace: dir}),
		Events:   h.source,
		Metrics:  h.metrics,
	})
	require.NoError(t, e.Activate(context.Background()))
	t.Cleanup(func() { e.Deactivate(context.Background()) })

	h.source.FireRender(document.NewSimpleDocument(docURI, "App:\n  ..."))

	require.Len(t, opened, 1)
	want := views.Key{DocURI: docURI, PluginID: "p", ViewID: "p"}
	assert.Equal(t, want, opened[0].Key)
	assert.Equal(t, []any{map[string]any{"key": "a"}}, opened[0].Model["nodes"])
	assert.Equal(t, []any{}, opened[0].Model["edges"])
}
