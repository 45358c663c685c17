package plugin

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dyluth/vista/internal/document"
	"github.com/dyluth/vista/internal/metrics"
	"github.com/dyluth/vista/internal/multiview"
	"github.com/dyluth/vista/internal/registry"
	"github.com/dyluth/vista/internal/surface"
	"github.com/stretchr/testify/require"
)

const docURI = "file:///repo/app.sysl"

// harness wires a registry to in-memory surfaces and a document source.
type harness struct {
	reg     *registry.Registry
	opener  *surface.MemoryOpener
	source  *document.Source
	metrics *metrics.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	m := metrics.New(nil)
	reg := registry.New(registry.WithMetrics(m))
	opener := &surface.MemoryOpener{}
	f := multiview.NewSurfaceFactory(opener, reg)
	t.Cleanup(f.Close)
	reg.SetMultiViewFactory(f)

	source := document.NewSource()
	reg.SetDocumentFinder(source)
	return &harness{reg: reg, opener: opener, source: source, metrics: m}
}

func (h *harness) deps() Deps {
	return Deps{Views: h.reg, Events: h.source, Metrics: h.metrics, Workspace: "/repo"}
}

// surface returns the only surface opened so far.
func (h *harness) surface(t *testing.T) *surface.Memory {
	t.Helper()
	surfaces := h.opener.Surfaces()
	require.Len(t, surfaces, 1)
	return surfaces[0]
}

func sentTypes(s *surface.Memory) []string {
	var out []string
	for _, msg := range s.Sent() {
		out = append(out, msg.Type)
	}
	return out
}

func countType(s *surface.Memory, typ string) int {
	n := 0
	for _, msg := range s.Sent() {
		if msg.Type == typ {
			n++
		}
	}
	return n
}

// writeScript writes an executable shell script and returns its path.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// diagramPlugin answers initialize and onchange requests, rendering one
// diagram with type id "a", and appends every request to $REQUEST_LOG.
const diagramPlugin = `input=$(cat)
printf '%s\n' "$input" >> "$REQUEST_LOG"
case "$input" in
  *'"initialize"'*) echo '{"initialize":{}}' ;;
  *'"onchange"'*) echo '{"onchange":{"renderDiagram":[{"content":{"nodes":[],"edges":[]},"type":{"id":"a"}}]}}' ;;
esac
`

// requests reads the request log written by diagramPlugin.
func requests(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func waitForType(t *testing.T, s *surface.Memory, typ string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return countType(s, typ) >= n
	}, 5*time.Second, 10*time.Millisecond)
}
