package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/resolver"
	"github.com/dyluth/vista/internal/surface"
	"github.com/dyluth/vista/pkg/views"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupSnapshots points the CLI at a miniredis holding two snapshots of
// app.sysl in the workspace and returns the workspace, document path and
// snapshots.
func setupSnapshots(t *testing.T) (string, string, []surface.Snapshot) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)
	t.Setenv(config.EnvRedisURL, "redis://"+mr.Addr())
	t.Setenv(config.EnvInstance, "")

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store, err := surface.NewSnapshotStore(rdb, config.DefaultInstance)
	require.NoError(t, err)

	ws := t.TempDir()
	docPath := filepath.Join(ws, "app.sysl")
	docURI, err := documentURI(docPath)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := store.Save(ctx, docURI, views.Key{DocURI: docURI, PluginID: "diagrams", ViewID: "a"}, []byte("<svg>a</svg>"))
	require.NoError(t, err)
	b, err := store.Save(ctx, docURI, views.Key{DocURI: docURI, PluginID: "tables", ViewID: "b"}, []byte("<svg>b</svg>"))
	require.NoError(t, err)
	return ws, docPath, []surface.Snapshot{a, b}
}

func TestSnapshots_List(t *testing.T) {
	ws, docPath, snaps := setupSnapshots(t)

	out, _, err := execute(t, "snapshots", docPath, "--workspace", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "2 snapshots found")
	assert.Regexp(t, resolver.ShortID(snaps[0].ID)+`\s+diagrams\s+a\s+12B`, out)
	assert.Regexp(t, resolver.ShortID(snaps[1].ID)+`\s+tables\s+b`, out)
}

func TestSnapshots_FilterByPlugin(t *testing.T) {
	ws, docPath, _ := setupSnapshots(t)

	out, _, err := execute(t, "snapshots", docPath, "--workspace", ws, "--plugin", "tables", "-o", "jsonl")
	require.NoError(t, err)
	assert.Contains(t, out, `"pluginId":"tables"`)
	assert.NotContains(t, out, `"pluginId":"diagrams"`)
}

func TestSnapshots_FilterByTime(t *testing.T) {
	ws, docPath, _ := setupSnapshots(t)

	out, _, err := execute(t, "snapshots", docPath, "--workspace", ws, "--until", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "No snapshots found")
}

func TestSnapshots_InvalidTime(t *testing.T) {
	_, _, err := execute(t, "snapshots", "app.sysl", "--since", "soon")
	require.Error(t, err)
	assert.Equal(t, "invalid time filter", err.Error())
}

func TestSnapshots_Get(t *testing.T) {
	ws, docPath, snaps := setupSnapshots(t)

	out, _, err := execute(t, "snapshots", docPath, resolver.ShortID(snaps[1].ID), "--workspace", ws)
	require.NoError(t, err)
	assert.Equal(t, "<svg>b</svg>", out)
}

func TestSnapshots_GetToFile(t *testing.T) {
	ws, docPath, snaps := setupSnapshots(t)
	target := filepath.Join(t.TempDir(), "a.svg")

	_, _, err := execute(t, "snapshots", docPath, snaps[0].ID, "--workspace", ws, "--file", target)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "<svg>a</svg>", string(data))
}

func TestSnapshots_GetUnknown(t *testing.T) {
	ws, docPath, _ := setupSnapshots(t)

	_, _, err := execute(t, "snapshots", docPath, "ZZZZZZZZ", "--workspace", ws)
	require.Error(t, err)
	assert.Equal(t, "snapshot 'ZZZZZZZZ' not found", err.Error())
}

func TestSnapshots_RedisDown(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()
	t.Setenv(config.EnvRedisURL, "redis://"+addr)

	_, _, err := execute(t, "snapshots", "app.sysl", "--workspace", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, "Redis connection failed", err.Error())
}
