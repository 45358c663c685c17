package surface

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/vista/pkg/views"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSnapshotStore(t *testing.T) *SnapshotStore {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store, err := NewSnapshotStore(rdb, "test-instance")
	require.NoError(t, err)
	return store
}

func TestNewSnapshotStoreRejectsEmptyInstance(t *testing.T) {
	_, err := NewSnapshotStore(redis.NewClient(&redis.Options{}), "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "instance name cannot be empty")
}

func TestSnapshotSaveAndList(t *testing.T) {
	store := setupSnapshotStore(t)
	ctx := context.Background()
	k := views.Key{DocURI: testDoc, PluginID: "p", ViewID: "a"}

	first, err := store.Save(ctx, testDoc, k, []byte("<svg>1</svg>"))
	require.NoError(t, err)
	second, err := store.Save(ctx, testDoc, k, []byte("<svg>2</svg>"))
	require.NoError(t, err)
	_, err = store.Save(ctx, "file:///other.sysl", k, []byte("x"))
	require.NoError(t, err)

	assert.Less(t, first.ID, second.ID)

	snaps, err := store.List(ctx, testDoc)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, first.ID, snaps[0].ID)
	assert.Equal(t, second.ID, snaps[1].ID)
	assert.Equal(t, k, snaps[1].Key)
	assert.Equal(t, []byte("<svg>2</svg>"), snaps[1].Data)
	assert.True(t, first.CreatedAt.Equal(snaps[0].CreatedAt))
}

func TestSnapshotGetMissing(t *testing.T) {
	store := setupSnapshotStore(t)
	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, redis.Nil)
}
