package surface

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/vista/pkg/protocol"
	"github.com/dyluth/vista/pkg/views"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// Snapshot is an image or serialized rendering captured by a surface.
type Snapshot struct {
	ID        string    `json:"id"`
	DocURI    string    `json:"docUri"`
	Key       views.Key `json:"key"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
}

// SnapshotStore keeps snapshots in Redis, indexed per document in the
// order they were taken.
type SnapshotStore struct {
	rdb      *redis.Client
	instance string
}

// NewSnapshotStore creates a store namespaced by instance.
func NewSnapshotStore(rdb *redis.Client, instance string) (*SnapshotStore, error) {
	if instance == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	return &SnapshotStore{rdb: rdb, instance: instance}, nil
}

// Save stores data as a new snapshot of the view at key.
func (s *SnapshotStore) Save(ctx context.Context, docURI string, key views.Key, data []byte) (Snapshot, error) {
	id := ulid.Make()
	snap := Snapshot{
		ID:        id.String(),
		DocURI:    docURI,
		Key:       key,
		Data:      data,
		CreatedAt: ulid.Time(id.Time()).UTC(),
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, protocol.SnapshotKey(s.instance, snap.ID), map[string]any{
		"doc_uri":    snap.DocURI,
		"key":        snap.Key.String(),
		"data":       snap.Data,
		"created_at": snap.CreatedAt.Format(time.RFC3339Nano),
	})
	pipe.ZAdd(ctx, protocol.SnapshotIndexKey(s.instance, docURI), redis.Z{
		Score:  float64(id.Time()),
		Member: snap.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return snap, nil
}

// Get returns the snapshot with id. It returns redis.Nil if there is none.
func (s *SnapshotStore) Get(ctx context.Context, id string) (Snapshot, error) {
	fields, err := s.rdb.HGetAll(ctx, protocol.SnapshotKey(s.instance, id)).Result()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(fields) == 0 {
		return Snapshot{}, redis.Nil
	}

	key, err := views.ParseKey(fields["key"])
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse snapshot key: %w", err)
	}
	created, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse snapshot time: %w", err)
	}

	return Snapshot{
		ID:        id,
		DocURI:    fields["doc_uri"],
		Key:       key,
		Data:      []byte(fields["data"]),
		CreatedAt: created,
	}, nil
}

// List returns the snapshots of a document, oldest first.
func (s *SnapshotStore) List(ctx context.Context, docURI string) ([]Snapshot, error) {
	ids, err := s.rdb.ZRange(ctx, protocol.SnapshotIndexKey(s.instance, docURI), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot %s: %w", id, err)
		}
		out = append(out, snap)
	}
	return out, nil
}
