package protocol

import "fmt"

// Redis key and channel helpers.
//
// All keys and Pub/Sub channels are namespaced by instance name so several
// vista instances can share one Redis server.
//
// Key pattern: vista:{instance}:{entity}:{id}

// PluginInboundChannel carries notifications from vista to a plugin.
// Pattern: vista:{instance}:plugin:{plugin_id}:inbound
func PluginInboundChannel(instance, pluginID string) string {
	return fmt.Sprintf("vista:%s:plugin:%s:inbound", instance, pluginID)
}

// PluginOutboundChannel carries notifications from a plugin to vista.
// Pattern: vista:{instance}:plugin:{plugin_id}:outbound
func PluginOutboundChannel(instance, pluginID string) string {
	return fmt.Sprintf("vista:%s:plugin:%s:outbound", instance, pluginID)
}

// SnapshotKey returns the hash holding one saved snapshot.
// Pattern: vista:{instance}:snapshot:{snapshot_id}
func SnapshotKey(instance, snapshotID string) string {
	return fmt.Sprintf("vista:%s:snapshot:%s", instance, snapshotID)
}

// SnapshotIndexKey returns the sorted set of snapshot IDs for a document.
// Pattern: vista:{instance}:snapshots:{doc_uri}
func SnapshotIndexKey(instance, docURI string) string {
	return fmt.Sprintf("vista:%s:snapshots:%s", instance, docURI)
}
