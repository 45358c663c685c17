// Package views defines the identity and edit types shared by the view
// registry, the plugin routers and the plugins themselves.
//
// # Overview
//
// A view is one rendered instance of a plugin's output for one document. It
// is addressed by a Key, the (document, plugin, view) triple. Keys have a
// canonical string form that is used as a map key by the registry and as the
// wire identity in notifications:
//
//	view+file:///repo/app.sysl?pluginId=diagrams&viewId=integration
//	view:/?viewId=scratch
//
// The document URI keeps its own scheme behind the "view+" prefix. Empty
// fields are omitted so that the absence of a field survives a round trip.
//
// # Models and Edits
//
// View models are opaque plugin payloads carrying a "meta" block with the
// view's key, kind and label. Edits either replace the model ({"model": ...})
// or patch it ({"delta": ...}). Edits batches edits for many views, grouping
// them by key while preserving the order in which they were added:
//
//	edits := views.NewEdits().
//		Set(k, views.Model{"nodes": nodes}).
//		Update(k, views.Delta{"op": "add", "node": n})
//	err := registry.ApplyEdit(ctx, edits.Entries())
package views
