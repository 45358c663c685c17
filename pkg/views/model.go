package views

import "maps"

// Kinds of view reported in Meta.Kind.
const (
	KindDiagram = "diagram"
	KindTable   = "table"
	KindHTML    = "html"
)

const metaField = "meta"

// Meta is the part of a view model that the host understands.
type Meta struct {
	Key   Key    `json:"key"`
	Kind  string `json:"kind,omitempty"`
	Label string `json:"label,omitempty"`
}

// Model is the full content of a view. Everything other than the "meta"
// entry belongs to the plugin and is passed through untouched.
type Model map[string]any

// Meta returns the model's meta block. Missing or malformed fields are left
// zero. Both the typed form and the decoded-JSON form are understood.
func (m Model) Meta() Meta {
	return metaOf(m)
}

// WithMeta returns a shallow copy of m carrying meta.
func (m Model) WithMeta(meta Meta) Model {
	out := make(Model, len(m)+1)
	maps.Copy(out, m)
	out[metaField] = meta
	return out
}

// WithKey returns a shallow copy of m whose meta block names key.
// The kind and label already present are kept.
func (m Model) WithKey(key Key) Model {
	meta := m.Meta()
	meta.Key = key
	return m.WithMeta(meta)
}

// IsDiagram reports whether the model looks like node/edge diagram content.
func (m Model) IsDiagram() bool {
	if m.Meta().Kind == KindDiagram {
		return true
	}
	_, nodes := m["nodes"]
	_, edges := m["edges"]
	return nodes && edges
}

// Delta is an incremental, plugin-defined change to a view model.
type Delta map[string]any

// WithKey returns a shallow copy of d whose meta block names key.
func (d Delta) WithKey(key Key) Delta {
	meta := metaOf(d)
	meta.Key = key
	out := make(Delta, len(d)+1)
	maps.Copy(out, d)
	out[metaField] = meta
	return out
}

func metaOf(m map[string]any) Meta {
	switch v := m[metaField].(type) {
	case Meta:
		return v
	case *Meta:
		if v != nil {
			return *v
		}
	case map[string]any:
		var meta Meta
		meta.Kind, _ = v["kind"].(string)
		meta.Label, _ = v["label"].(string)
		switch k := v["key"].(type) {
		case Key:
			meta.Key = k
		case string:
			meta.Key, _ = ParseKey(k)
		case map[string]any:
			meta.Key.DocURI, _ = k["docUri"].(string)
			meta.Key.PluginID, _ = k["pluginId"].(string)
			meta.Key.ViewID, _ = k["viewId"].(string)
		}
		return meta
	}
	return Meta{}
}
