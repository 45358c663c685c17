package protocol

import (
	"encoding/json"

	"github.com/dyluth/vista/pkg/views"
)

// Surface message types sent to a presentation surface.
const (
	SurfaceRender = "render"
	SurfaceUpdate = "update"
)

// Surface message types received from a presentation surface.
const (
	SurfaceDidOpen   = MethodViewDidOpen
	SurfaceDidClose  = MethodViewDidClose
	SurfaceDidChange = MethodViewDidChange
	SurfaceDidShow   = MethodViewDidShow
	SurfaceDidHide   = MethodViewDidHide
	SurfaceSnapshot  = "view/snapshot"
)

// SurfaceMessage is exchanged with a presentation surface. Outgoing render
// and update messages carry the view key inside the model's meta block so
// the surface can route them to the right child.
type SurfaceMessage struct {
	Type  string          `json:"type"`
	Key   *views.Key      `json:"key,omitempty"`
	Model views.Model     `json:"model,omitempty"`
	Delta views.Delta     `json:"delta,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ViewKey returns the key the message concerns, falling back to the key in
// the model or delta meta block.
func (m SurfaceMessage) ViewKey() views.Key {
	if m.Key != nil {
		return *m.Key
	}
	if m.Model != nil {
		return m.Model.Meta().Key
	}
	if m.Delta != nil {
		return views.Model(m.Delta).Meta().Key
	}
	return views.Key{}
}
