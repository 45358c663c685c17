package views

import (
	"encoding/json"
	"fmt"
)

// Edit changes the model of a view. Exactly one of Model or Delta is set:
// a Model replaces the whole content, a Delta patches it.
type Edit struct {
	Model Model `json:"model,omitempty"`
	Delta Delta `json:"delta,omitempty"`
}

// SetModel returns an edit replacing a view's model.
func SetModel(m Model) Edit { return Edit{Model: m} }

// UpdateModel returns an edit applying delta to a view's model.
func UpdateModel(d Delta) Edit { return Edit{Delta: d} }

// IsDelta reports whether the edit is an incremental update.
func (e Edit) IsDelta() bool {
	return e.Model == nil && e.Delta != nil
}

// Validate checks that exactly one of model or delta is present.
func (e Edit) Validate() error {
	if e.Model == nil && e.Delta == nil {
		return fmt.Errorf("edit must have either model or delta")
	}
	if e.Model != nil && e.Delta != nil {
		return fmt.Errorf("edit cannot have both model and delta")
	}
	return nil
}

// KeyedEdits is the list of edits for one view, in application order.
// On the wire it is the tuple [key, [edit, ...]].
type KeyedEdits struct {
	Key   Key
	Edits []Edit
}

// MarshalJSON encodes the entry as a two element array.
func (ke KeyedEdits) MarshalJSON() ([]byte, error) {
	edits := ke.Edits
	if edits == nil {
		edits = []Edit{}
	}
	return json.Marshal([]any{ke.Key, edits})
}

// UnmarshalJSON decodes the [key, [edit, ...]] tuple.
func (ke *KeyedEdits) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return fmt.Errorf("failed to decode keyed edits: %w", err)
	}
	if len(tuple) != 2 {
		return fmt.Errorf("keyed edits must have 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &ke.Key); err != nil {
		return fmt.Errorf("failed to decode view key: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &ke.Edits); err != nil {
		return fmt.Errorf("failed to decode edits for %s: %w", ke.Key, err)
	}
	return nil
}

type editEntry struct {
	key  Key
	edit Edit
}

// Edits collects edits for several views. The zero value is ready to use.
type Edits struct {
	entries []editEntry
}

// NewEdits returns an empty batch.
func NewEdits() *Edits {
	return &Edits{}
}

// Set adds an edit replacing the model of the view at key.
func (e *Edits) Set(key Key, model Model) *Edits {
	e.entries = append(e.entries, editEntry{key: key, edit: SetModel(model)})
	return e
}

// Update adds an edit applying delta to the view at key.
func (e *Edits) Update(key Key, delta Delta) *Edits {
	e.entries = append(e.entries, editEntry{key: key, edit: UpdateModel(delta)})
	return e
}

// Len returns the number of edits added to the batch.
func (e *Edits) Len() int {
	return len(e.entries)
}

// Entries groups the batch by key. Keys appear in the order they were first
// edited and each key's edits keep the order they were added in.
func (e *Edits) Entries() []KeyedEdits {
	index := make(map[Key]int)
	var out []KeyedEdits
	for _, entry := range e.entries {
		i, ok := index[entry.key]
		if !ok {
			i = len(out)
			index[entry.key] = i
			out = append(out, KeyedEdits{Key: entry.key})
		}
		out[i].Edits = append(out[i].Edits, entry.edit)
	}
	return out
}

// MarshalJSON encodes the grouped entries.
func (e *Edits) MarshalJSON() ([]byte, error) {
	entries := e.Entries()
	if entries == nil {
		entries = []KeyedEdits{}
	}
	return json.Marshal(entries)
}
