package views

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	keyScheme      = "view"
	emptyDocPrefix = keyScheme + ":/"
	docPrefix      = keyScheme + "+"
)

var (
	docEscaper   = strings.NewReplacer("%", "%25", "?", "%3F")
	docUnescaper = strings.NewReplacer("%3F", "?", "%3f", "?", "%25", "%")
)

// Key identifies a single view: the document it represents, the plugin that
// owns it and the plugin's own identifier for it.
// Keys are comparable values and never change once created.
type Key struct {
	DocURI   string `json:"docUri"`
	PluginID string `json:"pluginId"`
	ViewID   string `json:"viewId"`
}

// String returns the canonical form of the key.
// ParseKey(k.String()) returns k for every key.
func (k Key) String() string {
	var b strings.Builder
	if k.DocURI == "" {
		b.WriteString(emptyDocPrefix)
	} else {
		b.WriteString(docPrefix)
		b.WriteString(docEscaper.Replace(k.DocURI))
	}

	q := url.Values{}
	if k.PluginID != "" {
		q.Set("pluginId", k.PluginID)
	}
	if k.ViewID != "" {
		q.Set("viewId", k.ViewID)
	}
	if len(q) > 0 {
		b.WriteByte('?')
		b.WriteString(q.Encode())
	}
	return b.String()
}

// IsZero reports whether no field of the key is set.
func (k Key) IsZero() bool {
	return k == Key{}
}

// ParseKey parses the canonical form produced by Key.String.
func ParseKey(s string) (Key, error) {
	var rest string
	var hasDoc bool
	switch {
	case strings.HasPrefix(s, docPrefix):
		rest, hasDoc = s[len(docPrefix):], true
	case strings.HasPrefix(s, emptyDocPrefix):
		rest = s[len(emptyDocPrefix):]
	default:
		return Key{}, fmt.Errorf("invalid view key %q: missing %q scheme", s, keyScheme)
	}

	doc, query, _ := strings.Cut(rest, "?")
	if !hasDoc && doc != "" {
		return Key{}, fmt.Errorf("invalid view key %q: unexpected path %q", s, doc)
	}
	if hasDoc && doc == "" {
		return Key{}, fmt.Errorf("invalid view key %q: empty document", s)
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return Key{}, fmt.Errorf("invalid view key %q: %w", s, err)
	}

	return Key{
		DocURI:   docUnescaper.Replace(doc),
		PluginID: values.Get("pluginId"),
		ViewID:   values.Get("viewId"),
	}, nil
}

// MustParseKey is like ParseKey but panics on malformed input.
// Intended for constants and tests.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}
