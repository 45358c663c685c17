// Package document provides the document abstraction consumed by plugins
// and the shared source of document events.
package document

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Document is a snapshot of a source document.
type Document interface {
	URI() string
	Path() string
	LanguageID() string
	Version() int
	Text() string
}

// SimpleDocument is an immutable in-memory Document.
type SimpleDocument struct {
	uri        string
	languageID string
	version    int
	text       string
}

// NewSimpleDocument creates a document with the given URI and content.
// The language is derived from the file extension.
func NewSimpleDocument(uri, text string) *SimpleDocument {
	return &SimpleDocument{
		uri:        uri,
		languageID: languageFor(uri),
		version:    1,
		text:       text,
	}
}

// WithText returns a copy of d with new content and the next version.
func (d *SimpleDocument) WithText(text string) *SimpleDocument {
	next := *d
	next.text = text
	next.version++
	return &next
}

func (d *SimpleDocument) URI() string        { return d.uri }
func (d *SimpleDocument) LanguageID() string { return d.languageID }
func (d *SimpleDocument) Version() int       { return d.version }
func (d *SimpleDocument) Text() string       { return d.text }

// Path returns the filesystem path for file URIs, or the URI itself.
func (d *SimpleDocument) Path() string {
	return PathFromURI(d.uri)
}

// Load reads a file from disk into a SimpleDocument.
func Load(path string) (*SimpleDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	return NewSimpleDocument(URIFromPath(abs), string(data)), nil
}

// URIFromPath converts an absolute filesystem path to a file URI.
func URIFromPath(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// PathFromURI converts a file URI back to a filesystem path.
// Non-file URIs are returned unchanged.
func PathFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return filepath.FromSlash(u.Path)
}

func languageFor(uri string) string {
	ext := strings.TrimPrefix(filepath.Ext(PathFromURI(uri)), ".")
	if ext == "" {
		return "plaintext"
	}
	return ext
}
