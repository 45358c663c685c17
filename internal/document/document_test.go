package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleDocument(t *testing.T) {
	doc := NewSimpleDocument("file:///repo/app.sysl", "App:\n  ...")

	assert.Equal(t, "file:///repo/app.sysl", doc.URI())
	assert.Equal(t, filepath.FromSlash("/repo/app.sysl"), doc.Path())
	assert.Equal(t, "sysl", doc.LanguageID())
	assert.Equal(t, 1, doc.Version())
	assert.Equal(t, "App:\n  ...", doc.Text())

	next := doc.WithText("App2:\n  ...")
	assert.Equal(t, 2, next.Version())
	assert.Equal(t, "App2:\n  ...", next.Text())
	assert.Equal(t, 1, doc.Version(), "original must not change")
}

func TestURIPathConversion(t *testing.T) {
	assert.Equal(t, "file:///tmp/a%20b.sysl", URIFromPath("/tmp/a b.sysl"))
	assert.Equal(t, filepath.FromSlash("/tmp/a b.sysl"), PathFromURI("file:///tmp/a%20b.sysl"))
	assert.Equal(t, "untitled:1", PathFromURI("untitled:1"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.sysl")
	require.NoError(t, os.WriteFile(path, []byte("App:\n  ..."), 0644))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Path())
	assert.Equal(t, "App:\n  ...", doc.Text())

	_, err = Load(filepath.Join(dir, "missing.sysl"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read document")
}
