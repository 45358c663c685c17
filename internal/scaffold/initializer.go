// Package scaffold creates the files of a new vista workspace.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/vista/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// ExamplePlugin is the path of the example plugin, relative to the
// workspace root.
var ExamplePlugin = filepath.Join(".vista", "plugins", "example.sh")

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes vista.yml and an example plugin into dir.
// If force is true, existing files are overwritten.
func Initialize(dir string, force bool) ([]FileInfo, error) {
	if !force {
		if err := CheckExisting(dir); err != nil {
			return nil, err
		}
	}

	files, err := templateFiles()
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		path := filepath.Join(dir, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(f.Path), err)
		}
		if err := os.WriteFile(path, f.Content, f.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
		// WriteFile keeps the mode of an existing file.
		if err := os.Chmod(path, f.Permissions); err != nil {
			return nil, fmt.Errorf("failed to set permissions on %s: %w", f.Path, err)
		}
	}

	if _, err := config.Load(filepath.Join(dir, config.FileName)); err != nil {
		return nil, fmt.Errorf("created %s is invalid: %w", config.FileName, err)
	}
	return files, nil
}

func templateFiles() ([]FileInfo, error) {
	sources := []struct {
		template string
		path     string
		perm     os.FileMode
	}{
		{"templates/vista.yml.tmpl", config.FileName, 0o644},
		{"templates/example.sh.tmpl", ExamplePlugin, 0o755},
	}

	files := make([]FileInfo, 0, len(sources))
	for _, s := range sources {
		content, err := templatesFS.ReadFile(s.template)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", s.path, err)
		}
		files = append(files, FileInfo{Path: s.path, Content: content, Permissions: s.perm})
	}
	return files, nil
}
