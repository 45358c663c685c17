package plugin

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dyluth/vista/internal/config"
)

const (
	// pluginsDir holds workspace plugins, relative to a workspace root.
	pluginsDir = ".vista/plugins"
	// channelDir holds channel plugin directories inside pluginsDir.
	channelDir = "channel"
	// manifestName is the manifest file of a channel plugin directory.
	manifestName = "plugin.yml"
)

// Locator finds the plugins available to a workspace.
//
// Configured plugins come first, in id order. Each workspace directory is
// then searched: executables in .vista/plugins become command plugins and
// .vista/plugins/channel/<id>/plugin.yml manifests become channel plugins.
// The first plugin found with a given id wins.
type Locator struct {
	Configured    []config.Plugin
	WorkspaceDirs []string
	Defaults      config.PluginDefaults
}

// Locate returns every plugin, in order of precedence.
func (l *Locator) Locate() ([]config.Plugin, error) {
	seen := make(map[string]bool)
	var out []config.Plugin

	add := func(p config.Plugin, origin string) {
		if seen[p.ID] {
			log.Printf("[DEBUG] Skipping shadowed plugin: plugin=%s origin=%s", p.ID, origin)
			return
		}
		seen[p.ID] = true
		out = append(out, p)
	}

	for _, p := range l.Configured {
		add(p, "config")
	}

	for _, dir := range l.WorkspaceDirs {
		found, err := l.workspacePlugins(dir)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			add(p, dir)
		}
	}
	return out, nil
}

// workspacePlugins discovers the plugins under one workspace directory,
// sorted by id. Entries that are not valid plugins are logged and skipped.
func (l *Locator) workspacePlugins(dir string) ([]config.Plugin, error) {
	root := filepath.Join(dir, pluginsDir)
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plugins directory %s: %w", root, err)
	}

	var out []config.Plugin
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
			continue
		}

		name := entry.Name()
		p := config.Plugin{
			ID:      strings.TrimSuffix(name, filepath.Ext(name)),
			Kind:    config.KindCommand,
			Command: []string{filepath.Join(root, name)},
			Dir:     dir,
		}
		if err := p.Validate(l.Defaults); err != nil {
			log.Printf("[WARN] Ignoring workspace plugin: path=%s error=%v", p.Command[0], err)
			continue
		}
		out = append(out, p)
	}

	channels, err := l.channelPlugins(filepath.Join(root, channelDir))
	if err != nil {
		return nil, err
	}
	out = append(out, channels...)

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *Locator) channelPlugins(root string) ([]config.Plugin, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read channel plugins directory %s: %w", root, err)
	}

	var out []config.Plugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pluginDir := filepath.Join(root, entry.Name())
		manifest := filepath.Join(pluginDir, manifestName)
		if _, err := os.Stat(manifest); err != nil {
			continue
		}

		p, err := config.LoadPlugin(manifest, entry.Name(), l.Defaults)
		if err != nil {
			log.Printf("[WARN] Ignoring channel plugin: path=%s error=%v", manifest, err)
			continue
		}
		if p.Kind != config.KindChannel {
			log.Printf("[WARN] Ignoring channel plugin: path=%s error=kind must be '%s'", manifest, config.KindChannel)
			continue
		}
		if p.Dir == "" {
			p.Dir = pluginDir
		} else if !filepath.IsAbs(p.Dir) {
			p.Dir = filepath.Join(pluginDir, p.Dir)
		}
		out = append(out, *p)
	}
	return out, nil
}
