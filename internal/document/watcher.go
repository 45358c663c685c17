package document

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/dyluth/vista/internal/event"
	"github.com/fsnotify/fsnotify"
)

// FileWatcher is a Producer that turns filesystem activity into document
// events. A write fires a change, a create fires a save (editors commonly
// save by renaming a temporary file over the original), and a remove or
// rename away fires a close for documents the source has seen.
type FileWatcher struct {
	paths      []string
	extensions []string
}

// NewFileWatcher watches the given files and directories. Directories are
// watched non-recursively. When extensions are given (e.g. ".sysl"), files
// with other extensions are ignored.
func NewFileWatcher(paths []string, extensions ...string) *FileWatcher {
	return &FileWatcher{paths: paths, extensions: extensions}
}

// Start begins watching and feeding src.
func (w *FileWatcher) Start(src *Source) (event.Disposable, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dirs := make(map[string]bool)
	files := make(map[string]bool)
	for _, p := range w.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("failed to resolve path %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("failed to stat %s: %w", abs, err)
		}

		dir := abs
		if info.IsDir() {
			dirs[abs] = true
		} else {
			files[abs] = true
			dir = filepath.Dir(abs)
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if !dirs[filepath.Dir(ev.Name)] && !files[ev.Name] {
					continue
				}
				if !w.matches(ev.Name) {
					continue
				}
				w.handle(src, ev)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Printf("[WARN] File watcher error: %v", err)
			}
		}
	}()

	return event.DisposeFunc(func() {
		fsw.Close()
		wg.Wait()
	}), nil
}

func (w *FileWatcher) matches(name string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	return slices.Contains(w.extensions, filepath.Ext(name))
}

func (w *FileWatcher) handle(src *Source, ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Write):
		doc, err := Load(ev.Name)
		if err != nil {
			log.Printf("[WARN] Failed to load changed document: path=%s error=%v", ev.Name, err)
			return
		}
		src.FireChange(doc)
	case ev.Has(fsnotify.Create):
		doc, err := Load(ev.Name)
		if err != nil {
			log.Printf("[WARN] Failed to load saved document: path=%s error=%v", ev.Name, err)
			return
		}
		src.FireSave(doc)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if doc, ok := src.Find(URIFromPath(ev.Name)); ok {
			src.FireClose(doc)
		}
	}
}
