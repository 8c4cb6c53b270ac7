// Package watcher turns filesystem notifications into the change events a
// live reindex consumes: create/modify/delete per path, debounced so one
// save burst becomes one batch.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Operation classifies one change event.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is one filesystem change, with Path relative to the watched root.
type Event struct {
	Path string
	Op   Operation
}

// skippedDirs are never watched; they churn constantly and are never
// indexed anyway.
var skippedDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".codeintel": true,
	"dist": true, "build": true, "target": true, "__pycache__": true,
}

// Watcher follows a root recursively. New directories are added to the
// watch as they appear.
type Watcher struct {
	root  string
	inner *fsnotify.Watcher
}

// New builds a watcher over root and registers every existing directory.
func New(root string) (*Watcher, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{root: root, inner: inner}
	if err := w.addRecursive(root); err != nil {
		inner.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtrees are skipped, not fatal
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (skippedDirs[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		return w.inner.Add(path)
	})
}

// Events streams change events until ctx is cancelled. The channel closes
// on return.
func (w *Watcher) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 128)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-w.inner.Events:
				if !ok {
					return
				}
				if e, keep := w.translate(ev); keep {
					select {
					case out <- e:
					case <-ctx.Done():
						return
					}
				}

			case _, ok := <-w.inner.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out
}

// translate maps one fsnotify event onto the contract, growing the watch
// when a directory appears.
func (w *Watcher) translate(ev fsnotify.Event) (Event, bool) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Event{}, false
	}
	for _, seg := range strings.Split(filepath.ToSlash(rel), "/") {
		if skippedDirs[seg] || (seg != "." && strings.HasPrefix(seg, ".")) {
			return Event{}, false
		}
	}

	switch {
	case ev.Has(fsnotify.Create):
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			_ = w.addRecursive(ev.Name)
			return Event{}, false
		}
		return Event{Path: filepath.ToSlash(rel), Op: OpCreate}, true
	case ev.Has(fsnotify.Write):
		return Event{Path: filepath.ToSlash(rel), Op: OpModify}, true
	case ev.Has(fsnotify.Remove):
		return Event{Path: filepath.ToSlash(rel), Op: OpDelete}, true
	case ev.Has(fsnotify.Rename):
		return Event{Path: filepath.ToSlash(rel), Op: OpRename}, true
	}
	return Event{}, false
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	return w.inner.Close()
}
