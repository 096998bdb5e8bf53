package watch

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fsWatcher wraps fsnotify with recursive directory registration. New
// directories created below a recursively watched one are added as they
// appear.
type fsWatcher struct {
	w *fsnotify.Watcher

	mu        sync.Mutex
	paths     map[string]bool
	recursive map[string]bool
}

func newFSWatcher() (*fsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fsWatcher{w: w, paths: make(map[string]bool), recursive: make(map[string]bool)}, nil
}

// watch registers dir alone.
func (f *fsWatcher) watch(dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paths[dir] {
		return nil
	}
	if err := f.w.Add(dir); err != nil {
		return err
	}
	f.paths[dir] = true
	return nil
}

// watchRecursive registers dir and every directory below it. A missing dir
// is not an error.
func (f *fsWatcher) watchRecursive(dir string) error {
	f.mu.Lock()
	f.recursive[dir] = true
	f.mu.Unlock()

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && ignored(d.Name()) {
			return filepath.SkipDir
		}
		return f.watch(p)
	})
	return err
}

// created handles a Create event: directories inside a recursive root are
// registered along with their subtree.
func (f *fsWatcher) created(p string) {
	info, err := os.Stat(p)
	if err != nil || !info.IsDir() {
		return
	}
	f.mu.Lock()
	under := false
	for root := range f.recursive {
		if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
			under = true
			break
		}
	}
	f.mu.Unlock()
	if under {
		_ = f.watchRecursive(p)
	}
}

// watched returns the number of registered directories.
func (f *fsWatcher) watched() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

func (f *fsWatcher) close() error {
	return f.w.Close()
}

// ignored reports editor swap files, backups and hidden entries.
func ignored(name string) bool {
	switch {
	case name == "":
		return false
	case strings.HasPrefix(name, "."):
		return true
	case strings.HasSuffix(name, "~"):
		return true
	case strings.HasSuffix(name, ".swp"), strings.HasSuffix(name, ".swx"), strings.HasSuffix(name, ".tmp"):
		return true
	}
	return false
}
