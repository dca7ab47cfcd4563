package cache

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cache entries when page files appear or disappear
// under a watched folder, including pages written by other tools.
type Watcher struct {
	cache *Cache
	fsw   *fsnotify.Watcher

	mu   sync.Mutex
	dirs map[string]string // watched directory -> folder

	done chan struct{}
}

// NewWatcher starts a Watcher for c. Call Watch for each folder and Close
// when done.
func NewWatcher(c *Cache) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		cache: c,
		fsw:   fsw,
		dirs:  make(map[string]string),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Watch registers folder and every directory below it. The folder is
// created if it does not exist yet. Watching a folder twice is a no-op.
func (w *Watcher) Watch(folder string) error {
	dir := filepath.Join(w.cache.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("watch %s: %w", folder, err)
	}
	return w.addTree(dir, folder)
}

func (w *Watcher) addTree(dir, folder string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		w.mu.Lock()
		_, seen := w.dirs[path]
		if !seen {
			w.dirs[path] = folder
		}
		w.mu.Unlock()
		if seen {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("page watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	// temp files of in-flight writes
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return
	}

	w.mu.Lock()
	folder, ok := w.dirs[filepath.Dir(event.Name)]
	w.mu.Unlock()
	if !ok {
		return
	}

	w.cache.Invalidate(folder)
	slog.Debug("page cache invalidated", "folder", folder, "path", event.Name, "op", event.Op.String())

	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if err := w.addTree(event.Name, folder); err != nil {
				slog.Warn("page watcher could not follow directory", "path", event.Name, "error", err)
			}
		}
	}
}
