// Package cache tracks the highest page number of each folder.
//
// Lookups are served from memory and may be stale-low: pages written since
// the value was cached are not reflected until the entry is invalidated or a
// forced recompute runs. Callers that must not act on a stale value (the
// fragmenter resolving its tail, a reader asking for a page past the cached
// end) pass force=true.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// NoPages is returned for a folder without numbered page files. It is
// distinct from any real page number.
const NoPages = -1

// Cache maps folder names to their last page number.
type Cache struct {
	root string

	mu    sync.RWMutex
	last  map[string]int
	group singleflight.Group
}

// New returns an empty Cache over folders under root.
func New(root string) *Cache {
	return &Cache{
		root: root,
		last: make(map[string]int),
	}
}

// LastPage returns the highest page number in folder.
//
// With force=false a cached value is returned as is. On a miss, or with
// force=true, the folder is listed and the result replaces the cached entry.
// A missing or empty folder yields NoPages, which is never cached.
// Concurrent recomputes of one folder share a single directory scan.
func (c *Cache) LastPage(folder string, force bool) (int, error) {
	if !force {
		c.mu.RLock()
		n, ok := c.last[folder]
		c.mu.RUnlock()
		if ok {
			return n, nil
		}
	}

	v, err, _ := c.group.Do(folder, func() (any, error) {
		n, err := scan(filepath.Join(c.root, folder))
		if err != nil {
			return NoPages, fmt.Errorf("last page of %s: %w", folder, err)
		}
		if n != NoPages {
			c.mu.Lock()
			c.last[folder] = n
			c.mu.Unlock()
		}
		slog.Debug("last page computed", "folder", folder, "page", n)
		return n, nil
	})
	if err != nil {
		return NoPages, err
	}
	return v.(int), nil
}

// Invalidate drops the cached entry of folder.
func (c *Cache) Invalidate(folder string) {
	c.mu.Lock()
	delete(c.last, folder)
	c.mu.Unlock()
}

// Flush drops every cached entry.
func (c *Cache) Flush() {
	c.mu.Lock()
	c.last = make(map[string]int)
	c.mu.Unlock()
}

// scan returns the highest leading number among the files in dir. Numeric
// subdirectories are visited highest first, and the first one holding pages
// decides, matching the bucketing of store.Layout.
func scan(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NoPages, nil
		}
		return NoPages, err
	}

	type subdir struct {
		n    int
		name string
	}
	best := NoPages
	var subdirs []subdir
	for _, e := range entries {
		n, ok := leadingNumber(e.Name())
		if !ok {
			continue
		}
		if e.IsDir() {
			subdirs = append(subdirs, subdir{n: n, name: e.Name()})
			continue
		}
		best = max(best, n)
	}

	sort.Slice(subdirs, func(i, j int) bool { return subdirs[i].n > subdirs[j].n })
	for _, d := range subdirs {
		n, err := scan(filepath.Join(dir, d.name))
		if err != nil {
			return NoPages, err
		}
		if n != NoPages {
			best = max(best, n)
			break
		}
	}
	return best, nil
}

// leadingNumber parses the decimal digits a name starts with. A run of
// digits too long for an int is not a page number.
func leadingNumber(name string) (int, bool) {
	i := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(name[:i])
	if err != nil {
		return 0, false
	}
	return n, true
}
