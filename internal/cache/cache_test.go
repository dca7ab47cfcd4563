package cache

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, root string, parts ...string) {
	t.Helper()
	path := filepath.Join(append([]string{root}, parts...)...)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestCache_MissingFolder(t *testing.T) {
	c := New(t.TempDir())

	n, err := c.LastPage("events", false)
	require.NoError(t, err)
	assert.Equal(t, NoPages, n)
}

func TestCache_EmptyFolderIsNotCached(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "events"), 0o755))
	c := New(root)

	n, err := c.LastPage("events", false)
	require.NoError(t, err)
	assert.Equal(t, NoPages, n)

	touch(t, root, "events", "1.ttl")
	n, err = c.LastPage("events", false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCache_MaxLeadingNumber(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"1.ttl", "2.ttl", "10.ttl", "9.ttl", "README", ".page-123.tmp"} {
		touch(t, root, "events", name)
	}

	n, err := New(root).LastPage("events", false)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestCache_SkipsOverlongNumbers(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "events", "2.ttl")
	touch(t, root, "events", "99999999999999999999999.ttl")
	c := New(root)

	n, err := c.LastPage("events", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCache_DescendsNumericSubfolders(t *testing.T) {
	root := t.TempDir()
	for page := 1; page <= 12; page++ {
		bucket := (page - 1) / 5
		touch(t, root, "events", strconv.Itoa(bucket), strconv.Itoa(page)+".ttl")
	}
	// empty higher bucket is skipped
	require.NoError(t, os.MkdirAll(filepath.Join(root, "events", "7"), 0o755))

	n, err := New(root).LastPage("events", true)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestCache_StaleUntilForced(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "events", "1.ttl")
	c := New(root)

	n, err := c.LastPage("events", false)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	touch(t, root, "events", "2.ttl")

	n, err = c.LastPage("events", false)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "cached value is served without a rescan")

	n, err = c.LastPage("events", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.LastPage("events", false)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "forced recompute replaces the entry")
}

func TestCache_InvalidateAndFlush(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "a", "1.ttl")
	touch(t, root, "b", "1.ttl")
	c := New(root)
	_, err := c.LastPage("a", false)
	require.NoError(t, err)
	_, err = c.LastPage("b", false)
	require.NoError(t, err)

	touch(t, root, "a", "2.ttl")
	touch(t, root, "b", "2.ttl")

	c.Invalidate("a")
	n, _ := c.LastPage("a", false)
	assert.Equal(t, 2, n)
	n, _ = c.LastPage("b", false)
	assert.Equal(t, 1, n)

	c.Flush()
	n, _ = c.LastPage("b", false)
	assert.Equal(t, 2, n)
}

func TestCache_ConcurrentLookups(t *testing.T) {
	root := t.TempDir()
	for page := 1; page <= 5; page++ {
		touch(t, root, "events", strconv.Itoa(page)+".ttl")
	}
	c := New(root)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := c.LastPage("events", i%2 == 0)
			assert.NoError(t, err)
			assert.Equal(t, 5, n)
		}()
	}
	wg.Wait()
}

func TestLeadingNumber(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"12.ttl", 12, true},
		{"3", 3, true},
		{"007-old.ttl", 7, true},
		{"page.ttl", 0, false},
		{".page-1.tmp", 0, false},
		{"99999999999999999999999.ttl", 0, false},
	}
	for _, tt := range tests {
		n, ok := leadingNumber(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, n, tt.name)
	}
}
