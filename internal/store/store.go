package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/tree"
	"github.com/roach88/ldes/internal/triple"
)

// Store reads and writes page files relative to a root directory.
type Store struct {
	root  string
	codec triple.Codec

	mu      sync.RWMutex
	content map[string][]byte
}

// New returns a Store rooted at root. Paths passed to its methods are
// relative to root (see Layout.Path).
func New(root string, codec triple.Codec) *Store {
	return &Store{
		root:    root,
		codec:   codec,
		content: make(map[string][]byte),
	}
}

// Root returns the directory the store writes under.
func (s *Store) Root() string { return s.root }

// ReadPage returns the raw bytes of a page file. A missing file is NotFound.
func (s *Store) ReadPage(path string) ([]byte, error) {
	s.mu.RLock()
	b, ok := s.content[path]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}

	b, err := os.ReadFile(filepath.Join(s.root, path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.New(errs.CodeNotFound, "read page", "page file does not exist").WithPath(path)
		}
		return nil, fmt.Errorf("read page %s: %w", path, err)
	}

	s.mu.Lock()
	s.content[path] = b
	s.mu.Unlock()
	return b, nil
}

// ReadNode reads and parses the page at path.
func (s *Store) ReadNode(ctx context.Context, path string) (*tree.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := s.ReadPage(path)
	if err != nil {
		return nil, err
	}

	ts, err := s.codec.Parse(bytes.NewReader(b), triple.ContentTypeTurtle, "")
	if err != nil {
		return nil, errs.Wrap(errs.CodeStructuralCorruption, "read node", err).WithPath(path)
	}
	n, err := tree.FromGraph(triple.NewGraph(ts...))
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			e.Path = path
		}
		return nil, err
	}
	return n, nil
}

// WriteNode atomically replaces the page at path with node.
// On failure the previous content is intact and the error is PartialWrite.
func (s *Store) WriteNode(ctx context.Context, node *tree.Node, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := s.codec.Serialize(&buf, node.Triples(), triple.ContentTypeTurtle); err != nil {
		return errs.Wrap(errs.CodePartialWrite, "write node", err).WithPath(path)
	}
	if err := s.writeAtomic(path, buf.Bytes()); err != nil {
		return errs.Wrap(errs.CodePartialWrite, "write node", err).WithPath(path)
	}

	s.mu.Lock()
	s.content[path] = buf.Bytes()
	s.mu.Unlock()

	slog.Debug("page written", "path", path, "members", node.Count(), "relations", len(node.Relations()))
	return nil
}

func (s *Store) writeAtomic(path string, data []byte) error {
	full := filepath.Join(s.root, path)
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create page dir %q: %w", dir, err)
	}

	// Temp names start with a dot so page scans never mistake them for pages.
	f, err := os.CreateTemp(dir, ".page-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp page: %w", err)
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp page %q: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp page %q: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp page %q: %w", tmp, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chmod temp page %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %q -> %q: %w", tmp, full, err)
	}
	return nil
}

// Remove deletes the page at path. Removing a missing page is not an error.
func (s *Store) Remove(path string) error {
	s.mu.Lock()
	delete(s.content, path)
	s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.root, path)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove page %s: %w", path, err)
	}
	return nil
}

// Flush drops every cached page body.
func (s *Store) Flush() {
	s.mu.Lock()
	s.content = make(map[string][]byte)
	s.mu.Unlock()
}
