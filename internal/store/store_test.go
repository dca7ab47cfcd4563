package store

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/tree"
	"github.com/roach88/ldes/internal/triple"
)

const testBase = "http://localhost/"

func createTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), triple.RDFCodec{})
}

func createTestNode(page, members int) *tree.Node {
	n := tree.NewNode(
		triple.IRI(tree.PageIRI(testBase, "events", page)),
		triple.IRI(tree.StreamIRI(testBase, "events")),
		triple.IRI(tree.PageIRI(testBase, "events", 1)),
	)
	for i := 1; i <= members; i++ {
		id := triple.IRI("http://example.org/items/" + string(rune('a'+i-1)))
		n.AddMember(tree.Resource{ID: id, Data: []triple.Triple{
			triple.T(id, triple.IRI(tree.NSDCT+"title"), triple.Literal("item", "")),
			triple.T(id, tree.GeneratedAtTime, triple.Literal("2024-01-01T00:00:00Z", tree.XSDDateTime)),
		}})
	}
	return n
}

func TestStore_WriteThenReadNode(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	n := createTestNode(1, 3)
	n.AddRelation(tree.Relation{
		ID:     tree.RelationID("0191f3a0-0000-7000-8000-000000000001"),
		Type:   tree.GreaterThanOrEqualToRelation,
		Value:  triple.Literal("2024-01-01T00:00:00Z", tree.XSDDateTime),
		Target: triple.IRI(tree.PageIRI(testBase, "events", 2)),
		Path:   tree.GeneratedAtTime,
	})
	path := Layout{}.Path("events", 1)
	require.NoError(t, s.WriteNode(ctx, n, path))

	// read through a fresh store so the page is parsed from disk
	got, err := New(s.Root(), triple.RDFCodec{}).ReadNode(ctx, path)
	require.NoError(t, err)

	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, n.Stream, got.Stream)
	assert.Equal(t, n.View, got.View)
	assert.Equal(t, n.Relations(), got.Relations())
	require.Equal(t, 3, got.Count())
	for i, m := range n.Members() {
		assert.Equal(t, m.ID, got.Members()[i].ID)
		assert.ElementsMatch(t, m.Data, got.Members()[i].Data)
	}
}

func TestStore_WriteLeavesNoTempFiles(t *testing.T) {
	s := createTestStore(t)
	path := Layout{MaxNodeCountPerSubFolder: 10, FolderDepth: 2}.Path("events", 1)
	require.NoError(t, s.WriteNode(context.Background(), createTestNode(1, 1), path))

	entries, err := os.ReadDir(filepath.Dir(filepath.Join(s.Root(), path)))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1.ttl", entries[0].Name())
}

type failingCodec struct{ triple.RDFCodec }

func (failingCodec) Serialize(io.Writer, []triple.Triple, string) error {
	return errors.New("encoder exploded")
}

func TestStore_FailedWriteKeepsPreviousPage(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	path := Layout{}.Path("events", 1)
	require.NoError(t, s.WriteNode(ctx, createTestNode(1, 1), path))
	before, err := os.ReadFile(filepath.Join(s.Root(), path))
	require.NoError(t, err)

	broken := New(s.Root(), failingCodec{})
	err = broken.WriteNode(ctx, createTestNode(1, 2), path)
	require.Error(t, err)
	assert.True(t, errs.IsPartialWrite(err))

	after, err := os.ReadFile(filepath.Join(s.Root(), path))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_ReadMissingPage(t *testing.T) {
	s := createTestStore(t)
	_, err := s.ReadNode(context.Background(), "events/9.ttl")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestStore_ReadCorruptPage(t *testing.T) {
	s := createTestStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "events"), 0o755))

	tests := []struct {
		name    string
		content string
	}{
		{"unparsable", "<http://example.org/a> \"not a predicate\" <http://example.org/b> .\n"},
		{"no identity", "<http://example.org/a> <http://purl.org/dc/terms/title> \"x\" .\n"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := Layout{}.Path("events", i+1)
			require.NoError(t, os.WriteFile(filepath.Join(s.Root(), path), []byte(tt.content), 0o644))

			_, err := s.ReadNode(context.Background(), path)
			require.Error(t, err)
			assert.True(t, errs.IsStructuralCorruption(err))
			assert.Contains(t, err.Error(), path)
		})
	}
}

func TestStore_ContentCacheAndFlush(t *testing.T) {
	s := createTestStore(t)
	path := Layout{}.Path("events", 1)
	require.NoError(t, s.WriteNode(context.Background(), createTestNode(1, 1), path))

	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), path), []byte("replaced"), 0o644))

	cached, err := s.ReadPage(path)
	require.NoError(t, err)
	assert.NotEqual(t, "replaced", string(cached))

	s.Flush()
	fresh, err := s.ReadPage(path)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(fresh))
}

func TestStore_Remove(t *testing.T) {
	s := createTestStore(t)
	path := Layout{}.Path("events", 1)
	require.NoError(t, s.WriteNode(context.Background(), createTestNode(1, 1), path))

	require.NoError(t, s.Remove(path))
	require.NoError(t, s.Remove(path))

	_, err := s.ReadPage(path)
	assert.True(t, errs.IsNotFound(err))
}

func TestStore_CanceledContext(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.WriteNode(ctx, createTestNode(1, 1), "events/1.ttl")
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(s.Root(), "events"))
	assert.ErrorIs(t, statErr, fs.ErrNotExist)
}
