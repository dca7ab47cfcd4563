package fragment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ldes/internal/cache"
	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/store"
	"github.com/roach88/ldes/internal/testutil"
	"github.com/roach88/ldes/internal/tree"
	"github.com/roach88/ldes/internal/triple"
)

const testBase = "http://localhost/"

type fixture struct {
	root  string
	store *store.Store
	cache *cache.Cache
	clock *testutil.StepClock
	ids   *testutil.SequenceGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	return &fixture{
		root:  root,
		store: store.New(root, triple.RDFCodec{}),
		cache: cache.New(root),
		clock: testutil.NewStepClock(),
		ids:   testutil.NewSequenceGenerator(),
	}
}

func (fx *fixture) fragmenter(t *testing.T, name string, perPage int, pages Pages) Fragmenter {
	t.Helper()
	if pages == nil {
		pages = fx.store
	}
	f, err := New(name, Options{
		Folder:              "events",
		BaseURL:             testBase,
		MaxResourcesPerPage: perPage,
		PrefixPath:          DefaultPrefixPath,
	}, Deps{Pages: pages, Cache: fx.cache, IDs: fx.ids, Clock: fx.clock})
	require.NoError(t, err)
	return f
}

func (fx *fixture) node(t *testing.T, page int) *tree.Node {
	t.Helper()
	// fresh store so the page is parsed from disk
	n, err := store.New(fx.root, triple.RDFCodec{}).ReadNode(context.Background(), store.Layout{}.Path("events", page))
	require.NoError(t, err)
	return n
}

func (fx *fixture) pageCount(t *testing.T) int {
	t.Helper()
	n, err := fx.cache.LastPage("events", true)
	require.NoError(t, err)
	return max(n, 0)
}

func item(i int) tree.Resource {
	id := triple.IRI(fmt.Sprintf("http://example.org/items/%d", i))
	return tree.Resource{ID: id, Data: []triple.Triple{
		triple.T(id, triple.IRI(tree.NSDCT+"title"), triple.Literal(fmt.Sprintf("item %d", i), "")),
	}}
}

func labeled(i int, label string) tree.Resource {
	id := triple.IRI(fmt.Sprintf("http://example.org/items/%d", i))
	return tree.Resource{ID: id, Data: []triple.Triple{
		triple.T(id, triple.IRI(DefaultPrefixPath), triple.Literal(label, "")),
	}}
}

func addItems(t *testing.T, f Fragmenter, from, to int) []Placement {
	t.Helper()
	var out []Placement
	for i := from; i <= to; i++ {
		p, err := f.AddMember(context.Background(), item(i))
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

func TestNew_UnknownFragmenter(t *testing.T) {
	fx := newFixture(t)
	_, err := New("random-fragmenter", Options{Folder: "events", MaxResourcesPerPage: 10},
		Deps{Pages: fx.store, Cache: fx.cache})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestNew_InvalidPageSize(t *testing.T) {
	fx := newFixture(t)
	_, err := New(TimeFragmenter, Options{Folder: "events"}, Deps{Pages: fx.store, Cache: fx.cache})
	require.Error(t, err)
	assert.True(t, errs.IsInvalidArgument(err))
}

func TestTimeFragmenter_250ItemsMakeThreePages(t *testing.T) {
	fx := newFixture(t)
	f := fx.fragmenter(t, TimeFragmenter, 100, nil)

	placements := addItems(t, f, 1, 250)
	assert.Equal(t, 1, placements[0].Page)
	assert.Equal(t, 1, placements[99].Page)
	assert.Equal(t, 2, placements[100].Page)
	assert.Equal(t, 3, placements[249].Page)

	require.Equal(t, 3, fx.pageCount(t))

	p1, p2, p3 := fx.node(t, 1), fx.node(t, 2), fx.node(t, 3)
	assert.Equal(t, 100, p1.Count())
	assert.Equal(t, 100, p2.Count())
	assert.Equal(t, 50, p3.Count())

	require.Len(t, p1.Relations(), 1)
	assert.Equal(t, p2.ID, p1.Relations()[0].Target)
	require.Len(t, p2.Relations(), 1)
	assert.Equal(t, p3.ID, p2.Relations()[0].Target)
	assert.Empty(t, p3.Relations())
}

func TestTimeFragmenter_PageCountIsCeiling(t *testing.T) {
	tests := []struct{ n, m int }{
		{1, 1}, {2, 1}, {5, 2}, {10, 5}, {11, 5}, {7, 10},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_items_%d_per_page", tt.n, tt.m), func(t *testing.T) {
			fx := newFixture(t)
			f := fx.fragmenter(t, TimeFragmenter, tt.m, nil)
			addItems(t, f, 1, tt.n)

			want := (tt.n + tt.m - 1) / tt.m
			require.Equal(t, want, fx.pageCount(t))
			for page := 1; page < want; page++ {
				n := fx.node(t, page)
				assert.Equal(t, tt.m, n.Count(), "page %d", page)
				require.Len(t, n.Relations(), 1, "page %d", page)
				assert.Equal(t, fx.node(t, page+1).ID, n.Relations()[0].Target)
			}
			assert.Empty(t, fx.node(t, want).Relations())
		})
	}
}

func TestTimeFragmenter_VersionsMembers(t *testing.T) {
	fx := newFixture(t)
	f := fx.fragmenter(t, TimeFragmenter, 10, nil)

	p, err := f.AddMember(context.Background(), item(1))
	require.NoError(t, err)
	assert.Equal(t, tree.NSLDESTime+"versioned/00000000-0000-7000-8000-000000000001", p.MemberID)
	assert.Equal(t, "http://example.org/items/1", p.VersionOf)

	n := fx.node(t, 1)
	require.Equal(t, 1, n.Count())
	g := triple.NewGraph(n.Members()[0].Data...)
	vid := triple.IRI(p.MemberID)

	orig, ok := g.First(vid, tree.IsVersionOf)
	require.True(t, ok)
	assert.Equal(t, triple.IRI("http://example.org/items/1"), orig)

	at, ok := g.First(vid, tree.GeneratedAtTime)
	require.True(t, ok)
	assert.Equal(t, triple.Literal("2024-01-01T00:00:00Z", tree.XSDDateTime), at)

	title, ok := g.First(vid, triple.IRI(tree.NSDCT+"title"))
	require.True(t, ok)
	assert.Equal(t, "item 1", title.Value)
}

func TestTimeFragmenter_RelationValueIsLastTimestampOfSealedPage(t *testing.T) {
	fx := newFixture(t)
	f := fx.fragmenter(t, TimeFragmenter, 2, nil)
	addItems(t, f, 1, 5)

	rel1 := fx.node(t, 1).Relations()[0]
	assert.Equal(t, tree.GreaterThanOrEqualToRelation, rel1.Type)
	assert.Equal(t, tree.GeneratedAtTime, rel1.Path)
	assert.Equal(t, "2024-01-01T00:00:01Z", rel1.Value.Value)
	assert.Equal(t, tree.XSDDateTime, rel1.Value.Datatype)

	rel2 := fx.node(t, 2).Relations()[0]
	assert.Equal(t, "2024-01-01T00:00:03Z", rel2.Value.Value)
}

func TestTimeFragmenter_ResumesFromDisk(t *testing.T) {
	fx := newFixture(t)
	addItems(t, fx.fragmenter(t, TimeFragmenter, 2, nil), 1, 5)
	require.Equal(t, 3, fx.pageCount(t))

	// a new fragmenter (process restart) continues on page 3
	f := fx.fragmenter(t, TimeFragmenter, 2, nil)
	placements := addItems(t, f, 6, 7)
	assert.Equal(t, 3, placements[0].Page)
	assert.Equal(t, 4, placements[1].Page)

	p3 := fx.node(t, 3)
	assert.Equal(t, 2, p3.Count())
	require.Len(t, p3.Relations(), 1)
	// the resumed cursor derives lastValue from the members on disk
	assert.Equal(t, "2024-01-01T00:00:05Z", p3.Relations()[0].Value.Value)
}

func TestTimeFragmenter_RepairsMissingRelation(t *testing.T) {
	fx := newFixture(t)
	addItems(t, fx.fragmenter(t, TimeFragmenter, 2, nil), 1, 3)

	// simulate a crash after page 2 was written but before page 1 gained its relation
	ctx := context.Background()
	p1 := fx.node(t, 1)
	p1.RemoveRelation(p1.Relations()[0].ID)
	require.NoError(t, fx.store.WriteNode(ctx, p1, store.Layout{}.Path("events", 1)))
	require.Empty(t, fx.node(t, 1).Relations())

	f := fx.fragmenter(t, TimeFragmenter, 2, nil)
	addItems(t, f, 4, 4)

	repaired := fx.node(t, 1)
	require.Len(t, repaired.Relations(), 1)
	assert.Equal(t, fx.node(t, 2).ID, repaired.Relations()[0].Target)
	assert.Equal(t, "2024-01-01T00:00:01Z", repaired.Relations()[0].Value.Value)
}

// flakyPages fails WriteNode for one path while armed.
type flakyPages struct {
	*store.Store
	failPath string
	armed    bool
}

func (p *flakyPages) WriteNode(ctx context.Context, node *tree.Node, path string) error {
	if p.armed && path == p.failPath {
		return errs.Wrap(errs.CodePartialWrite, "write node", errors.New("disk full")).WithPath(path)
	}
	return p.Store.WriteNode(ctx, node, path)
}

func TestTimeFragmenter_SealFailureRollsBack(t *testing.T) {
	fx := newFixture(t)
	pages := &flakyPages{Store: fx.store, failPath: store.Layout{}.Path("events", 1)}
	f := fx.fragmenter(t, TimeFragmenter, 2, pages)
	addItems(t, f, 1, 2)

	pages.armed = true
	_, err := f.AddMember(context.Background(), item(3))
	require.Error(t, err)
	assert.True(t, errs.IsPartialWrite(err))

	_, statErr := os.Stat(filepath.Join(fx.root, "events", "2.ttl"))
	assert.True(t, os.IsNotExist(statErr), "new page must be removed")
	assert.Empty(t, fx.node(t, 1).Relations())
	assert.Equal(t, 1, fx.pageCount(t))

	// the same member goes through once the disk recovers
	pages.armed = false
	p, err := f.AddMember(context.Background(), item(3))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Page)

	p1 := fx.node(t, 1)
	require.Len(t, p1.Relations(), 1)
	assert.Equal(t, 2, p1.Count())
	assert.Equal(t, 1, fx.node(t, 2).Count())
}

func TestTimeFragmenter_AppendFailureRollsBack(t *testing.T) {
	fx := newFixture(t)
	pages := &flakyPages{Store: fx.store, failPath: store.Layout{}.Path("events", 1), armed: true}
	f := fx.fragmenter(t, TimeFragmenter, 5, pages)

	_, err := f.AddMember(context.Background(), item(1))
	require.Error(t, err)
	assert.Equal(t, 0, fx.pageCount(t))

	pages.armed = false
	addItems(t, f, 2, 2)
	assert.Equal(t, 1, fx.node(t, 1).Count())
}

func TestTimeFragmenter_Subfolders(t *testing.T) {
	fx := newFixture(t)
	layout := store.Layout{MaxNodeCountPerSubFolder: 2, FolderDepth: 2}
	f, err := New(TimeFragmenter, Options{
		Folder:              "events",
		BaseURL:             testBase,
		MaxResourcesPerPage: 1,
		Layout:              layout,
	}, Deps{Pages: fx.store, Cache: fx.cache, IDs: fx.ids, Clock: fx.clock})
	require.NoError(t, err)

	addItems(t, f, 1, 5)

	for page := 1; page <= 5; page++ {
		_, err := os.Stat(filepath.Join(fx.root, layout.Path("events", page)))
		assert.NoError(t, err, "page %d", page)
	}
	assert.Equal(t, 5, fx.pageCount(t))
	assert.True(t, strings.HasSuffix(layout.Path("events", 5), filepath.Join("2", "5.ttl")))
}

func TestPrefixFragmenter_Routing(t *testing.T) {
	fx := newFixture(t)
	f := fx.fragmenter(t, PrefixTreeFragmenter, 1, nil)
	ctx := context.Background()

	place := func(i int, label string) int {
		p, err := f.AddMember(ctx, labeled(i, label))
		require.NoError(t, err)
		return p.Page
	}

	assert.Equal(t, 1, place(1, "Apple"))
	assert.Equal(t, 2, place(2, "apricot"))
	assert.Equal(t, 3, place(3, "banana"))
	assert.Equal(t, 4, place(4, "avocado"))
	assert.Equal(t, 5, place(5, "Apex"))

	root := fx.node(t, 1)
	values := map[string]int{}
	for _, r := range root.Relations() {
		assert.Equal(t, tree.PrefixRelation, r.Type)
		assert.Equal(t, triple.IRI(DefaultPrefixPath), r.Path)
		n, err := tree.PageNumber(r.Target)
		require.NoError(t, err)
		values[r.Value.Value] = n
	}
	assert.Equal(t, map[string]int{"a": 2, "b": 3}, values)

	a := fx.node(t, 2)
	values = map[string]int{}
	for _, r := range a.Relations() {
		n, err := tree.PageNumber(r.Target)
		require.NoError(t, err)
		values[r.Value.Value] = n
	}
	assert.Equal(t, map[string]int{"av": 4, "ap": 5}, values)
}

func TestPrefixFragmenter_ExhaustedKeyUsesEqualTo(t *testing.T) {
	fx := newFixture(t)
	f := fx.fragmenter(t, PrefixTreeFragmenter, 1, nil)
	ctx := context.Background()

	for i, label := range []string{"a", "ab", "a"} {
		_, err := f.AddMember(ctx, labeled(i+1, label))
		require.NoError(t, err)
	}

	// "ab" lands under prefix "a"; the second "a" is exhausted at page 2
	page2 := fx.node(t, 2)
	require.Len(t, page2.Relations(), 1)
	rel := page2.Relations()[0]
	assert.Equal(t, tree.EqualToRelation, rel.Type)
	assert.Equal(t, "a", rel.Value.Value)
	assert.Equal(t, fx.node(t, 3).ID, rel.Target)
}

func TestPrefixFragmenter_NFCKey(t *testing.T) {
	fx := newFixture(t)
	f := fx.fragmenter(t, PrefixTreeFragmenter, 1, nil).(*prefixFragmenter)

	decomposed := labeled(1, "E\u0301cole")
	composed := labeled(2, "\u00e9cole")
	assert.Equal(t, f.key(composed), f.key(decomposed))
	assert.Equal(t, "\u00e9cole", f.key(decomposed))
}

func TestPrefixFragmenter_ResumesAfterRestart(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	first := fx.fragmenter(t, PrefixTreeFragmenter, 1, nil)
	for i, label := range []string{"apple", "banana"} {
		_, err := first.AddMember(ctx, labeled(i+1, label))
		require.NoError(t, err)
	}

	second := fx.fragmenter(t, PrefixTreeFragmenter, 1, nil)
	p, err := second.AddMember(ctx, labeled(3, "cherry"))
	require.NoError(t, err)
	assert.Equal(t, 3, p.Page)
}

func TestPrefixFragmenter_RejectsDuplicateMember(t *testing.T) {
	fx := newFixture(t)
	f := fx.fragmenter(t, PrefixTreeFragmenter, 10, nil)
	ctx := context.Background()

	_, err := f.AddMember(ctx, labeled(1, "apple"))
	require.NoError(t, err)
	_, err = f.AddMember(ctx, labeled(1, "apple"))
	require.Error(t, err)
	assert.True(t, errs.IsInvalidArgument(err))

	assert.Equal(t, 1, fx.node(t, 1).Count())
}

func TestTimeFragmenter_BlankNodesStayWithTheirMember(t *testing.T) {
	fx := newFixture(t)
	f := fx.fragmenter(t, TimeFragmenter, 10, nil)
	ctx := context.Background()

	p, q := triple.IRI("http://example.org/p"), triple.IRI("http://example.org/q")
	withBlank := func(i int, value string) tree.Resource {
		id := triple.IRI(fmt.Sprintf("http://example.org/items/%d", i))
		b := triple.Blank("b1") // every decoder starts from the same label
		return tree.Resource{ID: id, Data: []triple.Triple{
			triple.T(id, p, b),
			triple.T(b, q, triple.Literal(value, "")),
		}}
	}
	_, err := f.AddMember(ctx, withBlank(1, "x"))
	require.NoError(t, err)
	_, err = f.AddMember(ctx, withBlank(2, "y"))
	require.NoError(t, err)

	node := fx.node(t, 1)
	require.Equal(t, 2, node.Count())
	want := []string{"x", "y"}
	for i, m := range node.Members() {
		var values []string
		for _, tr := range m.Data {
			if tr.Predicate == q {
				values = append(values, tr.Object.Value)
			}
		}
		assert.Equal(t, []string{want[i]}, values, "member %s", m.ID)
	}
}
