// Package fragment places incoming members into pages.
//
// A Fragmenter owns the write cursor of one folder. It is not safe for
// concurrent use: the producer only calls it from inside queued tasks, which
// serializes every mutation of a folder.
//
// Two strategies exist:
//
//   - time-fragmenter appends versioned members to the newest page and seals
//     it with a GreaterThanOrEqualToRelation once it is full.
//   - prefix-tree-fragmenter buckets members by the lexical value of a
//     configured predicate, walking PrefixRelation / EqualToRelation edges
//     from page 1.
//
// Both write a new page before the page that links to it, so a relation
// target always exists on disk.
package fragment

import (
	"context"
	"fmt"

	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/store"
	"github.com/roach88/ldes/internal/tree"
	"github.com/roach88/ldes/internal/triple"
)

// Strategy names.
const (
	TimeFragmenter       = "time-fragmenter"
	PrefixTreeFragmenter = "prefix-tree-fragmenter"
)

// DefaultPrefixPath is the predicate the prefix-tree strategy keys on when
// none is configured.
const DefaultPrefixPath = "http://www.w3.org/2000/01/rdf-schema#label"

// Names returns the supported strategy names.
func Names() []string {
	return []string{TimeFragmenter, PrefixTreeFragmenter}
}

// Placement reports where a member was stored.
type Placement struct {
	Page      int    `json:"page"`
	MemberID  string `json:"member_id"`
	VersionOf string `json:"version_of,omitempty"` // original id for versioned members
}

// Fragmenter adds members to the pages of one folder.
type Fragmenter interface {
	AddMember(ctx context.Context, member tree.Resource) (Placement, error)
	Name() string
}

// Pages is the page store capability a Fragmenter writes through.
type Pages interface {
	ReadNode(ctx context.Context, path string) (*tree.Node, error)
	WriteNode(ctx context.Context, node *tree.Node, path string) error
	Remove(path string) error
}

// LastPager resolves the highest page number of a folder.
type LastPager interface {
	LastPage(folder string, force bool) (int, error)
}

// Options configures a Fragmenter for one folder.
type Options struct {
	Folder              string
	BaseURL             string
	MaxResourcesPerPage int
	Layout              store.Layout
	PrefixPath          string // prefix-tree-fragmenter only
}

// Deps are the collaborators of a Fragmenter. IDs and Clock default to
// UUIDv7Generator and SystemClock.
type Deps struct {
	Pages Pages
	Cache LastPager
	IDs   IDGenerator
	Clock Clock
}

// New returns the strategy called name for the folder in opts.
// An unknown name or a non-positive page size is InvalidArgument.
func New(name string, opts Options, deps Deps) (Fragmenter, error) {
	if opts.MaxResourcesPerPage < 1 {
		return nil, errs.New(errs.CodeInvalidArgument, "new fragmenter",
			fmt.Sprintf("max resources per page must be positive, got %d", opts.MaxResourcesPerPage))
	}
	if deps.IDs == nil {
		deps.IDs = UUIDv7Generator{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	p := pager{opts: opts, deps: deps}

	switch name {
	case TimeFragmenter:
		return &timeFragmenter{pager: p}, nil
	case PrefixTreeFragmenter:
		path := opts.PrefixPath
		if path == "" {
			path = DefaultPrefixPath
		}
		return &prefixFragmenter{pager: p, prefixPath: triple.IRI(path)}, nil
	default:
		return nil, errs.New(errs.CodeInvalidArgument, "new fragmenter",
			fmt.Sprintf("unknown fragmenter %q", name))
	}
}

// pager holds what both strategies need to address and persist pages.
type pager struct {
	opts Options
	deps Deps
}

func (p *pager) path(page int) string {
	return p.opts.Layout.Path(p.opts.Folder, page)
}

func (p *pager) pageID(page int) triple.Term {
	return triple.IRI(tree.PageIRI(p.opts.BaseURL, p.opts.Folder, page))
}

func (p *pager) newNode(page int) *tree.Node {
	return tree.NewNode(
		p.pageID(page),
		triple.IRI(tree.StreamIRI(p.opts.BaseURL, p.opts.Folder)),
		p.pageID(1),
	)
}

func (p *pager) write(ctx context.Context, node *tree.Node, page int) error {
	return p.deps.Pages.WriteNode(ctx, node, p.path(page))
}

func (p *pager) read(ctx context.Context, page int) (*tree.Node, error) {
	return p.deps.Pages.ReadNode(ctx, p.path(page))
}

func (p *pager) lastPage() (int, error) {
	last, err := p.deps.Cache.LastPage(p.opts.Folder, true)
	if err != nil {
		return 0, err
	}
	return max(last, 0), nil
}

// link writes child, then adds rel to parent and rewrites it. If the parent
// cannot be written the relation is dropped again and child is removed.
func (p *pager) link(ctx context.Context, parent *tree.Node, parentPage int, child *tree.Node, childPage int, rel tree.Relation) error {
	if err := p.write(ctx, child, childPage); err != nil {
		return err
	}

	parent.AddRelation(rel)
	if err := p.write(ctx, parent, parentPage); err != nil {
		parent.RemoveRelation(rel.ID)
		if rmErr := p.deps.Pages.Remove(p.path(childPage)); rmErr != nil {
			return errs.Wrap(errs.CodePartialWrite, "link page",
				fmt.Errorf("%w (orphan page %d left behind: %v)", err, childPage, rmErr)).WithPath(p.path(parentPage))
		}
		return errs.Wrap(errs.CodePartialWrite, "link page", err).WithPath(p.path(parentPage))
	}
	return nil
}

// duplicateMember reports a member whose id is already stored on the page at
// path. The page is left as it was.
func duplicateMember(member tree.Resource, path string) error {
	return errs.New(errs.CodeInvalidArgument, "add member",
		fmt.Sprintf("member %s is already stored on this page", member.ID)).WithPath(path)
}
