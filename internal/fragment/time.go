package fragment

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/tree"
	"github.com/roach88/ldes/internal/triple"
)

// timeFragmenter appends members to the newest page of a folder.
//
// The tail page is sealed lazily: a full tail is only closed when the next
// member arrives, so N members with page size M occupy ceil(N/M) pages.
type timeFragmenter struct {
	pager

	tail      *tree.Node
	tailPage  int
	lastValue triple.Term // generatedAtTime of the newest member in tail
}

func (f *timeFragmenter) Name() string { return TimeFragmenter }

func (f *timeFragmenter) AddMember(ctx context.Context, member tree.Resource) (Placement, error) {
	if err := f.ensureTail(ctx); err != nil {
		return Placement{}, err
	}

	versioned, stamp := f.version(member)
	versioned = tree.ScopeBlankNodes(versioned)
	placed := Placement{MemberID: versioned.ID.Value, VersionOf: member.ID.Value}

	if f.tail.Count() < f.opts.MaxResourcesPerPage {
		if !f.tail.AddMember(versioned) {
			return Placement{}, duplicateMember(versioned, f.path(f.tailPage))
		}
		if err := f.write(ctx, f.tail, f.tailPage); err != nil {
			f.tail.RemoveMember(versioned.ID)
			return Placement{}, err
		}
		f.lastValue = stamp
		placed.Page = f.tailPage
		return placed, nil
	}

	if err := f.seal(ctx, versioned, stamp); err != nil {
		return Placement{}, err
	}
	placed.Page = f.tailPage
	return placed, nil
}

// seal closes the full tail by starting the next page with member and
// linking the tail to it.
func (f *timeFragmenter) seal(ctx context.Context, member tree.Resource, stamp triple.Term) error {
	nextPage := f.tailPage + 1
	next := f.newNode(nextPage)
	next.AddMember(member)

	value := f.lastValue
	if value.IsZero() {
		value = stamp
	}
	rel := tree.Relation{
		ID:     tree.RelationID(f.deps.IDs.Generate()),
		Type:   tree.GreaterThanOrEqualToRelation,
		Value:  value,
		Target: next.ID,
		Path:   tree.GeneratedAtTime,
	}
	if err := f.link(ctx, f.tail, f.tailPage, next, nextPage, rel); err != nil {
		return err
	}

	slog.Info("page sealed",
		"folder", f.opts.Folder,
		"page", f.tailPage,
		"members", f.tail.Count(),
		"next", nextPage,
	)
	f.tail, f.tailPage, f.lastValue = next, nextPage, stamp
	return nil
}

// ensureTail loads the newest page on first use. A folder without pages
// starts at an unwritten page 1.
func (f *timeFragmenter) ensureTail(ctx context.Context) error {
	if f.tail != nil {
		return nil
	}

	last, err := f.lastPage()
	if err != nil {
		return err
	}
	if last < 1 {
		f.tail, f.tailPage = f.newNode(1), 1
		return nil
	}

	node, err := f.read(ctx, last)
	if err != nil {
		return err
	}
	if last > 1 {
		if err := f.repair(ctx, last-1, node); err != nil {
			return err
		}
	}

	f.tail, f.tailPage = node, last
	f.lastValue, _ = latestStamp(node)
	slog.Debug("fragmenter resumed", "folder", f.opts.Folder, "page", last, "members", node.Count())
	return nil
}

// repair adds the relation from page prev to tail when a crash between
// writing tail and rewriting prev left it out.
func (f *timeFragmenter) repair(ctx context.Context, prev int, tail *tree.Node) error {
	node, err := f.read(ctx, prev)
	if err != nil {
		if errs.IsNotFound(err) {
			slog.Warn("previous page missing, not repairing", "folder", f.opts.Folder, "page", prev)
			return nil
		}
		return err
	}
	if node.HasRelationTo(tail.ID) {
		return nil
	}

	value, ok := latestStamp(node)
	if !ok {
		value, ok = earliestStamp(tail)
	}
	if !ok {
		value = triple.Literal(f.deps.Clock.Now().UTC().Format(time.RFC3339Nano), tree.XSDDateTime)
	}
	rel := tree.Relation{
		ID:     tree.RelationID(f.deps.IDs.Generate()),
		Type:   tree.GreaterThanOrEqualToRelation,
		Value:  value,
		Target: tail.ID,
		Path:   tree.GeneratedAtTime,
	}
	node.AddRelation(rel)
	if err := f.write(ctx, node, prev); err != nil {
		return errs.Wrap(errs.CodePartialWrite, "repair relation", err).WithPath(f.path(prev))
	}
	slog.Warn("repaired missing relation", "folder", f.opts.Folder, "page", prev, "target", tail.ID.Value)
	return nil
}

// version mints a new id for member, re-subjects its root triples and stamps
// it with dct:isVersionOf and prov:generatedAtTime.
func (f *timeFragmenter) version(member tree.Resource) (tree.Resource, triple.Term) {
	id := tree.VersionID(f.deps.IDs.Generate())
	stamp := triple.Literal(f.deps.Clock.Now().UTC().Format(time.RFC3339Nano), tree.XSDDateTime)

	data := make([]triple.Triple, 0, len(member.Data)+2)
	for _, t := range member.Data {
		if t.Subject == member.ID {
			t.Subject = id
		}
		data = append(data, t)
	}
	data = append(data,
		triple.T(id, tree.IsVersionOf, member.ID),
		triple.T(id, tree.GeneratedAtTime, stamp),
	)
	return tree.Resource{ID: id, Data: data}, stamp
}

func latestStamp(n *tree.Node) (triple.Term, bool) {
	return pickStamp(n, func(a, b time.Time) bool { return a.After(b) })
}

func earliestStamp(n *tree.Node) (triple.Term, bool) {
	return pickStamp(n, func(a, b time.Time) bool { return a.Before(b) })
}

func pickStamp(n *tree.Node, better func(a, b time.Time) bool) (triple.Term, bool) {
	var (
		best   triple.Term
		bestAt time.Time
		found  bool
	)
	for _, m := range n.Members() {
		for _, t := range m.Data {
			if t.Subject != m.ID || t.Predicate != tree.GeneratedAtTime {
				continue
			}
			at, err := time.Parse(time.RFC3339Nano, t.Object.Value)
			if err != nil {
				continue
			}
			if !found || better(at, bestAt) {
				best, bestAt, found = t.Object, at, true
			}
		}
	}
	return best, found
}
