package fragment

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/tree"
	"github.com/roach88/ldes/internal/triple"
)

// prefixFragmenter buckets members by the value of prefixPath.
//
// Page 1 is the root. A page that still has room takes the member. A full
// page routes it along the PrefixRelation whose value is the key prefix one
// rune longer than the prefix that led here, or along the EqualToRelation for
// the whole key once the key is exhausted. A missing branch becomes a new
// page holding the member.
type prefixFragmenter struct {
	pager

	prefixPath triple.Term
	last       int // highest allocated page, 0 until resolved
}

func (f *prefixFragmenter) Name() string { return PrefixTreeFragmenter }

func (f *prefixFragmenter) AddMember(ctx context.Context, member tree.Resource) (Placement, error) {
	if f.last < 1 {
		last, err := f.lastPage()
		if err != nil {
			return Placement{}, err
		}
		f.last = last
	}
	member = tree.ScopeBlankNodes(member)
	placed := Placement{MemberID: member.ID.Value}

	if f.last == 0 {
		root := f.newNode(1)
		root.AddMember(member)
		if err := f.write(ctx, root, 1); err != nil {
			return Placement{}, err
		}
		f.last = 1
		placed.Page = 1
		return placed, nil
	}

	rest := []rune(f.key(member))
	prefix := ""
	page := 1
	for {
		node, err := f.read(ctx, page)
		if err != nil {
			return Placement{}, err
		}

		if node.Count() < f.opts.MaxResourcesPerPage {
			if !node.AddMember(member) {
				return Placement{}, duplicateMember(member, f.path(page))
			}
			if err := f.write(ctx, node, page); err != nil {
				return Placement{}, err
			}
			placed.Page = page
			return placed, nil
		}

		relType, value := tree.EqualToRelation, prefix
		if len(rest) > 0 {
			relType, value = tree.PrefixRelation, prefix+string(rest[0])
		}

		if target, ok := branch(node, relType, value); ok {
			next, err := tree.PageNumber(target)
			if err != nil {
				return Placement{}, errs.Wrap(errs.CodeStructuralCorruption, "follow relation", err).WithPath(f.path(page))
			}
			if next == page {
				return Placement{}, errs.New(errs.CodeStructuralCorruption, "follow relation",
					"relation points back at its own page").WithPath(f.path(page))
			}
			page = next
			if len(rest) > 0 {
				prefix, rest = value, rest[1:]
			}
			continue
		}

		childPage := f.last + 1
		child := f.newNode(childPage)
		child.AddMember(member)
		rel := tree.Relation{
			ID:     tree.RelationID(f.deps.IDs.Generate()),
			Type:   relType,
			Value:  triple.Literal(value, ""),
			Target: child.ID,
			Path:   f.prefixPath,
		}
		if err := f.link(ctx, node, page, child, childPage, rel); err != nil {
			return Placement{}, err
		}

		slog.Info("prefix branch created",
			"folder", f.opts.Folder,
			"parent", page,
			"page", childPage,
			"value", value,
		)
		f.last = childPage
		placed.Page = childPage
		return placed, nil
	}
}

// key returns the NFC-normalized, lower-cased value of prefixPath on member.
func (f *prefixFragmenter) key(member tree.Resource) string {
	for _, t := range member.Data {
		if t.Subject == member.ID && t.Predicate == f.prefixPath {
			return strings.ToLower(norm.NFC.String(t.Object.Value))
		}
	}
	return ""
}

func branch(n *tree.Node, relType triple.Term, value string) (triple.Term, bool) {
	for _, r := range n.Relations() {
		if r.Type == relType && r.Value.Value == value {
			return r.Target, true
		}
	}
	return triple.Term{}, false
}
