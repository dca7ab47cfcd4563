package tree

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/triple"
)

// Relation is a typed, valued link from one page to another.
type Relation struct {
	ID     triple.Term
	Type   triple.Term
	Value  triple.Term
	Target triple.Term
	Path   triple.Term
}

// Resource is one member: its id and the full closure of triples about it.
type Resource struct {
	ID   triple.Term
	Data []triple.Triple
}

// ScopeBlankNodes relabels every blank node of r, its id included, under a
// prefix derived from r.ID. Decoders number blank nodes from scratch for each
// payload, so members of different payloads sharing a page would otherwise
// merge their blank nodes.
func ScopeBlankNodes(r Resource) Resource {
	scope := strings.ReplaceAll(uuid.NewSHA1(uuid.NameSpaceURL, []byte(r.ID.String())).String(), "-", "")
	relabel := func(t triple.Term) triple.Term {
		if !t.IsBlank() {
			return t
		}
		return triple.Blank(scope + "_" + t.Value)
	}

	out := Resource{ID: relabel(r.ID), Data: make([]triple.Triple, len(r.Data))}
	for i, t := range r.Data {
		out.Data[i] = triple.T(relabel(t.Subject), t.Predicate, relabel(t.Object))
	}
	return out
}

// Node is the in-memory form of one page.
//
// Relations and members have set semantics keyed by id; insertion order is
// kept so a page serializes deterministically.
type Node struct {
	ID     triple.Term
	Stream triple.Term
	View   triple.Term

	relations []Relation
	members   []Resource
	relIdx    map[triple.Term]int
	memberIdx map[triple.Term]int
}

// NewNode returns an empty page.
func NewNode(id, stream, view triple.Term) *Node {
	return &Node{
		ID:        id,
		Stream:    stream,
		View:      view,
		relIdx:    make(map[triple.Term]int),
		memberIdx: make(map[triple.Term]int),
	}
}

// AddMember adds r unless a member with the same id is present.
// It reports whether r was added.
func (n *Node) AddMember(r Resource) bool {
	if _, ok := n.memberIdx[r.ID]; ok {
		return false
	}
	n.memberIdx[r.ID] = len(n.members)
	n.members = append(n.members, r)
	return true
}

// RemoveMember drops the member with the given id, if any.
func (n *Node) RemoveMember(id triple.Term) {
	i, ok := n.memberIdx[id]
	if !ok {
		return
	}
	n.members = append(n.members[:i], n.members[i+1:]...)
	delete(n.memberIdx, id)
	for j := i; j < len(n.members); j++ {
		n.memberIdx[n.members[j].ID] = j
	}
}

// AddRelation adds rel unless a relation with the same id is present.
func (n *Node) AddRelation(rel Relation) bool {
	if _, ok := n.relIdx[rel.ID]; ok {
		return false
	}
	n.relIdx[rel.ID] = len(n.relations)
	n.relations = append(n.relations, rel)
	return true
}

// RemoveRelation drops the relation with the given id, if any.
func (n *Node) RemoveRelation(id triple.Term) {
	i, ok := n.relIdx[id]
	if !ok {
		return
	}
	n.relations = append(n.relations[:i], n.relations[i+1:]...)
	delete(n.relIdx, id)
	for j := i; j < len(n.relations); j++ {
		n.relIdx[n.relations[j].ID] = j
	}
}

// Members returns the members in insertion order. Callers must not mutate it.
func (n *Node) Members() []Resource { return n.members }

// Relations returns the relations in insertion order. Callers must not mutate it.
func (n *Node) Relations() []Relation { return n.relations }

// Count returns the number of members.
func (n *Node) Count() int { return len(n.members) }

// HasRelationTo reports whether some relation targets the given node id.
func (n *Node) HasRelationTo(target triple.Term) bool {
	for _, r := range n.relations {
		if r.Target == target {
			return true
		}
	}
	return false
}

// Triples renders the page: stream declaration and view, node identity,
// relations, member links, then each member's data.
func (n *Node) Triples() []triple.Triple {
	out := []triple.Triple{
		triple.T(n.Stream, RDFType, EventStream),
		triple.T(n.Stream, RDFType, TreeCollection),
		triple.T(n.Stream, TreeView, n.View),
		triple.T(n.ID, RDFType, TreeNode),
	}
	for _, r := range n.relations {
		out = append(out,
			triple.T(n.ID, TreeRelation, r.ID),
			triple.T(r.ID, RDFType, r.Type),
			triple.T(r.ID, TreeValue, r.Value),
			triple.T(r.ID, TreeTarget, r.Target),
			triple.T(r.ID, TreePath, r.Path),
		)
	}
	for _, m := range n.members {
		out = append(out, triple.T(n.Stream, TreeMember, m.ID))
	}
	for _, m := range n.members {
		out = append(out, m.Data...)
	}
	return out
}

// FromGraph rebuilds a Node from a parsed page.
//
// A page without node id, stream or view is StructuralCorruption. A relation
// missing any of type, value, target or path is dropped.
func FromGraph(g *triple.Graph) (*Node, error) {
	ids := g.Subjects(RDFType, TreeNode)
	streams := g.Subjects(RDFType, EventStream)
	if len(ids) == 0 || len(streams) == 0 {
		return nil, errs.New(errs.CodeStructuralCorruption, "read node",
			"reference to id, stream or view not found")
	}
	stream := streams[0]
	view, ok := g.First(stream, TreeView)
	if !ok {
		return nil, errs.New(errs.CodeStructuralCorruption, "read node",
			"reference to id, stream or view not found")
	}

	n := NewNode(ids[0], stream, view)
	for _, relID := range g.Objects(n.ID, TreeRelation) {
		rel, ok := relationFrom(g, relID)
		if !ok {
			continue
		}
		n.AddRelation(rel)
	}
	for _, memberID := range g.Objects(stream, TreeMember) {
		n.AddMember(Resource{ID: memberID, Data: g.Closure(memberID)})
	}
	return n, nil
}

func relationFrom(g *triple.Graph, id triple.Term) (Relation, bool) {
	typ, ok1 := g.First(id, RDFType)
	value, ok2 := g.First(id, TreeValue)
	target, ok3 := g.First(id, TreeTarget)
	path, ok4 := g.First(id, TreePath)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Relation{}, false
	}
	return Relation{ID: id, Type: typ, Value: value, Target: target, Path: path}, true
}

// PageIRI returns the node id of a page: <baseURL>/<folder>/<page>.
func PageIRI(baseURL, folder string, page int) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + folder + "/" + strconv.Itoa(page)
}

// StreamIRI returns the id of the stream a folder publishes.
func StreamIRI(baseURL, folder string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + folder
}

// PageNumber extracts the page number from a node id.
func PageNumber(id triple.Term) (int, error) {
	v := id.Value
	i := strings.LastIndexByte(v, '/')
	n, err := strconv.Atoi(v[i+1:])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("node id %q does not end in a page number", v)
	}
	return n, nil
}
