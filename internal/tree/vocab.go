// Package tree defines the page data model of an event stream: the Node a
// page file describes, its outgoing Relations, and the member Resources it
// holds, plus conversion between a Node and its triples.
package tree

import "github.com/roach88/ldes/internal/triple"

// Namespaces used by page files.
const (
	NSRDF      = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSTree     = "https://w3id.org/tree#"
	NSLDES     = "https://w3id.org/ldes#"
	NSProv     = "http://www.w3.org/ns/prov#"
	NSDCT      = "http://purl.org/dc/terms/"
	NSXSD      = "http://www.w3.org/2001/XMLSchema#"
	NSLDESTime = "http://mu.semte.ch/services/ldes-time-fragmenter/"
)

// Vocabulary terms.
var (
	RDFType = triple.IRI(NSRDF + "type")

	TreeNode       = triple.IRI(NSTree + "Node")
	TreeCollection = triple.IRI(NSTree + "Collection")
	TreeRelation   = triple.IRI(NSTree + "relation")
	TreeValue      = triple.IRI(NSTree + "value")
	TreeTarget     = triple.IRI(NSTree + "node")
	TreePath       = triple.IRI(NSTree + "path")
	TreeView       = triple.IRI(NSTree + "view")
	TreeMember     = triple.IRI(NSTree + "member")

	GreaterThanOrEqualToRelation = triple.IRI(NSTree + "GreaterThanOrEqualToRelation")
	PrefixRelation               = triple.IRI(NSTree + "PrefixRelation")
	EqualToRelation              = triple.IRI(NSTree + "EqualToRelation")

	EventStream = triple.IRI(NSLDES + "EventStream")

	GeneratedAtTime = triple.IRI(NSProv + "generatedAtTime")
	IsVersionOf     = triple.IRI(NSDCT + "isVersionOf")
)

// XSDDateTime is the datatype of generatedAtTime literals.
const XSDDateTime = NSXSD + "dateTime"

// RelationID returns the id of a relation minted from a uuid.
func RelationID(uuid string) triple.Term {
	return triple.IRI(NSLDESTime + "relations/" + uuid)
}

// VersionID returns the id of a versioned member minted from a uuid.
func VersionID(uuid string) triple.Term {
	return triple.IRI(NSLDESTime + "versioned/" + uuid)
}
