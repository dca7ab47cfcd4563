// Package triple provides the generic item model exchanged with the triple
// codec: terms, triples, and an indexed Graph built once per parse.
//
// This package imports nothing internal except errs. The codec behind it is a
// capability (Codec); the storage engine never inspects wire syntax directly.
package triple

import (
	"strconv"
	"strings"
)

// Kind distinguishes the three RDF term kinds.
type Kind uint8

const (
	// KindIRI is a named node.
	KindIRI Kind = iota + 1
	// KindBlank is a blank node; Value holds its label without "_:".
	KindBlank
	// KindLiteral is a literal; Value holds its lexical form.
	KindLiteral
)

// XSDString is the implicit datatype of plain literals.
const XSDString = "http://www.w3.org/2001/XMLSchema#string"

// Term is one RDF term. Terms are comparable and used as map keys.
type Term struct {
	Kind     Kind
	Value    string
	Datatype string // literals only; "" means xsd:string
	Lang     string // literals only
}

// IRI returns a named-node term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Blank returns a blank-node term.
func Blank(label string) Term {
	return Term{Kind: KindBlank, Value: strings.TrimPrefix(label, "_:")}
}

// Literal returns a literal with the given datatype. An empty or xsd:string
// datatype yields a plain string literal.
func Literal(v, datatype string) Term {
	if datatype == XSDString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: v, Datatype: datatype}
}

// LangLiteral returns a language-tagged string literal.
func LangLiteral(v, lang string) Term {
	return Term{Kind: KindLiteral, Value: v, Lang: lang}
}

// IsZero reports whether t is the zero Term.
func (t Term) IsZero() bool { return t.Kind == 0 }

// IsIRI reports whether t is a named node.
func (t Term) IsIRI() bool { return t.Kind == KindIRI }

// IsBlank reports whether t is a blank node.
func (t Term) IsBlank() bool { return t.Kind == KindBlank }

// IsLiteral reports whether t is a literal.
func (t Term) IsLiteral() bool { return t.Kind == KindLiteral }

// String renders t in N-Triples syntax.
func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlank:
		return "_:" + t.Value
	case KindLiteral:
		s := strconv.Quote(t.Value)
		if t.Lang != "" {
			return s + "@" + t.Lang
		}
		if t.Datatype != "" {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	default:
		return ""
	}
}

// Triple is one subject/predicate/object statement.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// T is a short constructor for Triple.
func T(s, p, o Term) Triple { return Triple{Subject: s, Predicate: p, Object: o} }

// String renders tr as one N-Triples line without the trailing newline.
func (tr Triple) String() string {
	return tr.Subject.String() + " " + tr.Predicate.String() + " " + tr.Object.String() + " ."
}
