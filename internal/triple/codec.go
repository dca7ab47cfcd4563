package triple

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/knakk/rdf"

	"github.com/roach88/ldes/internal/errs"
)

// Accepted media types.
const (
	ContentTypeTurtle   = "text/turtle"
	ContentTypeNTriples = "application/n-triples"
	ContentTypeNQuads   = "application/n-quads"
	ContentTypeRDFXML   = "application/rdf+xml"
	ContentTypeJSONLD   = "application/ld+json"
	ContentTypeTriG     = "application/trig"
	ContentTypeN3       = "text/n3"
)

// Codec is the triple codec capability consumed by the storage engine.
//
// Parse turns a wire payload into generic triples; Serialize writes triples in
// the requested syntax. Implementations return *errs.Error with
// CodeUnsupportedMediaType for unknown content types and CodeMalformedPayload
// for unparsable input.
type Codec interface {
	Parse(r io.Reader, contentType, baseIRI string) ([]Triple, error)
	Serialize(w io.Writer, triples []Triple, contentType string) error
	CanParse(contentType string) bool
	CanSerialize(contentType string) bool
}

// NormalizeContentType lower-cases a media type and strips its parameters,
// so "Text/Turtle; charset=utf-8" becomes "text/turtle".
func NormalizeContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

// RDFCodec implements Codec on top of github.com/knakk/rdf, with JSON-LD
// handled by github.com/piprate/json-gold.
//
// N-Quads input is accepted with graph names dropped; N-Quads output is
// written as default-graph lines, which is N-Triples syntax. TriG and N3 are
// read and written as their Turtle subset: default-graph TriG and N3 without
// formulae or rules. Anything beyond that subset is a malformed payload.
type RDFCodec struct{}

var _ Codec = RDFCodec{}

var parseFormats = map[string]rdf.Format{
	ContentTypeTurtle:   rdf.Turtle,
	ContentTypeTriG:     rdf.Turtle,
	ContentTypeN3:       rdf.Turtle,
	ContentTypeNTriples: rdf.NTriples,
	ContentTypeNQuads:   rdf.NQuads,
	ContentTypeRDFXML:   rdf.RDFXML,
}

var serializeFormats = map[string]rdf.Format{
	ContentTypeTurtle:   rdf.Turtle,
	ContentTypeTriG:     rdf.Turtle,
	ContentTypeN3:       rdf.Turtle,
	ContentTypeNTriples: rdf.NTriples,
	ContentTypeNQuads:   rdf.NTriples,
}

// CanParse reports whether contentType is an accepted input syntax.
func (RDFCodec) CanParse(contentType string) bool {
	ct := NormalizeContentType(contentType)
	_, ok := parseFormats[ct]
	return ok || ct == ContentTypeJSONLD
}

// CanSerialize reports whether contentType is an accepted output syntax.
func (RDFCodec) CanSerialize(contentType string) bool {
	ct := NormalizeContentType(contentType)
	_, ok := serializeFormats[ct]
	return ok || ct == ContentTypeJSONLD
}

// Parse decodes every triple in r. For Turtle and JSON-LD a non-empty baseIRI
// resolves relative IRIs; Turtle gets it as an @base directive ahead of the
// payload.
func (RDFCodec) Parse(r io.Reader, contentType, baseIRI string) ([]Triple, error) {
	ct := NormalizeContentType(contentType)
	if ct == ContentTypeJSONLD {
		return parseJSONLD(r, baseIRI)
	}
	format, ok := parseFormats[ct]
	if !ok {
		return nil, errs.New(errs.CodeUnsupportedMediaType, "parse",
			fmt.Sprintf("content type %q not recognized", contentType))
	}

	if format == rdf.NQuads {
		return parseQuads(r)
	}
	if format == rdf.Turtle && baseIRI != "" {
		r = io.MultiReader(strings.NewReader("@base <"+baseIRI+"> .\n"), r)
	}

	dec := rdf.NewTripleDecoder(r, format)
	var out []Triple
	for {
		tr, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, errs.Wrap(errs.CodeMalformedPayload, "parse", err)
		}
		out = append(out, fromRDF(tr))
	}
}

func parseQuads(r io.Reader) ([]Triple, error) {
	dec := rdf.NewQuadDecoder(r, rdf.NQuads)
	var out []Triple
	for {
		q, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, errs.Wrap(errs.CodeMalformedPayload, "parse", err)
		}
		out = append(out, fromRDF(q.Triple))
	}
}

// Serialize encodes triples to w in the requested syntax.
func (RDFCodec) Serialize(w io.Writer, triples []Triple, contentType string) error {
	ct := NormalizeContentType(contentType)
	if ct == ContentTypeJSONLD {
		return serializeJSONLD(w, triples)
	}
	format, ok := serializeFormats[ct]
	if !ok {
		return errs.New(errs.CodeUnsupportedMediaType, "serialize",
			fmt.Sprintf("content type %q not recognized", contentType))
	}

	enc := rdf.NewTripleEncoder(w, format)
	for _, t := range triples {
		tr, err := toRDF(t)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", t, err)
		}
		if err := enc.Encode(tr); err != nil {
			return fmt.Errorf("serialize: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("serialize: close encoder: %w", err)
	}
	return nil
}

func fromRDF(tr rdf.Triple) Triple {
	return Triple{
		Subject:   fromTerm(tr.Subj),
		Predicate: fromTerm(tr.Pred),
		Object:    fromTerm(tr.Obj),
	}
}

func fromTerm(t rdf.Term) Term {
	switch v := t.(type) {
	case rdf.IRI:
		return IRI(v.String())
	case rdf.Blank:
		return Blank(v.String())
	case rdf.Literal:
		if v.Lang() != "" {
			return LangLiteral(v.String(), v.Lang())
		}
		return Literal(v.String(), v.DataType.String())
	default:
		return Term{}
	}
}

func toRDF(t Triple) (rdf.Triple, error) {
	subj, err := toSubject(t.Subject)
	if err != nil {
		return rdf.Triple{}, err
	}
	if !t.Predicate.IsIRI() {
		return rdf.Triple{}, fmt.Errorf("predicate %s is not an IRI", t.Predicate)
	}
	pred, err := rdf.NewIRI(t.Predicate.Value)
	if err != nil {
		return rdf.Triple{}, err
	}
	obj, err := toObject(t.Object)
	if err != nil {
		return rdf.Triple{}, err
	}
	return rdf.Triple{Subj: subj, Pred: pred, Obj: obj}, nil
}

func toSubject(t Term) (rdf.Subject, error) {
	switch t.Kind {
	case KindIRI:
		return rdf.NewIRI(t.Value)
	case KindBlank:
		return rdf.NewBlank(t.Value)
	default:
		return nil, fmt.Errorf("term %s cannot be a subject", t)
	}
}

func toObject(t Term) (rdf.Object, error) {
	switch t.Kind {
	case KindIRI:
		return rdf.NewIRI(t.Value)
	case KindBlank:
		return rdf.NewBlank(t.Value)
	case KindLiteral:
		if t.Lang != "" {
			return rdf.NewLangLiteral(t.Value, t.Lang)
		}
		if t.Datatype != "" {
			dt, err := rdf.NewIRI(t.Datatype)
			if err != nil {
				return nil, err
			}
			return rdf.NewTypedLiteral(t.Value, dt), nil
		}
		return rdf.NewLiteral(t.Value)
	default:
		return nil, fmt.Errorf("unknown term kind %d", t.Kind)
	}
}
