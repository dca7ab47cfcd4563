package triple

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/goccy/go-json"
	"github.com/piprate/json-gold/ld"

	"github.com/roach88/ldes/internal/errs"
)

// JSON-LD is converted through N-Quads text: json-gold maps between JSON-LD
// documents and N-Quads, and the knakk decoder and encoder handle the rest.

const nquadsFormat = "application/n-quads"

func parseJSONLD(r io.Reader, baseIRI string) ([]Triple, error) {
	var doc any
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errs.Wrap(errs.CodeMalformedPayload, "parse json-ld", err)
	}

	opts := ld.NewJsonLdOptions(baseIRI)
	opts.Format = nquadsFormat
	out, err := ld.NewJsonLdProcessor().ToRDF(doc, opts)
	if err != nil {
		return nil, errs.Wrap(errs.CodeMalformedPayload, "parse json-ld", err)
	}
	nq, ok := out.(string)
	if !ok {
		return nil, errs.New(errs.CodeMalformedPayload, "parse json-ld",
			fmt.Sprintf("unexpected conversion result %T", out))
	}
	return parseQuads(strings.NewReader(nq))
}

func serializeJSONLD(w io.Writer, triples []Triple) error {
	var nq bytes.Buffer
	if err := (RDFCodec{}).Serialize(&nq, triples, ContentTypeNTriples); err != nil {
		return err
	}

	opts := ld.NewJsonLdOptions("")
	opts.Format = nquadsFormat
	doc, err := ld.NewJsonLdProcessor().FromRDF(nq.String(), opts)
	if err != nil {
		return fmt.Errorf("serialize json-ld: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("serialize json-ld: %w", err)
	}
	return nil
}
