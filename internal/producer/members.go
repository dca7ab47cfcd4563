package producer

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/fragment"
	"github.com/roach88/ldes/internal/tree"
	"github.com/roach88/ldes/internal/triple"
)

// extractMembers splits a payload into members: one per root subject, each
// carrying the subject's triples plus every blank node reachable from it.
func extractMembers(ts []triple.Triple) []tree.Resource {
	g := triple.NewGraph(ts...)
	roots := g.Roots()
	out := make([]tree.Resource, 0, len(roots))
	for _, r := range roots {
		out = append(out, tree.Resource{ID: r, Data: g.Closure(r)})
	}
	return out
}

// validateFolder rejects folder names that would escape the base folder or
// write into it directly.
func validateFolder(folder string) error {
	if folder == "" || folder == "." || !filepath.IsLocal(folder) || strings.ContainsRune(folder, '\\') {
		return errs.New(errs.CodeInvalidArgument, "validate folder",
			fmt.Sprintf("invalid folder %q", folder))
	}
	return nil
}

func validateFragmenter(name string) error {
	if !slices.Contains(fragment.Names(), name) {
		return errs.New(errs.CodeInvalidArgument, "validate fragmenter",
			fmt.Sprintf("unknown fragmenter %q (want one of %s)", name, strings.Join(fragment.Names(), ", ")))
	}
	return nil
}

// localName returns the part of an IRI after its last '#' or '/'.
func localName(iri string) string {
	if i := strings.LastIndexAny(iri, "#/"); i >= 0 {
		return iri[i+1:]
	}
	return iri
}
