package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ldes/internal/fragment"
	"github.com/roach88/ldes/internal/producer"
	"github.com/roach88/ldes/internal/triple"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	ContentType string
	Fragmenter  string
}

// contentTypeByExt guesses a payload's media type from its file name.
var contentTypeByExt = map[string]string{
	".ttl":    triple.ContentTypeTurtle,
	".nt":     triple.ContentTypeNTriples,
	".nq":     triple.ContentTypeNQuads,
	".rdf":    triple.ContentTypeRDFXML,
	".xml":    triple.ContentTypeRDFXML,
	".jsonld": triple.ContentTypeJSONLD,
	".trig":   triple.ContentTypeTriG,
	".n3":     triple.ContentTypeN3,
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <folder> [file]",
		Short: "Append the members of an RDF payload to a stream folder",
		Long: `Append the members of an RDF payload to a stream folder.

Every subject that is not a blank node referenced by another subject becomes
one member, together with the blank nodes reachable from it. The payload is
read from file, or from stdin when file is omitted or "-".

Examples:
  ldes add events items.ttl
  ldes add events --content-type application/n-triples < items.nt
  ldes add labels labels.ttl --fragmenter prefix-tree-fragmenter`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			file := "-"
			if len(args) == 2 {
				file = args[1]
			}
			return runAdd(opts, args[0], file, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ContentType, "content-type", "",
		"payload media type (default: from file extension, else text/turtle)")
	cmd.Flags().StringVar(&opts.Fragmenter, "fragmenter", "",
		fmt.Sprintf("fragmentation strategy (%s; default from config)", strings.Join(fragment.Names(), "|")))

	return cmd
}

func runAdd(opts *AddOptions, folder, file string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	var body io.Reader = cmd.InOrStdin()
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "open payload", err)
		}
		defer f.Close()
		body = f
	}

	ct := opts.ContentType
	if ct == "" {
		ct = contentTypeByExt[strings.ToLower(filepath.Ext(file))]
	}
	if ct == "" {
		ct = triple.ContentTypeTurtle
	}
	formatter.VerboseLog("Adding %s as %s to %s", file, ct, folder)

	p, err := openProducer(opts.RootOptions, cmd)
	if err != nil {
		return formatter.Fail("open producer", err)
	}
	defer p.Close()

	res, err := p.AddData(cmd.Context(), producer.AddDataOptions{
		Folder:      folder,
		Body:        body,
		ContentType: ct,
		Fragmenter:  opts.Fragmenter,
	})
	if err != nil {
		return formatter.Fail("add data", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(res)
	}

	fmt.Fprintf(formatter.Writer, "✓ Added %d member(s) to %s (%s)\n", len(res.Placements), res.Folder, res.Fragmenter)
	if len(res.Placements) > 0 {
		fmt.Fprintf(formatter.Writer, "  pages %s\n", pageSpan(res.Placements))
	}
	for _, pl := range res.Placements {
		formatter.VerboseLog("  page %d  %s  (version of %s)", pl.Page, pl.MemberID, pl.VersionOf)
	}
	return nil
}

// pageSpan renders the lowest and highest page of placements, e.g. "1-3".
func pageSpan(pls []fragment.Placement) string {
	lo, hi := pls[0].Page, pls[0].Page
	for _, pl := range pls[1:] {
		lo, hi = min(lo, pl.Page), max(hi, pl.Page)
	}
	if lo == hi {
		return fmt.Sprint(lo)
	}
	return fmt.Sprintf("%d-%d", lo, hi)
}
