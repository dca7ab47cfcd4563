package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <folder>",
		Short: "Summarize the page graph of a stream folder",
		Long: `Summarize the page graph of a stream folder: for every page, its
member count and outgoing relations.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runGraph(opts *RootOptions, folder string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	p, err := openProducer(opts, cmd)
	if err != nil {
		return formatter.Fail("open producer", err)
	}
	defer p.Close()

	pages, err := p.Describe(cmd.Context(), folder)
	if err != nil {
		return formatter.Fail("describe", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(pages)
	}
	if len(pages) == 0 {
		fmt.Fprintf(formatter.Writer, "%s has no pages\n", folder)
		return nil
	}
	for _, pg := range pages {
		fmt.Fprintf(formatter.Writer, "page %d  %d member(s)\n", pg.Page, pg.Members)
		for _, r := range pg.Relations {
			fmt.Fprintf(formatter.Writer, "  -> %d  %s %q\n", r.Target, r.Type, r.Value)
		}
	}
	return nil
}
