package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ldes/internal/cache"
)

// LastPageResult is the JSON payload of the last-page command.
type LastPageResult struct {
	Folder   string `json:"folder"`
	LastPage int    `json:"last_page"` // -1 when the folder has no pages
}

// NewLastPageCommand creates the last-page command.
func NewLastPageCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "last-page <folder>",
		Short: "Print the highest page number of a stream folder",
		Long: `Print the highest page number of a stream folder, from a fresh
directory scan. A folder without pages prints -1.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLastPage(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runLastPage(opts *RootOptions, folder string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	p, err := openProducer(opts, cmd)
	if err != nil {
		return formatter.Fail("open producer", err)
	}
	defer p.Close()

	last, err := p.GetLastPage(cmd.Context(), folder)
	if err != nil {
		return formatter.Fail("last page", err)
	}
	if last == cache.NoPages {
		formatter.VerboseLog("%s has no pages", folder)
	}

	if formatter.Format == "json" {
		return formatter.Success(LastPageResult{Folder: folder, LastPage: last})
	}
	fmt.Fprintln(formatter.Writer, last)
	return nil
}
