package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/ldes/internal/producer"
	"github.com/roach88/ldes/internal/triple"
)

// GetOptions holds flags for the get command.
type GetOptions struct {
	*RootOptions
	Accept   string
	Resource string
}

// PageResult is the JSON payload of the get command.
type PageResult struct {
	Folder      string `json:"folder"`
	Page        int    `json:"page"`
	ContentType string `json:"content_type"`
	Immutable   bool   `json:"immutable"`
	Body        string `json:"body"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "get <folder> [page]",
		Short: "Print one page of a stream folder",
		Long: `Print one page of a stream folder in the requested syntax.

Page defaults to 1, the view of the stream. In text format the page is
written to stdout as-is; in json format it is wrapped with its metadata.

Examples:
  ldes get events
  ldes get events 3 --accept application/n-triples
  ldes get events 5 --resource 2`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			page := 1
			if len(args) == 2 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n < 1 {
					return NewExitError(ExitCommandError, fmt.Sprintf("invalid page %q", args[1]))
				}
				page = n
			}
			return runGet(opts, args[0], page, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Accept, "accept", triple.ContentTypeTurtle, "output media type")
	cmd.Flags().StringVar(&opts.Resource, "resource", "", "directory inside the folder holding the page file")

	return cmd
}

func runGet(opts *GetOptions, folder string, page int, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	p, err := openProducer(opts.RootOptions, cmd)
	if err != nil {
		return formatter.Fail("open producer", err)
	}
	defer p.Close()

	resp, err := p.GetNode(cmd.Context(), producer.GetNodeOptions{
		Folder:      folder,
		Page:        page,
		ContentType: opts.Accept,
		Resource:    opts.Resource,
	})
	if err != nil {
		return formatter.Fail("get node", err)
	}
	defer resp.Body.Close()
	formatter.VerboseLog("Page %d of %s (%s, immutable=%t)", resp.Page, folder, resp.ContentType, resp.Immutable)

	if formatter.Format != "json" {
		if _, err := io.Copy(formatter.Writer, resp.Body); err != nil {
			return formatter.Fail("write page", err)
		}
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return formatter.Fail("serialize page", err)
	}
	return formatter.Success(PageResult{
		Folder:      folder,
		Page:        resp.Page,
		ContentType: resp.ContentType,
		Immutable:   resp.Immutable,
		Body:        string(body),
	})
}
