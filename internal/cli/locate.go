package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLocateCommand creates the locate command.
func NewLocateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate <folder> <member-id>",
		Short: "Find the page holding a member",
		Long: `Find the page holding a member, by its stored id or by the id of the
item it is a version of. Needs the member index (index_path or
LDES_INDEX_PATH).`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocate(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runLocate(opts *RootOptions, folder, memberID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	p, err := openProducer(opts, cmd)
	if err != nil {
		return formatter.Fail("open producer", err)
	}
	defer p.Close()

	e, err := p.Locate(cmd.Context(), folder, memberID)
	if err != nil {
		return formatter.Fail("locate", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(e)
	}
	fmt.Fprintf(formatter.Writer, "page %d\n", e.Page)
	fmt.Fprintf(formatter.Writer, "  member      %s\n", e.MemberID)
	if e.VersionOf != "" {
		fmt.Fprintf(formatter.Writer, "  version of  %s\n", e.VersionOf)
	}
	fmt.Fprintf(formatter.Writer, "  fragmenter  %s\n", e.Fragmenter)
	return nil
}
