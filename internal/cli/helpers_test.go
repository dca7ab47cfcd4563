package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// execute runs cmd with args and stdin, returning stdout.
func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// testRoot returns options pointing at a fresh storage root.
func testRoot(t *testing.T, format string) *RootOptions {
	t.Helper()
	return &RootOptions{Format: format, BaseFolder: t.TempDir()}
}

// withIndex writes a config file enabling the member index.
func withIndex(t *testing.T, opts *RootOptions) *RootOptions {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ldes.yaml")
	content := fmt.Sprintf("page_resources_count: 10\nindex_path: %s\n", filepath.Join(dir, "members.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	opts.ConfigPath = path
	return opts
}

func itemsNT(first, n int) string {
	var b strings.Builder
	for i := first; i < first+n; i++ {
		fmt.Fprintf(&b, "<http://example.org/items/%d> <http://purl.org/dc/terms/title> \"item %d\" .\n", i, i)
	}
	return b.String()
}

// seed adds n items to folder through the add command.
func seed(t *testing.T, opts *RootOptions, folder string, n int) {
	t.Helper()
	seedOpts := *opts
	seedOpts.Format = "text"
	_, err := execute(t, NewAddCommand(&seedOpts), itemsNT(1, n),
		folder, "--content-type", "application/n-triples")
	require.NoError(t, err)
}

// decodeData unmarshals the data field of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}
