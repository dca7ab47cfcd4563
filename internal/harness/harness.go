package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/ldes/internal/config"
	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/index"
	"github.com/roach88/ldes/internal/producer"
	"github.com/roach88/ldes/internal/testutil"
	"github.com/roach88/ldes/internal/tree"
	"github.com/roach88/ldes/internal/triple"
)

// Harness is the scenario execution engine.
type Harness struct {
	producer *producer.Producer
	cfg      config.Config
	seq      int64
	logger   *slog.Logger
}

// Run executes a scenario in dir, which must be empty, and returns the
// result. Expectation and assertion failures are reported in the result;
// an error means the scenario could not be executed at all.
//
// Execution flow:
// 1. Open a producer over dir with deterministic clock and ids
// 2. Execute flow steps with expect validation
// 3. Snapshot the page graph of every folder the flow touched
// 4. Evaluate assertions against the snapshots
func Run(scenario *Scenario, dir string) (*Result, error) {
	cfg := scenarioConfig(scenario.Config, dir)
	p, err := producer.New(cfg,
		producer.WithClock(testutil.NewStepClock()),
		producer.WithIDGenerator(testutil.NewSequenceGenerator()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open producer: %w", err)
	}
	defer p.Close()

	h := &Harness{
		producer: p,
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Flow {
		h.executeStep(ctx, i, step, result)
	}

	if err := h.snapshot(ctx, scenario.Flow, result); err != nil {
		return nil, fmt.Errorf("failed to snapshot page graph: %w", err)
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, cfg.PageResourcesCount) {
		result.AddError(msg)
	}
	return result, nil
}

func scenarioConfig(sc ScenarioConfig, dir string) config.Config {
	cfg := config.Default()
	cfg.BaseFolder = filepath.Join(dir, "data")
	if sc.PageResourcesCount > 0 {
		cfg.PageResourcesCount = sc.PageResourcesCount
	}
	if sc.FolderDepth > 0 {
		cfg.FolderDepth = sc.FolderDepth
	}
	if sc.SubFolderNodeCount > 0 {
		cfg.SubFolderNodeCount = sc.SubFolderNodeCount
	}
	if sc.Fragmenter != "" {
		cfg.DefaultFragmenter = sc.Fragmenter
	}
	if sc.Index {
		cfg.IndexPath = filepath.Join(dir, "members.db")
	}
	return cfg
}

// executeStep runs one step, appends its trace event and checks its
// expect clause.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) {
	h.seq++
	ev := TraceEvent{Seq: h.seq, Op: step.Op, Folder: step.Folder}

	var err error
	switch step.Op {
	case OpAdd:
		err = h.add(ctx, step, &ev)
	case OpGet:
		err = h.get(ctx, step, &ev)
	case OpLastPage:
		ev.Page, err = h.producer.GetLastPage(ctx, step.Folder)
	case OpLocate:
		var entry index.Entry
		entry, err = h.producer.Locate(ctx, step.Folder, step.Member)
		ev.Page = entry.Page
	case OpFlush:
		err = h.producer.Flush(ctx)
	}
	if err != nil {
		ev.Error = string(errs.CodeOf(err))
		if ev.Error == "" {
			ev.Error = err.Error()
		}
	}
	result.Trace = append(result.Trace, ev)

	h.logger.Info("step completed", "step", i, "op", step.Op, "folder", step.Folder, "error", ev.Error)

	for _, msg := range checkExpect(step, ev) {
		result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
	}
}

func (h *Harness) add(ctx context.Context, step Step, ev *TraceEvent) error {
	body, ct := step.Body, step.ContentType
	if step.Items != nil {
		body, ct = generateItems(step.Items), triple.ContentTypeNTriples
	}

	res, err := h.producer.AddData(ctx, producer.AddDataOptions{
		Folder:      step.Folder,
		Body:        strings.NewReader(body),
		ContentType: ct,
		Fragmenter:  step.Fragmenter,
	})
	ev.Members = len(res.Placements)
	for _, pl := range res.Placements {
		if !slices.Contains(ev.Pages, pl.Page) {
			ev.Pages = append(ev.Pages, pl.Page)
		}
	}
	slices.Sort(ev.Pages)
	if n := len(res.Placements); n > 0 {
		ev.Page = res.Placements[n-1].Page
	}
	return err
}

func (h *Harness) get(ctx context.Context, step Step, ev *TraceEvent) error {
	ev.Page = step.Page
	resp, err := h.producer.GetNode(ctx, producer.GetNodeOptions{
		Folder:      step.Folder,
		Page:        step.Page,
		ContentType: step.Accept,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	ts, err := triple.RDFCodec{}.Parse(bytes.NewReader(body), resp.ContentType, "")
	if err != nil {
		return fmt.Errorf("parse served page: %w", err)
	}

	g := triple.NewGraph(ts...)
	ev.Page = resp.Page
	ev.Members = len(g.Objects(triple.IRI(tree.StreamIRI(h.cfg.BaseURL, step.Folder)), tree.TreeMember))
	ev.Immutable = resp.Immutable
	return nil
}

// snapshot describes every folder named in flow.
func (h *Harness) snapshot(ctx context.Context, flow []Step, result *Result) error {
	var folders []string
	for _, st := range flow {
		if st.Folder != "" && !slices.Contains(folders, st.Folder) {
			folders = append(folders, st.Folder)
		}
	}
	slices.Sort(folders)

	for _, folder := range folders {
		pages, err := h.producer.Describe(ctx, folder)
		if err != nil {
			if errs.IsInvalidArgument(err) {
				continue // invalid folder names never hold pages
			}
			return err
		}
		result.Folders = append(result.Folders, FolderSnapshot{Folder: folder, Pages: pages})
	}
	return nil
}

func checkExpect(step Step, ev TraceEvent) []string {
	var msgs []string
	want := step.Expect
	if want == nil {
		want = &Expect{}
	}

	if ev.Error != want.Error {
		switch {
		case want.Error == "":
			msgs = append(msgs, fmt.Sprintf("unexpected error %s", ev.Error))
		case ev.Error == "":
			msgs = append(msgs, fmt.Sprintf("expected error %s, step succeeded", want.Error))
		default:
			msgs = append(msgs, fmt.Sprintf("expected error %s, got %s", want.Error, ev.Error))
		}
	}
	if want.Page != nil && ev.Page != *want.Page {
		msgs = append(msgs, fmt.Sprintf("expected page %d, got %d", *want.Page, ev.Page))
	}
	if want.Members != nil && ev.Members != *want.Members {
		msgs = append(msgs, fmt.Sprintf("expected %d members, got %d", *want.Members, ev.Members))
	}
	return msgs
}

func generateItems(r *ItemRange) string {
	var b strings.Builder
	for i := r.First; i < r.First+r.Count; i++ {
		fmt.Fprintf(&b, "<http://example.org/items/%d> <http://purl.org/dc/terms/title> \"item %d\" .\n", i, i)
	}
	return b.String()
}
