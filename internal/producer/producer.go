// Package producer exposes the operations of an event-stream producer:
// adding data, serving pages and inspecting the page graph.
//
// All mutations run on one update queue, so at most one write is in flight
// per Producer and the on-disk order of a folder follows the order in which
// AddData calls were queued. Reads are not serialized; atomic page writes
// guarantee they never observe a partial page.
package producer

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/roach88/ldes/internal/cache"
	"github.com/roach88/ldes/internal/config"
	"github.com/roach88/ldes/internal/errs"
	"github.com/roach88/ldes/internal/fragment"
	"github.com/roach88/ldes/internal/index"
	"github.com/roach88/ldes/internal/queue"
	"github.com/roach88/ldes/internal/store"
	"github.com/roach88/ldes/internal/tree"
	"github.com/roach88/ldes/internal/triple"
)

// Producer owns one storage root. Only one Producer (and one process) may
// write a root at a time.
type Producer struct {
	cfg    config.Config
	layout store.Layout

	codec   triple.Codec
	store   *store.Store
	cache   *cache.Cache
	queue   *queue.Queue
	index   *index.Index   // nil when disabled
	watcher *cache.Watcher // nil when disabled
	seq     *Seq

	ids   fragment.IDGenerator
	clock fragment.Clock

	// write cursor per folder, touched only from queued tasks
	fragmenters map[string]fragment.Fragmenter

	watchMu sync.Mutex
	watched map[string]bool
}

// Option configures a Producer.
type Option func(*Producer)

// WithCodec replaces the default triple codec.
func WithCodec(c triple.Codec) Option {
	return func(p *Producer) { p.codec = c }
}

// WithIDGenerator sets the source of relation and version ids.
func WithIDGenerator(g fragment.IDGenerator) Option {
	return func(p *Producer) { p.ids = g }
}

// WithClock sets the source of generatedAtTime values.
func WithClock(c fragment.Clock) Option {
	return func(p *Producer) { p.clock = c }
}

// New validates cfg and opens a Producer over cfg.BaseFolder.
func New(cfg config.Config, opts ...Option) (*Producer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.BaseFolder, 0o755); err != nil {
		return nil, fmt.Errorf("create base folder: %w", err)
	}

	p := &Producer{
		cfg: cfg,
		layout: store.Layout{
			MaxNodeCountPerSubFolder: cfg.SubFolderNodeCount,
			FolderDepth:              cfg.FolderDepth,
		},
		codec:       triple.RDFCodec{},
		cache:       cache.New(cfg.BaseFolder),
		ids:         fragment.UUIDv7Generator{},
		clock:       fragment.SystemClock{},
		fragmenters: make(map[string]fragment.Fragmenter),
		watched:     make(map[string]bool),
		seq:         NewSeqAt(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.store = store.New(cfg.BaseFolder, p.codec)

	if cfg.IndexPath != "" {
		x, err := index.Open(cfg.IndexPath)
		if err != nil {
			return nil, err
		}
		last, err := x.MaxSeq(context.Background())
		if err != nil {
			x.Close()
			return nil, err
		}
		p.index = x
		p.seq = NewSeqAt(last)
	}

	if cfg.Watch {
		w, err := cache.NewWatcher(p.cache)
		if err != nil {
			p.index.Close()
			return nil, err
		}
		p.watcher = w
	}

	p.queue = queue.New()
	slog.Debug("producer opened",
		"base_folder", cfg.BaseFolder,
		"page_resources_count", cfg.PageResourcesCount,
		"fragmenter", cfg.DefaultFragmenter,
		"index", cfg.IndexPath != "",
		"watch", cfg.Watch,
	)
	return p, nil
}

// Config returns the settings the Producer was opened with.
func (p *Producer) Config() config.Config { return p.cfg }

// AddDataOptions describes one AddData call.
type AddDataOptions struct {
	Folder      string
	Body        io.Reader
	ContentType string
	Fragmenter  string // "" uses the configured default
}

// AddResult lists where each member of a payload was placed.
type AddResult struct {
	Folder     string               `json:"folder"`
	Fragmenter string               `json:"fragmenter"`
	Placements []fragment.Placement `json:"placements"`
}

// AddData parses the payload and appends every member to folder.
//
// Parsing happens on the caller's goroutine. All members are then added in
// one queued task, followed by a queued cache invalidation for folder.
func (p *Producer) AddData(ctx context.Context, opts AddDataOptions) (AddResult, error) {
	if err := validateFolder(opts.Folder); err != nil {
		return AddResult{}, err
	}
	name := opts.Fragmenter
	if name == "" {
		name = p.cfg.DefaultFragmenter
	}
	if err := validateFragmenter(name); err != nil {
		return AddResult{}, err
	}
	if !p.codec.CanParse(opts.ContentType) {
		return AddResult{}, errs.New(errs.CodeUnsupportedMediaType, "add data",
			fmt.Sprintf("content type %q not recognized", opts.ContentType))
	}

	ts, err := p.codec.Parse(opts.Body, opts.ContentType, tree.StreamIRI(p.cfg.BaseURL, opts.Folder)+"/")
	if err != nil {
		if errs.CodeOf(err) == "" {
			err = errs.Wrap(errs.CodeMalformedPayload, "add data", err)
		}
		return AddResult{}, err
	}
	members := extractMembers(ts)
	p.watch(opts.Folder)

	res, err := queue.Do(p.queue, func() (AddResult, error) {
		return p.addMembers(ctx, opts.Folder, name, members)
	})
	if _, invErr := p.queue.Push(func() (any, error) {
		p.cache.Invalidate(opts.Folder)
		return nil, nil
	}); invErr != nil {
		slog.Warn("cache invalidation not queued", "folder", opts.Folder, "error", invErr)
	}
	if err != nil {
		return AddResult{}, err
	}

	slog.Info("data added", "folder", opts.Folder, "fragmenter", name, "members", len(members))
	return res, nil
}

// addMembers runs inside the update queue.
func (p *Producer) addMembers(ctx context.Context, folder, name string, members []tree.Resource) (AddResult, error) {
	frag, err := p.fragmenter(folder, name)
	if err != nil {
		return AddResult{}, err
	}

	res := AddResult{Folder: folder, Fragmenter: name, Placements: make([]fragment.Placement, 0, len(members))}
	for _, m := range members {
		pl, err := frag.AddMember(ctx, m)
		if err != nil {
			return res, fmt.Errorf("add member %s: %w", m.ID.Value, err)
		}
		res.Placements = append(res.Placements, pl)
		p.record(ctx, folder, name, pl)
	}
	return res, nil
}

// fragmenter returns the write cursor of folder. A folder has one cursor at a
// time: switching strategy replaces it with a fresh one that reloads its state
// from disk, so pages written by the previous strategy are never overwritten
// from a stale copy.
func (p *Producer) fragmenter(folder, name string) (fragment.Fragmenter, error) {
	if f, ok := p.fragmenters[folder]; ok {
		if f.Name() == name {
			return f, nil
		}
		slog.Debug("fragmenter switched", "folder", folder, "from", f.Name(), "to", name)
	}
	f, err := fragment.New(name, fragment.Options{
		Folder:              folder,
		BaseURL:             p.cfg.BaseURL,
		MaxResourcesPerPage: p.cfg.PageResourcesCount,
		Layout:              p.layout,
		PrefixPath:          p.cfg.PrefixPath,
	}, fragment.Deps{
		Pages: p.store,
		Cache: p.cache,
		IDs:   p.ids,
		Clock: p.clock,
	})
	if err != nil {
		return nil, err
	}
	p.fragmenters[folder] = f
	return f, nil
}

// record writes a placement to the member index. Failures are logged only:
// the page files already hold the member.
func (p *Producer) record(ctx context.Context, folder, name string, pl fragment.Placement) {
	if p.index == nil {
		return
	}
	err := p.index.Record(ctx, index.Entry{
		Seq:        p.seq.Next(),
		Folder:     folder,
		MemberID:   pl.MemberID,
		VersionOf:  pl.VersionOf,
		Page:       pl.Page,
		Fragmenter: name,
	})
	if err != nil {
		slog.Warn("member index write failed", "folder", folder, "member", pl.MemberID, "error", err)
	}
}

func (p *Producer) watch(folder string) {
	if p.watcher == nil {
		return
	}
	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	if p.watched[folder] {
		return
	}
	if err := p.watcher.Watch(folder); err != nil {
		slog.Warn("folder not watched", "folder", folder, "error", err)
		return
	}
	p.watched[folder] = true
}

// GetNodeOptions describes one GetNode call.
type GetNodeOptions struct {
	Folder      string
	Page        int    // 0 means 1
	ContentType string // "" means text/turtle

	// Resource names a directory inside Folder that holds the page file
	// directly, bypassing the subfolder layout. "" uses the layout.
	Resource string
}

// NodeResponse is a page serialized in the requested syntax.
type NodeResponse struct {
	Body        io.ReadCloser
	ContentType string
	Page        int

	// Immutable is set when the page is not the newest one and so will
	// never change again.
	Immutable bool
}

// GetNode serves one page.
//
// A page beyond the cached last page triggers an authoritative recompute;
// NotFound is only returned when the page is beyond that as well. The body
// is serialized on a separate goroutine and streamed to the caller, who must
// close it.
func (p *Producer) GetNode(ctx context.Context, opts GetNodeOptions) (*NodeResponse, error) {
	if err := validateFolder(opts.Folder); err != nil {
		return nil, err
	}
	page := opts.Page
	if page == 0 {
		page = 1
	}
	if page < 0 {
		return nil, errs.New(errs.CodeInvalidArgument, "get node", fmt.Sprintf("invalid page %d", page))
	}
	if opts.Resource != "" && !filepath.IsLocal(opts.Resource) {
		return nil, errs.New(errs.CodeInvalidArgument, "get node", fmt.Sprintf("invalid resource %q", opts.Resource))
	}
	ct := opts.ContentType
	if ct == "" {
		ct = triple.ContentTypeTurtle
	}

	last, err := p.cache.LastPage(opts.Folder, false)
	if err != nil {
		return nil, err
	}
	if page > last {
		last, err = p.cache.LastPage(opts.Folder, true)
		if err != nil {
			return nil, err
		}
		if page > last {
			return nil, errs.New(errs.CodeNotFound, "get node",
				fmt.Sprintf("page %d does not exist", page)).WithPath(opts.Folder)
		}
	}

	if !p.codec.CanSerialize(ct) {
		return nil, errs.New(errs.CodeUnsupportedMediaType, "get node",
			fmt.Sprintf("content type %q not recognized", ct))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := p.layout.Path(opts.Folder, page)
	if opts.Resource != "" {
		path = filepath.Join(opts.Folder, opts.Resource, strconv.Itoa(page)+store.PageExt)
	}
	b, err := p.store.ReadPage(path)
	if err != nil {
		return nil, err
	}
	ts, err := p.codec.Parse(bytes.NewReader(b), triple.ContentTypeTurtle, tree.PageIRI(p.cfg.BaseURL, opts.Folder, page))
	if err != nil {
		return nil, errs.Wrap(errs.CodeStructuralCorruption, "get node", err).WithPath(path)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(p.codec.Serialize(pw, ts, ct))
	}()

	return &NodeResponse{
		Body:        pr,
		ContentType: triple.NormalizeContentType(ct),
		Page:        page,
		Immutable:   page < last,
	}, nil
}

// GetLastPage returns the highest page number of folder, always from a
// fresh directory scan. A folder without pages yields cache.NoPages.
func (p *Producer) GetLastPage(ctx context.Context, folder string) (int, error) {
	if err := validateFolder(folder); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.cache.LastPage(folder, true)
}

// Locate returns the index entry of a member, looked up by stored member id
// or by the original id it versions.
func (p *Producer) Locate(ctx context.Context, folder, memberID string) (index.Entry, error) {
	if err := validateFolder(folder); err != nil {
		return index.Entry{}, err
	}
	if p.index == nil {
		return index.Entry{}, errs.New(errs.CodeInvalidArgument, "locate", "member index is disabled")
	}
	e, err := p.index.PageOf(ctx, folder, memberID)
	if errors.Is(err, index.ErrNotIndexed) {
		return index.Entry{}, errs.Wrap(errs.CodeNotFound, "locate", err).WithPath(folder)
	}
	return e, err
}

// RelationSummary is one outgoing relation of a page.
type RelationSummary struct {
	Type   string `json:"type"`
	Target int    `json:"target"`
	Value  string `json:"value"`
}

// PageSummary describes one page of the page graph.
type PageSummary struct {
	Page      int               `json:"page"`
	Members   int               `json:"members"`
	Relations []RelationSummary `json:"relations"`
}

// Describe summarizes every page of folder in page order. Relations are
// listed by target page.
func (p *Producer) Describe(ctx context.Context, folder string) ([]PageSummary, error) {
	last, err := p.GetLastPage(ctx, folder)
	if err != nil {
		return nil, err
	}

	out := make([]PageSummary, 0, max(last, 0))
	for page := 1; page <= last; page++ {
		n, err := p.store.ReadNode(ctx, p.layout.Path(folder, page))
		if err != nil {
			return nil, err
		}
		sum := PageSummary{Page: page, Members: n.Count(), Relations: []RelationSummary{}}
		for _, r := range n.Relations() {
			target, err := tree.PageNumber(r.Target)
			if err != nil {
				return nil, errs.Wrap(errs.CodeStructuralCorruption, "describe", err).WithPath(p.layout.Path(folder, page))
			}
			sum.Relations = append(sum.Relations, RelationSummary{
				Type:   localName(r.Type.Value),
				Target: target,
				Value:  r.Value.Value,
			})
		}
		slices.SortFunc(sum.Relations, func(a, b RelationSummary) int { return cmp.Compare(a.Target, b.Target) })
		out = append(out, sum)
	}
	return out, nil
}

// Flush drops the page cache and the page content cache. It runs on the
// update queue so no write is in flight while caches are cleared.
func (p *Producer) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.queue.Push(func() (any, error) {
		p.cache.Flush()
		p.store.Flush()
		return nil, nil
	})
	return err
}

// Close drains the update queue and releases the watcher and member index.
func (p *Producer) Close() error {
	p.queue.Close()

	var errList []error
	if p.watcher != nil {
		errList = append(errList, p.watcher.Close())
	}
	errList = append(errList, p.index.Close())
	return errors.Join(errList...)
}
