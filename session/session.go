// Package session is the per-document entry point: it loads a file, keeps
// the text layer of each page, applies edits through the overpaint engine,
// records them in a branching history and writes the result back as an
// incremental update.
//
// A Session serializes its calls; it is safe to share between goroutines
// but does no work in parallel. Sessions share no state with each other.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wudi/pdfedit/cache"
	"github.com/wudi/pdfedit/contentstream/editor"
	"github.com/wudi/pdfedit/fonts"
	"github.com/wudi/pdfedit/history"
	"github.com/wudi/pdfedit/layout"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/ocr"
	"github.com/wudi/pdfedit/offload"
	"github.com/wudi/pdfedit/parser"
	"github.com/wudi/pdfedit/recovery"
	"github.com/wudi/pdfedit/scripting"
	"github.com/wudi/pdfedit/textlayer"
	"github.com/wudi/pdfedit/writer"
)

// ErrClosed is returned by every call on a closed session.
var ErrClosed = errors.New("session closed")

const (
	DefaultLineThreshold = 5.0
	DefaultHitTolerance  = 10.0
)

// FontProgram is a TrueType program made available to edits under a
// family name.
type FontProgram struct {
	Family  string
	Bold    bool
	Italic  bool
	Program []byte
}

type Config struct {
	Logger observability.Logger
	Tracer observability.Tracer
	// Recovery decides how structural damage is handled. Nil rebuilds a
	// missing cross-reference table and keeps going.
	Recovery recovery.Strategy
	// LineThreshold is the largest baseline difference, in points, between
	// items grouped into one run.
	LineThreshold float64
	// HitTolerance grows run boxes when hit-testing.
	HitTolerance float64
	// Padding around overpainted text; zero means editor.DefaultPadding.
	Padding float64
	Fonts   []FontProgram
	History history.Config
	Cache   cache.Config
	// Offloader runs structure analysis, per-page search and stream
	// compression. Nil starts a worker pool owned by the session. Any
	// offloader works; register Handlers with it to actually offload.
	Offloader      offload.Offloader
	OffloadTimeout time.Duration
	// OCR and Rasterizer enable the text layer of scanned pages, rendered
	// at OCRDPI (zero means 150).
	OCR        ocr.Engine
	Rasterizer ocr.Rasterizer
	OCRDPI     int
	Languages  []string
	Writer     writer.Config
}

func (c Config) withDefaults() Config {
	c.Logger = observability.OrNop(c.Logger)
	c.Tracer = observability.TracerOrNop(c.Tracer)
	if c.Recovery == nil {
		c.Recovery = recovery.NewLenientStrategy()
	}
	if c.LineThreshold <= 0 {
		c.LineThreshold = DefaultLineThreshold
	}
	if c.HitTolerance < 0 {
		c.HitTolerance = 0
	} else if c.HitTolerance == 0 {
		c.HitTolerance = DefaultHitTolerance
	}
	if c.History.Logger == nil {
		c.History.Logger = c.Logger
	}
	if c.Cache.Logger == nil {
		c.Cache.Logger = c.Logger
	}
	if c.Writer.Logger == nil {
		c.Writer.Logger = c.Logger
	}
	return c
}

// Session owns one loaded document and everything derived from it.
type Session struct {
	cfg Config
	log observability.Logger

	mu        sync.Mutex
	closed    bool
	doc       *parser.Document
	layout    *layout.Engine
	extractor *textlayer.Extractor
	editor    *editor.Engine
	graph     *history.Graph
	cache     *cache.Cache
	off       offload.Offloader
	pool      *offload.WorkerPool
	script    scripting.Engine

	extracted map[int]*extraction
	pages     map[int]*pageState
}

type extraction struct {
	items []textlayer.TextItem
	runs  []textlayer.TextRun
}

// pageState is a page's text layer after the edits on the current history
// path. It is replaced wholesale whenever that path changes.
type pageState struct {
	runs     []textlayer.TextRun
	commands []editor.Command
	index    *textlayer.Index
}

// Open loads data. A *parser.StructuralError means the file cannot be
// opened; a *parser.EncryptedError means it can once decrypted elsewhere.
func Open(ctx context.Context, data []byte, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	ctx, span := cfg.Tracer.StartSpan(ctx, "session.open")
	defer span.Finish()
	start := time.Now()

	doc, err := parser.Open(ctx, data, parser.Config{
		Recovery: cfg.Recovery,
		Logger:   cfg.Logger,
		Tracer:   cfg.Tracer,
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	for _, w := range doc.Warnings {
		cfg.Logger.Warn("document degraded", observability.String("warning", w))
	}

	resolver := fonts.NewResolver(cfg.Logger)
	for _, f := range cfg.Fonts {
		resolver.Register(f.Family, f.Bold, f.Italic, f.Program)
	}
	measurer := fonts.NewMeasurer()
	eng := layout.NewEngine(
		layout.WithResolver(resolver),
		layout.WithMeasurer(measurer),
		layout.WithLogger(cfg.Logger),
	)
	graph := history.New(cfg.History)

	s := &Session{
		cfg:    cfg,
		log:    cfg.Logger,
		doc:    doc,
		layout: eng,
		extractor: textlayer.NewExtractor(doc, textlayer.Config{
			Logger:     cfg.Logger,
			Tracer:     cfg.Tracer,
			Widths:     fonts.StandardWidths(resolver, measurer),
			OCR:        cfg.OCR,
			Rasterizer: cfg.Rasterizer,
			OCRDPI:     cfg.OCRDPI,
			Languages:  cfg.Languages,
		}),
		editor: editor.New(editor.Config{
			Layout:  eng,
			Logger:  cfg.Logger,
			Tracer:  cfg.Tracer,
			Padding: cfg.Padding,
			History: graph,
		}),
		graph:     graph,
		cache:     cache.New(cfg.Cache),
		off:       cfg.Offloader,
		extracted: map[int]*extraction{},
		pages:     map[int]*pageState{},
	}
	if s.off == nil {
		s.pool = offload.NewWorkerPool(offload.PoolConfig{Logger: cfg.Logger})
		for kind, h := range Handlers() {
			s.pool.Handle(kind, h)
		}
		s.off = s.pool
	}
	span.SetTag(observability.MetricPageCount, len(doc.Pages))
	s.log.Info("session opened",
		observability.Int("pages", len(doc.Pages)),
		observability.Bool("degraded", doc.Degraded),
		observability.Duration(observability.MetricLoadTime, time.Since(start)))
	return s, nil
}

// Close releases the document and every cache. Further calls fail with
// ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.pool != nil {
		s.pool.Close()
	}
	s.cache.Clear()
	s.doc, s.extracted, s.pages = nil, nil, nil
	return nil
}

func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	return nil
}

func (s *Session) PageCount() (int, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	return len(s.doc.Pages), nil
}

// Degraded reports whether the file was loaded from a rebuilt
// cross-reference table.
func (s *Session) Degraded() bool {
	if err := s.lock(); err != nil {
		return false
	}
	defer s.mu.Unlock()
	return s.doc.Degraded
}

// Extract returns the current runs of page n, including the effect of
// every edit on the current history path.
func (s *Session) Extract(ctx context.Context, n int) ([]textlayer.TextRun, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	st, err := s.page(ctx, n)
	if err != nil {
		return nil, err
	}
	return append([]textlayer.TextRun(nil), st.runs...), nil
}

// Items returns the raw text items of page n as extracted from the file.
func (s *Session) Items(ctx context.Context, n int) ([]textlayer.TextItem, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	ex, err := s.extract(ctx, n)
	if err != nil {
		return nil, err
	}
	return append([]textlayer.TextItem(nil), ex.items...), nil
}

// FindRunAtPoint returns the run of page n under the display point (x, y).
func (s *Session) FindRunAtPoint(ctx context.Context, n int, x, y float64) (textlayer.TextRun, bool, error) {
	if err := s.lock(); err != nil {
		return textlayer.TextRun{}, false, err
	}
	defer s.mu.Unlock()
	st, err := s.page(ctx, n)
	if err != nil {
		return textlayer.TextRun{}, false, err
	}
	run, ok := st.index.FindRunAtPoint(x, y, s.cfg.HitTolerance)
	return run, ok, nil
}

// extract reads page n from the file once.
func (s *Session) extract(ctx context.Context, n int) (*extraction, error) {
	if ex, ok := s.extracted[n]; ok {
		return ex, nil
	}
	if _, err := s.doc.Page(n); err != nil {
		return nil, err
	}
	start := time.Now()
	items, err := s.extractor.Extract(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("extract page %d: %w", n, err)
	}
	ex := &extraction{items: items, runs: textlayer.GroupIntoRuns(n, items, s.cfg.LineThreshold)}
	s.extracted[n] = ex
	s.log.Debug("text layer extracted",
		observability.Int("page", n),
		observability.Int(observability.MetricRunCount, len(ex.runs)),
		observability.Duration(observability.MetricExtractTime, time.Since(start)))
	return ex, nil
}
