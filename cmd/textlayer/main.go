package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/wudi/pdfedit/contentstream/editor"
	"github.com/wudi/pdfedit/layout"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/ocr"
	"github.com/wudi/pdfedit/ocr/tesseract"
	"github.com/wudi/pdfedit/session"
	"github.com/wudi/pdfedit/textlayer"
)

type options struct {
	pdfPath string
	outPath string
	page    int
	verbose bool
	json    bool

	runs    bool
	html    float64
	analyze bool
	at      string
	set     []string
	align   string
	size    float64

	query   string
	with    string
	script  string
	regex   bool
	matchCS bool
	words   bool

	ocrImage string
	ocrDPI   int
	langs    string
	psm      int
}

type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "textlayer: %v\n", err)
		os.Exit(2)
	}
	if err := run(context.Background(), opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "textlayer: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	var set multiFlag
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: go run ./cmd/textlayer [flags] <pdf>\n")
		flag.PrintDefaults()
	}
	flag.IntVar(&opts.page, "page", 1, "Page to inspect or edit (1-based); 0 means every page for -replace")
	flag.BoolVar(&opts.runs, "runs", false, "List the text runs of the page")
	flag.Float64Var(&opts.html, "html", 0, "Emit the page's text layer as HTML at this zoom")
	flag.BoolVar(&opts.analyze, "analyze", false, "Report structural problems of the file")
	flag.StringVar(&opts.at, "at", "", "Hit-test the display point x,y")
	flag.Var(&set, "set", "Replace a run's text, as runID=text (repeatable)")
	flag.StringVar(&opts.align, "align", "", "Alignment for -set: left, center, right or justify")
	flag.Float64Var(&opts.size, "size", 0, "Font size for -set")
	flag.StringVar(&opts.query, "replace", "", "Search query to replace")
	flag.StringVar(&opts.with, "with", "", "Literal replacement for -replace")
	flag.StringVar(&opts.script, "script", "", "JavaScript replacement function for -replace, e.g. 'm => m.toUpperCase()'")
	flag.BoolVar(&opts.regex, "regex", false, "Treat -replace as a regular expression")
	flag.BoolVar(&opts.matchCS, "case", false, "Case-sensitive -replace")
	flag.BoolVar(&opts.words, "words", false, "Whole-word -replace")
	flag.StringVar(&opts.ocrImage, "ocr", "", "Image of -page for Tesseract to recognize when the page has no text layer")
	flag.IntVar(&opts.ocrDPI, "ocr-dpi", 300, "Resolution the -ocr image was scanned or rendered at")
	flag.StringVar(&opts.langs, "lang", "eng", "Comma-separated Tesseract languages for -ocr")
	flag.IntVar(&opts.psm, "psm", 0, "Tesseract page segmentation mode for -ocr (0 keeps automatic)")
	flag.StringVar(&opts.outPath, "out", "", "Write the edited document here")
	flag.BoolVar(&opts.json, "json", !term.IsTerminal(int(os.Stdout.Fd())), "Emit JSON (default when stdout is not a terminal)")
	flag.BoolVar(&opts.verbose, "v", false, "Log debug output to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return options{}, fmt.Errorf("missing pdf path")
	}
	opts.pdfPath = flag.Arg(0)
	opts.set = set
	edits := len(opts.set) > 0 || opts.query != ""
	if edits && opts.outPath == "" {
		return options{}, fmt.Errorf("-set and -replace need -out")
	}
	if !edits && !opts.runs && opts.html == 0 && !opts.analyze && opts.at == "" {
		opts.runs = true
	}
	return opts, nil
}

func run(ctx context.Context, opts options, out io.Writer) error {
	data, err := os.ReadFile(opts.pdfPath)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}
	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	log := observability.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	s, err := session.Open(ctx, data, sessionConfig(opts, log))
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer s.Close()

	if opts.analyze {
		rep, err := s.Analyze(ctx)
		if err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		if err := emitSection(out, opts, "analysis", rep); err != nil {
			return err
		}
	}

	if opts.at != "" {
		x, y, err := parsePoint(opts.at)
		if err != nil {
			return err
		}
		run, ok, err := s.FindRunAtPoint(ctx, opts.page, x, y)
		if err != nil {
			return fmt.Errorf("hit test: %w", err)
		}
		var hit interface{}
		if ok {
			hit = run
		}
		if err := emitSection(out, opts, "hit", hit); err != nil {
			return err
		}
	}

	if len(opts.set) > 0 {
		muts, err := parseMutations(opts)
		if err != nil {
			return err
		}
		res, err := s.Mutate(ctx, opts.page, muts)
		if err != nil {
			return fmt.Errorf("edit: %w", err)
		}
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "textlayer: warning: %v\n", w)
		}
	}

	if opts.query != "" {
		var pages []int
		if opts.page > 0 {
			pages = []int{opts.page}
		}
		rep, err := s.BatchReplace(ctx, opts.query, textlayer.SearchOptions{
			Regex: opts.regex, CaseSensitive: opts.matchCS, WholeWords: opts.words,
		}, session.Replacement{Text: opts.with, Script: opts.script}, pages)
		if err != nil {
			return fmt.Errorf("replace: %w", err)
		}
		if err := emitSection(out, opts, "replace", rep); err != nil {
			return err
		}
	}

	if opts.runs {
		runs, err := s.Extract(ctx, opts.page)
		if err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		if err := emitRuns(out, opts, runs); err != nil {
			return err
		}
	}

	if opts.html > 0 {
		doc, err := s.TextLayerHTML(ctx, opts.page, opts.html)
		if err != nil {
			return fmt.Errorf("html: %w", err)
		}
		fmt.Fprintln(out, doc)
	}

	if opts.outPath != "" {
		saved, err := s.Save(ctx)
		if err != nil {
			return fmt.Errorf("save: %w", err)
		}
		if err := os.WriteFile(opts.outPath, saved, 0o644); err != nil {
			return fmt.Errorf("write %q: %w", opts.outPath, err)
		}
	}
	return nil
}

// sessionConfig enables Tesseract when a page image is supplied. The
// image is recognized at its own resolution.
func sessionConfig(opts options, log observability.Logger) session.Config {
	cfg := session.Config{Logger: log}
	if opts.ocrImage == "" {
		return cfg
	}
	page := opts.page
	if page < 1 {
		page = 1
	}
	cfg.OCR = tesseract.New(tesseract.Config{PageSegMode: opts.psm})
	cfg.Rasterizer = ocr.PageImages{Paths: map[int]string{page: opts.ocrImage}, DPI: opts.ocrDPI}
	cfg.OCRDPI = opts.ocrDPI
	for _, l := range strings.Split(opts.langs, ",") {
		if l = strings.TrimSpace(l); l != "" {
			cfg.Languages = append(cfg.Languages, l)
		}
	}
	return cfg
}

func parsePoint(s string) (float64, float64, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("point %q: want x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("point %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("point %q: %w", s, err)
	}
	return x, y, nil
}

func parseMutations(opts options) ([]editor.Mutation, error) {
	format := editor.Format{Size: opts.size}
	if opts.align != "" {
		a, ok := layout.ParseAlign(opts.align)
		if !ok {
			return nil, fmt.Errorf("unknown alignment %q", opts.align)
		}
		format.Align = a
	}
	muts := make([]editor.Mutation, 0, len(opts.set))
	for _, s := range opts.set {
		id, text, ok := strings.Cut(s, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("-set %q: want runID=text", s)
		}
		muts = append(muts, editor.Mutation{RunID: id, NewText: text, Format: format})
	}
	return muts, nil
}

func emitRuns(out io.Writer, opts options, runs []textlayer.TextRun) error {
	if opts.json {
		return emitSection(out, opts, "runs", runs)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tX\tY\tW\tH\tFONT\tTEXT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%.1f\t%.1f\t%s %.1f\t%q\n", r.ID, r.X, r.Y, r.Width, r.Height, r.Font, r.FontSize, r.Text)
	}
	return tw.Flush()
}

func emitSection(out io.Writer, opts options, name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if opts.json {
		fmt.Fprintf(out, "%s\n", data)
		return nil
	}
	fmt.Fprintf(out, "== %s ==\n%s\n\n", name, data)
	return nil
}
