package textlayer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/fonts"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/ocr"
	"github.com/wudi/pdfedit/parser"
)

// Source is the document an Extractor reads. *parser.Document implements
// it.
type Source interface {
	raw.Resolver
	Page(n int) (*parser.Page, error)
	Contents(ctx context.Context, p *parser.Page) ([]byte, error)
	DecodeStream(ctx context.Context, s *raw.StreamObj) ([]byte, error)
}

// Config controls extraction.
type Config struct {
	Logger observability.Logger
	Tracer observability.Tracer
	// Widths measures fonts that carry no /Widths. Nil uses the standard
	// font substitutes.
	Widths fonts.WidthFunc
	// GapFactor splits a text-showing operator into several items where
	// the distance between consecutive glyphs exceeds this fraction of the
	// font size. Zero means 0.3.
	GapFactor float64
	// OCR recognizes pages without a text layer. Both OCR and Rasterizer
	// must be set for the fallback to run.
	OCR        ocr.Engine
	Rasterizer ocr.Rasterizer
	OCRDPI     int
	Languages  []string
}

func (c Config) withDefaults() Config {
	c.Logger = observability.OrNop(c.Logger)
	c.Tracer = observability.TracerOrNop(c.Tracer)
	if c.Widths == nil {
		c.Widths = fonts.StandardWidths(fonts.NewResolver(c.Logger), fonts.NewMeasurer())
	}
	if c.GapFactor <= 0 {
		c.GapFactor = 0.3
	}
	if c.OCRDPI <= 0 {
		c.OCRDPI = 150
	}
	return c
}

// Extractor reads TextItems from pages. It is not safe for concurrent use.
type Extractor struct {
	src    Source
	cfg    Config
	interp *contentstream.Interpreter
}

func NewExtractor(src Source, cfg Config) *Extractor {
	cfg = cfg.withDefaults()
	x := &Extractor{src: src, cfg: cfg}
	x.interp = contentstream.NewInterpreter(contentstream.Config{
		Resolver: src,
		Load: func(s *raw.StreamObj) ([]byte, error) {
			return src.DecodeStream(context.Background(), s)
		},
		Widths: cfg.Widths,
		Logger: cfg.Logger,
	})
	return x
}

// Extract returns the non-blank text items of page n in content stream
// order. A page without any text falls back to OCR when configured.
func (x *Extractor) Extract(ctx context.Context, n int) ([]TextItem, error) {
	ctx, span := x.cfg.Tracer.StartSpan(ctx, "textlayer.extract")
	defer span.Finish()
	span.SetTag("page", n)

	page, err := x.src.Page(n)
	if err != nil {
		return nil, err
	}
	content, err := x.src.Contents(ctx, page)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("extract page %d: %w", n, err)
	}
	m, _, h := page.Geometry()
	glyphs, err := x.interp.Run(ctx, content, page.Resources, m)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		x.cfg.Logger.Warn("text extraction incomplete",
			observability.Int("page", n),
			observability.Int("glyphs", len(glyphs)),
			observability.Error("error", err))
	}
	items := ItemsFromGlyphs(glyphs, h, x.cfg.GapFactor)
	if len(items) == 0 && x.cfg.OCR != nil && x.cfg.Rasterizer != nil {
		return x.recognize(ctx, n, h)
	}
	x.cfg.Logger.Debug("page extracted",
		observability.Int("page", n),
		observability.Int("items", len(items)))
	return items, nil
}

// ItemsFromGlyphs merges consecutive glyphs of one text-showing operator
// into items and drops blank items. Glyph positions must be in document
// space of a page pageHeight tall.
func ItemsFromGlyphs(glyphs []contentstream.Glyph, pageHeight, gapFactor float64) []TextItem {
	if gapFactor <= 0 {
		gapFactor = 0.3
	}
	var items []TextItem
	var cur []contentstream.Glyph
	flush := func() {
		if len(cur) == 0 {
			return
		}
		if it, ok := newItem(cur, pageHeight); ok {
			items = append(items, it)
		}
		cur = cur[:0]
	}
	for _, g := range glyphs {
		if len(cur) > 0 && !continues(cur[len(cur)-1], g, gapFactor) {
			flush()
		}
		cur = append(cur, g)
	}
	flush()
	return items
}

// continues reports whether g is drawn where the glyph before it ends.
func continues(prev, g contentstream.Glyph, gapFactor float64) bool {
	if prev.Show != g.Show || prev.Font != g.Font || prev.Size != g.Size || prev.Vertical != g.Vertical {
		return false
	}
	u := direction(prev)
	want := coords.Point{X: prev.Origin.X + u.X*prev.Advance, Y: prev.Origin.Y + u.Y*prev.Advance}
	return math.Hypot(g.Origin.X-want.X, g.Origin.Y-want.Y) <= gapFactor*math.Max(g.Size, 1)
}

// direction is the unit vector along which a glyph advances.
func direction(g contentstream.Glyph) coords.Point {
	m := g.Matrix
	x, y := m[0], m[1]
	if g.Vertical {
		x, y = -m[2], -m[3]
	}
	l := math.Hypot(x, y)
	if l == 0 {
		return coords.Point{X: 1}
	}
	return coords.Point{X: x / l, Y: y / l}
}

func newItem(glyphs []contentstream.Glyph, pageHeight float64) (TextItem, bool) {
	var text strings.Builder
	var length float64
	for _, g := range glyphs {
		text.WriteString(g.Text)
		length += g.Advance
	}
	s := text.String()
	if strings.TrimFunc(s, unicode.IsSpace) == "" {
		return TextItem{}, false
	}
	first := glyphs[0]
	u := direction(first)
	height := first.Size
	if height == 0 {
		height = math.Abs(first.FontSize)
	}

	// local box: along the advance direction, rising height across it
	frame := coords.Matrix{u.X, u.Y, -u.Y, u.X, first.Origin.X, first.Origin.Y}
	var doc coords.Rect
	dir := LeftToRight
	switch {
	case first.Vertical:
		dir = TopToBottom
		// vertical glyphs hang centered on the origin
		doc = coords.TransformBoundingBox(0, -height/2, length, height, frame)
	default:
		if fonts.IsRightToLeft(s) {
			dir = RightToLeft
		}
		doc = coords.TransformBoundingBox(0, 0, length, height, frame)
	}
	origin := coords.DocPoint{X: first.Origin.X, Y: first.Origin.Y}
	return TextItem{
		Text:      s,
		Origin:    coords.ToDisplaySpace(origin, pageHeight),
		DocOrigin: origin,
		Bounds:    coords.RectToDisplaySpace(coords.DocRect(doc), pageHeight),
		Width:     length,
		Height:    height,
		Font:      first.Font,
		FontSize:  height,
		Matrix:    first.Matrix,
		Direction: dir,
		Color:     first.Color,
		Mode:      first.Mode,
	}, true
}
