// Package editor changes the visible text of a page by overpainting: the
// old glyphs are covered with an opaque rectangle and the replacement text
// is drawn on top. The original text-showing operators stay in the content
// stream.
package editor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/fonts"
	"github.com/wudi/pdfedit/history"
	"github.com/wudi/pdfedit/layout"
	"github.com/wudi/pdfedit/observability"
	"github.com/wudi/pdfedit/textlayer"
)

var (
	// ErrRunNotFound reports a mutation naming a run the page does not
	// have. Nothing is drawn or recorded.
	ErrRunNotFound = errors.New("text run not found")
	// ErrSurfaceUnavailable reports an edit with nothing to draw on.
	ErrSurfaceUnavailable = errors.New("drawing surface unavailable")
)

// DefaultPadding is the margin the overpaint rectangle adds around the
// text it covers.
const DefaultPadding = 3.0

// OpMutate is the history operation recorded for applied edits.
const OpMutate = "mutate"

// Format overrides the look of a run. Zero fields keep the run's own
// properties.
type Format struct {
	Family     string               `json:"family,omitempty"`
	Bold       *bool                `json:"bold,omitempty"`
	Italic     *bool                `json:"italic,omitempty"`
	Size       float64              `json:"size,omitempty"`
	Color      *contentstream.Color `json:"color,omitempty"`
	Background *contentstream.Color `json:"background,omitempty"`
	Align      layout.Align         `json:"align,omitempty"`
	Underline  bool                 `json:"underline,omitempty"`
	Strike     bool                 `json:"strike,omitempty"`
	Markup     layout.Markup        `json:"markup,omitempty"`
	Spacing    layout.Spacing       `json:"spacing,omitempty"`
}

// Mutation replaces the text of one run.
type Mutation struct {
	RunID   string `json:"runId"`
	NewText string `json:"newText"`
	Format  Format `json:"format"`
}

// Edit is the payload of a recorded history node.
type Edit struct {
	Page      int        `json:"page"`
	Mutations []Mutation `json:"mutations"`
}

// Text is one styled piece of replacement text. Origin is the start of its
// baseline.
type Text struct {
	Text    string              `json:"text"`
	Origin  coords.DisplayPoint `json:"origin"`
	Face    layout.Face         `json:"face"`
	Font    *fonts.Font         `json:"-"`
	Size    float64             `json:"size"`
	Color   contentstream.Color `json:"color"`
	Spacing layout.Spacing      `json:"spacing"`
}

// Surface receives the drawing an edit produces, in display space.
type Surface interface {
	FillRect(r coords.DisplayRect, c contentstream.Color) error
	DrawText(t Text) error
	DrawLine(from, to coords.DisplayPoint, width float64, c contentstream.Color) error
}

// History records applied edits. *history.Graph implements it.
type History interface {
	Record(op string, payload any) history.Node
}

type Config struct {
	Layout *layout.Engine
	Logger observability.Logger
	Tracer observability.Tracer
	// Padding around overpainted text; zero means DefaultPadding.
	Padding float64
	// Background fills overpaint rectangles unless a mutation sets its own;
	// nil means white.
	Background *contentstream.Color
	History    History
}

func (c Config) withDefaults() Config {
	c.Logger = observability.OrNop(c.Logger)
	c.Tracer = observability.TracerOrNop(c.Tracer)
	if c.Layout == nil {
		c.Layout = layout.NewEngine(layout.WithLogger(c.Logger))
	}
	if c.Padding <= 0 {
		c.Padding = DefaultPadding
	}
	if c.Background == nil {
		bg := contentstream.White
		c.Background = &bg
	}
	return c
}

// Engine applies mutations. It keeps no page state of its own.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine { return &Engine{cfg: cfg.withDefaults()} }

// Layout returns the engine's text layout engine.
func (e *Engine) Layout() *layout.Engine { return e.cfg.Layout }

type Request struct {
	Page      int
	Runs      []textlayer.TextRun
	Mutations []Mutation
	// SuppressHistory applies the edit without recording it. Undo and redo
	// replay edits this way.
	SuppressHistory bool
}

// Placement describes where one mutation drew.
type Placement struct {
	RunID     string
	Overpaint coords.DisplayRect
	// TextBox is the box of the new text; its X is the draw origin.
	TextBox  coords.DisplayRect
	Baseline float64
	Font     *fonts.Font
}

type Result struct {
	// Runs is a new slice: the page's runs with each mutated run replaced.
	Runs       []textlayer.TextRun
	Placements []Placement
	// Warnings are recovered problems, such as *fonts.EmbedError for a
	// family drawn with a standard font.
	Warnings []error
	// Node is the recorded history node, nil when history was suppressed
	// or not configured.
	Node *history.Node
}

// Apply draws every mutation of req on surf. All run ids are checked
// before anything is drawn; a missing run fails the whole call.
func (e *Engine) Apply(ctx context.Context, surf Surface, req Request) (*Result, error) {
	ctx, span := e.cfg.Tracer.StartSpan(ctx, "editor.apply")
	defer span.Finish()
	span.SetTag("page", req.Page)
	span.SetTag("mutations", len(req.Mutations))

	if surf == nil {
		span.SetError(ErrSurfaceUnavailable)
		return nil, ErrSurfaceUnavailable
	}
	for _, m := range req.Mutations {
		if _, _, ok := textlayer.ByID(req.Runs, m.RunID); !ok {
			err := fmt.Errorf("page %d: %w: %s", req.Page, ErrRunNotFound, m.RunID)
			span.SetError(err)
			return nil, err
		}
	}

	res := &Result{Runs: append([]textlayer.TextRun(nil), req.Runs...)}
	warned := map[string]bool{}
	for _, m := range req.Mutations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		run, i, _ := textlayer.ByID(res.Runs, m.RunID)
		p, updated, warnings, err := e.mutate(surf, run, m)
		if err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("page %d: run %s: %w", req.Page, m.RunID, err)
		}
		for _, w := range warnings {
			if !warned[w.Error()] {
				warned[w.Error()] = true
				res.Warnings = append(res.Warnings, w)
			}
		}
		res.Runs[i] = updated
		res.Placements = append(res.Placements, p)
	}

	if !req.SuppressHistory && e.cfg.History != nil && len(req.Mutations) > 0 {
		n := e.cfg.History.Record(OpMutate, Edit{Page: req.Page, Mutations: append([]Mutation(nil), req.Mutations...)})
		res.Node = &n
	}
	e.cfg.Logger.Debug("edit applied",
		observability.Int("page", req.Page),
		observability.Int("mutations", len(req.Mutations)),
		observability.Int("warnings", len(res.Warnings)))
	return res, nil
}

func (e *Engine) mutate(surf Surface, run textlayer.TextRun, m Mutation) (Placement, textlayer.TextRun, []error, error) {
	f := m.Format
	family, bold, italic := fonts.ClassifyBaseFont(run.Font)
	if run.Bold {
		bold = true
	}
	if run.Italic {
		italic = true
	}
	if f.Family != "" {
		family = f.Family
	}
	if f.Bold != nil {
		bold = *f.Bold
	}
	if f.Italic != nil {
		italic = *f.Italic
	}
	base := layout.Face{Family: family, Bold: bold, Italic: italic}
	size := run.FontSize
	if f.Size > 0 {
		size = f.Size
	}
	if size <= 0 {
		size = run.Height
	}
	color := run.Color
	if f.Color != nil {
		color = *f.Color
	}
	bg := *e.cfg.Background
	if f.Background != nil {
		bg = *f.Background
	}

	var warnings []error
	baseFont, err := e.cfg.Layout.Font(base)
	if err != nil {
		warnings = append(warnings, err)
	}

	spans := layout.ParseInline(m.NewText, f.Markup)
	widths, width := e.cfg.Layout.MeasureSpans(spans, size, base, f.Spacing)
	height := size

	baseline := run.Baseline()
	var ox float64
	switch f.Align {
	case layout.AlignCenter:
		ox = run.X - width/2
	case layout.AlignRight:
		ox = run.X - width
	default:
		ox = run.X
	}
	textBox := coords.DisplayRect{X: ox, Y: baseline - height, Width: width, Height: height}

	pad := e.cfg.Padding
	over := coords.DisplayRect{
		X:      run.X - pad,
		Y:      run.Y - run.Height - pad,
		Width:  math.Max(width, run.Width) + 2*pad,
		Height: math.Max(height, run.Height) + 2*pad,
	}
	over = over.Union(textBox.Outset(pad))

	if err := surf.FillRect(over, bg); err != nil {
		return Placement{}, run, nil, err
	}
	x := ox
	for i, s := range spans {
		face := s.Face(base)
		font, err := e.cfg.Layout.Font(face)
		if err != nil {
			warnings = append(warnings, err)
		}
		t := Text{
			Text:    s.Text,
			Origin:  coords.DisplayPoint{X: x, Y: baseline},
			Face:    face,
			Font:    font,
			Size:    size,
			Color:   color,
			Spacing: f.Spacing,
		}
		if err := surf.DrawText(t); err != nil {
			return Placement{}, run, nil, err
		}
		x += widths[i] + f.Spacing.Letter
	}
	if f.Underline && width > 0 {
		y := baseline + 2
		if err := surf.DrawLine(coords.DisplayPoint{X: ox, Y: y}, coords.DisplayPoint{X: ox + width, Y: y}, 1, color); err != nil {
			return Placement{}, run, nil, err
		}
	}
	if f.Strike && width > 0 {
		y := baseline - 0.3*size
		if err := surf.DrawLine(coords.DisplayPoint{X: ox, Y: y}, coords.DisplayPoint{X: ox + width, Y: y}, math.Max(size/20, 0.5), color); err != nil {
			return Placement{}, run, nil, err
		}
	}

	updated := textlayer.TextRun{
		ID:         run.ID,
		Text:       layout.Plain(spans),
		X:          ox,
		Y:          baseline,
		Width:      width,
		Height:     height,
		Font:       baseFont.Standard,
		FontSize:   size,
		Bold:       bold,
		Italic:     italic,
		Color:      color,
		Page:       run.Page,
		StartIndex: -1,
		EndIndex:   -1,
	}
	p := Placement{RunID: run.ID, Overpaint: over, TextBox: textBox, Baseline: baseline, Font: baseFont}
	return p, updated, warnings, nil
}
