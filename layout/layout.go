// Package layout measures and wraps text and maps between character
// indices and positions along a line.
package layout

import (
	"math"
	"strings"
	"unicode"

	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/fonts"
	"github.com/wudi/pdfedit/observability"
)

// Ascent and descent as fractions of the font size. Exact font metrics are
// not consulted; every box the engine reports uses these ratios.
const (
	AscentRatio  = 0.8
	DescentRatio = 0.2

	// FallbackAdvance is the width of one character, in ems, when a font
	// program cannot be shaped.
	FallbackAdvance = 0.6

	DefaultLineHeight = 1.2
)

// Face selects a font by family and style.
type Face struct {
	Family string
	Bold   bool
	Italic bool
}

// Spacing adds extra space between characters and at word breaks, in text
// space units.
type Spacing struct {
	Letter float64
	Word   float64
}

// Align positions a line within the available width.
type Align int

const (
	AlignLeft Align = iota
	AlignCenter
	AlignRight
	// AlignJustify is accepted but lays lines out left aligned; word gaps
	// are never stretched.
	AlignJustify
)

func (a Align) String() string {
	switch a {
	case AlignCenter:
		return "center"
	case AlignRight:
		return "right"
	case AlignJustify:
		return "justify"
	default:
		return "left"
	}
}

// ParseAlign accepts the names returned by Align.String.
func ParseAlign(s string) (Align, bool) {
	switch strings.ToLower(s) {
	case "", "left":
		return AlignLeft, true
	case "center":
		return AlignCenter, true
	case "right":
		return AlignRight, true
	case "justify":
		return AlignJustify, true
	}
	return AlignLeft, false
}

// Metrics describes measured text. The bounding box is relative to the
// baseline origin with y growing downwards.
type Metrics struct {
	Width       float64
	Height      float64
	Ascent      float64
	Descent     float64
	Baseline    float64
	BoundingBox coords.Rect
}

// Line is one wrapped line. Y is the top of the line relative to the first.
type Line struct {
	Text    string
	X       float64
	Y       float64
	Width   float64
	Height  float64
	Metrics Metrics
}

// Result is the outcome of Layout.
type Result struct {
	Lines       []Line
	TotalWidth  float64
	TotalHeight float64
}

// Options controls Layout.
type Options struct {
	// LineHeight is a multiplier of the font size; zero means 1.2.
	LineHeight float64
	Align      Align
	Spacing    Spacing
}

// Engine measures text with shaped font programs. It is not shared between
// sessions; the resolver and measurer caches belong to the engine.
type Engine struct {
	resolver *fonts.Resolver
	measurer *fonts.Measurer
	log      observability.Logger

	DefaultFamily string
	DefaultSize   float64
	LineHeight    float64
}

// Option defines a configuration option for the Engine.
type Option func(*Engine)

// WithResolver shares a font resolver with the engine.
func WithResolver(r *fonts.Resolver) Option {
	return func(e *Engine) {
		e.resolver = r
	}
}

// WithMeasurer shares a shaping cache with the engine.
func WithMeasurer(m *fonts.Measurer) Option {
	return func(e *Engine) {
		e.measurer = m
	}
}

// WithLogger sets the logger used for measurement fallbacks.
func WithLogger(l observability.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithDefaultFont sets the family used when a call names none.
func WithDefaultFont(family string) Option {
	return func(e *Engine) {
		e.DefaultFamily = family
	}
}

// WithDefaultFontSize sets the size used when a call passes zero.
func WithDefaultFontSize(size float64) Option {
	return func(e *Engine) {
		e.DefaultSize = size
	}
}

// WithLineHeight sets the line height multiplier.
func WithLineHeight(height float64) Option {
	return func(e *Engine) {
		e.LineHeight = height
	}
}

// NewEngine creates a new layout engine with optional configuration.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		DefaultFamily: "Helvetica",
		DefaultSize:   12,
		LineHeight:    DefaultLineHeight,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = observability.OrNop(e.log)
	if e.resolver == nil {
		e.resolver = fonts.NewResolver(e.log)
	}
	if e.measurer == nil {
		e.measurer = fonts.NewMeasurer()
	}
	return e
}

// Resolver returns the engine's font resolver.
func (e *Engine) Resolver() *fonts.Resolver { return e.resolver }

// Font resolves face. A substituted standard font comes back together with
// its *fonts.EmbedError.
func (e *Engine) Font(face Face) (*fonts.Font, error) {
	family := face.Family
	if family == "" {
		family = e.DefaultFamily
	}
	return e.resolver.Resolve(family, face.Bold, face.Italic)
}

func (e *Engine) size(size float64) float64 {
	if size <= 0 {
		return e.DefaultSize
	}
	return size
}

// width is the unspaced advance of text set in f.
func (e *Engine) width(f *fonts.Font, text string, size float64) float64 {
	if text == "" {
		return 0
	}
	if f != nil && len(f.Program) > 0 {
		w, err := e.measurer.Width(f, text, size)
		if err == nil {
			return w
		}
		e.log.Debug("shaping failed, estimating width",
			observability.String("font", f.Name),
			observability.Error("error", err))
	}
	return float64(len([]rune(text))) * size * FallbackAdvance
}

// Measure measures text in the regular style of family.
func (e *Engine) Measure(text string, size float64, family string, sp Spacing) Metrics {
	return e.MeasureFace(text, size, Face{Family: family}, sp)
}

// MeasureFace measures text set in face.
func (e *Engine) MeasureFace(text string, size float64, face Face, sp Spacing) Metrics {
	size = e.size(size)
	f, _ := e.Font(face)
	w := e.width(f, text, size) + spacingWidth(text, sp)
	return metrics(w, size)
}

func metrics(width, size float64) Metrics {
	ascent := size * AscentRatio
	return Metrics{
		Width:       width,
		Height:      size,
		Ascent:      ascent,
		Descent:     size * DescentRatio,
		Baseline:    ascent,
		BoundingBox: coords.Rect{X: 0, Y: -ascent, Width: width, Height: size},
	}
}

// spacingWidth is the extra width letter and word spacing add to text.
// Letter spacing applies between characters; word spacing once per run of
// whitespace.
func spacingWidth(text string, sp Spacing) float64 {
	var extra float64
	if sp.Letter != 0 {
		if n := len([]rune(text)); n > 1 {
			extra += float64(n-1) * sp.Letter
		}
	}
	if sp.Word != 0 {
		extra += float64(wordBreaks(text)) * sp.Word
	}
	return extra
}

func wordBreaks(text string) int {
	n := 0
	inSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !inSpace {
				n++
			}
			inSpace = true
			continue
		}
		inSpace = false
	}
	return n
}

// Layout wraps text greedily into lines no wider than maxWidth. A word
// wider than maxWidth gets a line of its own and overflows it.
//
// A non-zero Spacing.Word stands in for the whole gap between words while
// wrapping, but the closed line is measured with both the space glyph and
// the word spacing. Such lines can exceed maxWidth by the width of their
// spaces.
func (e *Engine) Layout(text string, maxWidth, size float64, family string, opts Options) Result {
	size = e.size(size)
	face := Face{Family: family}
	lh := opts.LineHeight
	if lh <= 0 {
		lh = e.LineHeight
	}
	lineHeight := lh * size

	space := opts.Spacing.Word
	if space == 0 {
		space = e.MeasureFace(" ", size, face, Spacing{}).Width
	}
	wordSpacing := Spacing{Letter: opts.Spacing.Letter}

	var res Result
	var current []string
	currentWidth := 0.0
	y := 0.0

	closeLine := func() {
		if len(current) == 0 {
			return
		}
		text := strings.Join(current, " ")
		m := e.MeasureFace(text, size, face, opts.Spacing)
		res.Lines = append(res.Lines, Line{
			Text:    text,
			X:       alignOffset(opts.Align, maxWidth, m.Width),
			Y:       y,
			Width:   m.Width,
			Height:  m.Height,
			Metrics: m,
		})
		y += lineHeight
	}

	for _, word := range strings.Fields(text) {
		w := e.MeasureFace(word, size, face, wordSpacing).Width
		gap := 0.0
		if len(current) > 0 {
			gap = space
		}
		if currentWidth+w+gap <= maxWidth {
			current = append(current, word)
			currentWidth += w + gap
			continue
		}
		closeLine()
		current = []string{word}
		currentWidth = w
	}
	closeLine()

	for _, l := range res.Lines {
		res.TotalWidth = math.Max(res.TotalWidth, l.Width)
	}
	res.TotalHeight = float64(len(res.Lines)) * lineHeight
	return res
}

func alignOffset(a Align, maxWidth, width float64) float64 {
	switch a {
	case AlignCenter:
		return (maxWidth - width) / 2
	case AlignRight:
		return maxWidth - width
	default:
		return 0
	}
}

// CharacterPosition is the x offset of the cursor before the rune at index.
// Indices outside [0, len] yield 0.
func (e *Engine) CharacterPosition(text string, index int, size float64, family string, sp Spacing) float64 {
	runes := []rune(text)
	if index < 0 || index > len(runes) {
		return 0
	}
	return e.Measure(string(runes[:index]), size, family, sp).Width
}

// CharacterIndexAtPosition returns the cursor index closest to x, trying
// every prefix of text. Ties keep the lower index.
func (e *Engine) CharacterIndexAtPosition(text string, x, size float64, family string, sp Spacing) int {
	n := len([]rune(text))
	best, bestDist := 0, math.Inf(1)
	for i := 0; i <= n; i++ {
		d := math.Abs(e.CharacterPosition(text, i, size, family, sp) - x)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// SelectionRect covers the runes between start and end, relative to the
// baseline origin.
func (e *Engine) SelectionRect(text string, start, end int, size float64, family string, sp Spacing) coords.Rect {
	size = e.size(size)
	x0 := e.CharacterPosition(text, start, size, family, sp)
	x1 := e.CharacterPosition(text, end, size, family, sp)
	return coords.Rect{
		X:      math.Min(x0, x1),
		Y:      -size * AscentRatio,
		Width:  math.Abs(x1 - x0),
		Height: size,
	}
}
