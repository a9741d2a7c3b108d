package fonts

import (
	"bytes"
	"sync"
	"unicode"

	"github.com/go-text/typesetting/di"
	gofont "github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
)

// ShapedGlyph is a single shaped glyph. Advances and offsets are in glyph
// space units (1/1000 em).
type ShapedGlyph struct {
	ID       int
	Cluster  int
	XAdvance float64
	YAdvance float64
	XOffset  float64
	YOffset  float64
}

const maxCachedWidths = 4096

type widthKey struct {
	font string
	text string
}

// Measurer shapes text with HarfBuzz and caches advances. It is safe for
// concurrent use; each session owns its own instance.
type Measurer struct {
	mu     sync.Mutex
	shaper shaping.HarfbuzzShaper
	faces  map[string]*gofont.Face
	widths map[widthKey]float64
}

func NewMeasurer() *Measurer {
	return &Measurer{
		faces:  make(map[string]*gofont.Face),
		widths: make(map[widthKey]float64),
	}
}

func (m *Measurer) face(f *Font) (*gofont.Face, error) {
	if face, ok := m.faces[f.Name]; ok {
		return face, nil
	}
	face, err := gofont.ParseTTF(bytes.NewReader(f.Program))
	if err != nil {
		return nil, err
	}
	m.faces[f.Name] = face
	return face, nil
}

// Shape returns the glyphs of text set in f.
func (m *Measurer) Shape(f *Font, text string) ([]ShapedGlyph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shape(f, text)
}

func (m *Measurer) shape(f *Font, text string) ([]ShapedGlyph, error) {
	if f == nil || len(f.Program) == 0 || text == "" {
		return nil, nil
	}
	face, err := m.face(f)
	if err != nil {
		return nil, err
	}
	runes := []rune(text)
	script := DetectScript(runes)

	// 1000 units per em in 26.6 fixed point, so advances come out in glyph space
	input := shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: scriptDirection(script),
		Face:      face,
		Size:      fixed.Int26_6(1000 * 64),
		Script:    script,
		Language:  language.DefaultLanguage(),
	}
	output := m.shaper.Shape(input)

	result := make([]ShapedGlyph, 0, len(output.Glyphs))
	for _, g := range output.Glyphs {
		result = append(result, ShapedGlyph{
			ID:       int(g.GlyphID),
			Cluster:  int(g.ClusterIndex),
			XAdvance: float64(g.XAdvance) / 64.0,
			YAdvance: float64(g.YAdvance) / 64.0,
			XOffset:  float64(g.XOffset) / 64.0,
			YOffset:  float64(g.YOffset) / 64.0,
		})
	}
	return result, nil
}

// Advance is the shaped width of text in glyph space units.
func (m *Measurer) Advance(f *Font, text string) (float64, error) {
	if f == nil || text == "" {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := widthKey{f.Name, text}
	if w, ok := m.widths[key]; ok {
		return w, nil
	}
	glyphs, err := m.shape(f, text)
	if err != nil {
		return 0, err
	}
	var w float64
	for _, g := range glyphs {
		w += g.XAdvance
	}
	if len(m.widths) >= maxCachedWidths {
		m.widths = make(map[widthKey]float64)
	}
	m.widths[key] = w
	return w, nil
}

// Width is the advance of text at size in text space units.
func (m *Measurer) Width(f *Font, text string, size float64) (float64, error) {
	adv, err := m.Advance(f, text)
	if err != nil {
		return 0, err
	}
	return adv * size / 1000, nil
}

func scriptDirection(script language.Script) di.Direction {
	switch script {
	case language.Arabic, language.Hebrew, language.Syriac, language.Thaana, language.Nko:
		return di.DirectionRTL
	default:
		return di.DirectionLTR
	}
}

// DetectScript returns the most frequent script among runes, Latin when
// none is recognized. Ties keep the script seen first.
func DetectScript(runes []rune) language.Script {
	counts := make(map[language.Script]int)
	maxCount := 0
	best := language.Latin
	for _, r := range runes {
		script := scriptFromRune(r)
		if script == language.Unknown {
			continue
		}
		counts[script]++
		if counts[script] > maxCount {
			maxCount = counts[script]
			best = script
		}
	}
	return best
}

// IsRightToLeft reports whether text is dominated by a right-to-left script.
func IsRightToLeft(text string) bool {
	return scriptDirection(DetectScript([]rune(text))) == di.DirectionRTL
}

var scriptTables = []struct {
	table  *unicode.RangeTable
	script language.Script
}{
	{unicode.Arabic, language.Arabic},
	{unicode.Hebrew, language.Hebrew},
	{unicode.Latin, language.Latin},
	{unicode.Cyrillic, language.Cyrillic},
	{unicode.Greek, language.Greek},
	{unicode.Thai, language.Thai},
	{unicode.Devanagari, language.Devanagari},
	{unicode.Bengali, language.Bengali},
	{unicode.Tamil, language.Tamil},
	{unicode.Han, language.Han},
	{unicode.Hiragana, language.Hiragana},
	{unicode.Katakana, language.Katakana},
	{unicode.Hangul, language.Hangul},
}

func scriptFromRune(r rune) language.Script {
	for _, s := range scriptTables {
		if unicode.Is(s.table, r) {
			return s.script
		}
	}
	return language.Unknown
}

// StandardWidths measures fonts that carry no /Widths, such as the standard
// 14, with the substitute program of their family.
func StandardWidths(r *Resolver, m *Measurer) WidthFunc {
	return func(baseFont, text string) float64 {
		family, bold, italic := ClassifyBaseFont(baseFont)
		w, err := m.Advance(r.Standard(family, bold, italic), text)
		if err != nil || w == 0 {
			return 500
		}
		return w
	}
}
