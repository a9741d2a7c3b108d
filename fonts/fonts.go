// Package fonts resolves font families to font programs, measures text by
// shaping it, embeds programs into PDF files and decodes the fonts found in
// existing PDF files.
package fonts

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"

	"github.com/wudi/pdfedit/observability"
)

// ErrUnknownFamily reports a family with no program registered or built in.
var ErrUnknownFamily = errors.New("unknown font family")

// EmbedError reports that the requested font could not be embedded and a
// standard font was substituted. The Font returned alongside it is usable.
type EmbedError struct {
	Family string
	Err    error
}

func (e *EmbedError) Error() string {
	return fmt.Sprintf("font %q not embeddable, using standard font: %v", e.Family, e.Err)
}

func (e *EmbedError) Unwrap() error { return e.Err }

// Font is a resolved face. Program always holds a TrueType program used for
// measurement; Embedded tells whether that program is written into the file
// or the face is drawn with the standard font named by Standard.
type Font struct {
	Family   string
	Bold     bool
	Italic   bool
	Name     string
	Program  []byte
	Standard string
	Embedded bool
}

type class int

const (
	sans class = iota
	serif
	mono
)

type programSet [4][]byte // regular, bold, italic, bold italic

var goPrograms = map[class]programSet{
	sans:  {goregular.TTF, gobold.TTF, goitalic.TTF, gobolditalic.TTF},
	serif: {goregular.TTF, gobold.TTF, goitalic.TTF, gobolditalic.TTF},
	mono:  {gomono.TTF, gomonobold.TTF, gomonoitalic.TTF, gomonobolditalic.TTF},
}

var standardNames = map[class][4]string{
	sans:  {"Helvetica", "Helvetica-Bold", "Helvetica-Oblique", "Helvetica-BoldOblique"},
	serif: {"Times-Roman", "Times-Bold", "Times-Italic", "Times-BoldItalic"},
	mono:  {"Courier", "Courier-Bold", "Courier-Oblique", "Courier-BoldOblique"},
}

var goNames = map[class][4]string{
	sans:  {"GoRegular", "GoBold", "GoItalic", "GoBoldItalic"},
	serif: {"GoRegular", "GoBold", "GoItalic", "GoBoldItalic"},
	mono:  {"GoMono", "GoMonoBold", "GoMonoItalic", "GoMonoBoldItalic"},
}

var families = map[string]class{
	"":                sans,
	"go":              sans,
	"sans-serif":      sans,
	"helvetica":       sans,
	"arial":           sans,
	"system-ui":       sans,
	"serif":           serif,
	"times":           serif,
	"times-roman":     serif,
	"times new roman": serif,
	"georgia":         serif,
	"monospace":       mono,
	"go mono":         mono,
	"courier":         mono,
	"courier new":     mono,
}

// ClassifyBaseFont maps a PDF /BaseFont such as "ABCDEF+Arial,Bold" to a
// family and style.
func ClassifyBaseFont(base string) (family string, bold, italic bool) {
	if i := strings.IndexByte(base, '+'); i == 6 {
		base = base[i+1:]
	}
	lower := strings.ToLower(base)
	bold = strings.Contains(lower, "bold") || strings.Contains(lower, "black") || strings.Contains(lower, "heavy")
	italic = strings.Contains(lower, "italic") || strings.Contains(lower, "oblique")
	switch {
	case strings.Contains(lower, "courier") || strings.Contains(lower, "mono"):
		family = "monospace"
	case strings.Contains(lower, "times") || strings.Contains(lower, "serif") && !strings.Contains(lower, "sans"):
		family = "serif"
	default:
		family = "sans-serif"
	}
	return family, bold, italic
}

type styleKey struct {
	family       string
	bold, italic bool
}

// Resolver maps family names to fonts. Each session owns one; results are
// cached per instance.
type Resolver struct {
	log observability.Logger

	mu     sync.Mutex
	custom map[styleKey][]byte
	cache  map[styleKey]resolved
}

type resolved struct {
	font *Font
	err  error
}

func NewResolver(log observability.Logger) *Resolver {
	return &Resolver{
		log:    observability.OrNop(log),
		custom: make(map[styleKey][]byte),
		cache:  make(map[styleKey]resolved),
	}
}

// Register makes a TrueType program available under family. The program is
// validated on first use, not here.
func (r *Resolver) Register(family string, bold, italic bool, program []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := styleKey{normalizeFamily(family), bold, italic}
	r.custom[key] = program
	delete(r.cache, key)
}

// Resolve returns the font for family. When the family cannot be embedded
// it returns the standard substitute together with an *EmbedError.
func (r *Resolver) Resolve(family string, bold, italic bool) (*Font, error) {
	key := styleKey{normalizeFamily(family), bold, italic}
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cache[key]; ok {
		return c.font, c.err
	}
	f, err := r.resolve(key, family)
	if err != nil {
		r.log.Warn("font substituted",
			observability.String("family", family),
			observability.String("standard", f.Standard),
			observability.Error("error", err))
	}
	r.cache[key] = resolved{f, err}
	return f, err
}

func (r *Resolver) resolve(key styleKey, family string) (*Font, error) {
	idx := styleIndex(key.bold, key.italic)
	if program, ok := r.custom[key]; ok {
		name, err := postScriptName(program)
		if err == nil {
			return &Font{
				Family: family, Bold: key.bold, Italic: key.italic,
				Name: name, Program: program, Standard: standardNames[sans][idx], Embedded: true,
			}, nil
		}
		f := standardFont(sans, key)
		f.Family = family
		return f, &EmbedError{Family: family, Err: err}
	}
	cls, ok := families[key.family]
	if !ok {
		f := standardFont(sans, key)
		f.Family = family
		return f, &EmbedError{Family: family, Err: ErrUnknownFamily}
	}
	return &Font{
		Family: family, Bold: key.bold, Italic: key.italic,
		Name: goNames[cls][idx], Program: goPrograms[cls][idx],
		Standard: standardNames[cls][idx], Embedded: true,
	}, nil
}

// Standard returns the non-embedded standard font for a family class.
func (r *Resolver) Standard(family string, bold, italic bool) *Font {
	cls, ok := families[normalizeFamily(family)]
	if !ok {
		cls = sans
	}
	f := standardFont(cls, styleKey{bold: bold, italic: italic})
	f.Family = family
	return f
}

func standardFont(cls class, key styleKey) *Font {
	idx := styleIndex(key.bold, key.italic)
	return &Font{
		Bold: key.bold, Italic: key.italic,
		Name:     standardNames[cls][idx],
		Program:  goPrograms[cls][idx],
		Standard: standardNames[cls][idx],
	}
}

func styleIndex(bold, italic bool) int {
	i := 0
	if bold {
		i |= 1
	}
	if italic {
		i |= 2
	}
	return i
}

func normalizeFamily(f string) string {
	f = strings.ToLower(strings.TrimSpace(f))
	return strings.Trim(f, `"'`)
}

func postScriptName(program []byte) (string, error) {
	if len(program) == 0 {
		return "", errors.New("empty font program")
	}
	f, err := sfnt.Parse(program)
	if err != nil {
		return "", fmt.Errorf("parse truetype: %w", err)
	}
	name, err := f.Name(nil, sfnt.NameIDPostScript)
	if err != nil || name == "" {
		return "CustomTT", nil
	}
	return strings.ReplaceAll(name, " ", ""), nil
}
