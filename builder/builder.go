// Package builder assembles small PDF files in memory. It backs the test
// fixtures of the other packages and the CLI's sample command.
package builder

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/fonts"
	"github.com/wudi/pdfedit/ir/raw"
	"github.com/wudi/pdfedit/writer"
)

// PDFBuilder provides a fluent API for PDF construction.
type PDFBuilder interface {
	NewPage(width, height float64) PageBuilder
	SetInfo(title, author string) PDFBuilder
	// RegisterTrueTypeFont makes an embedded TrueType font available to
	// DrawText under name.
	RegisterTrueTypeFont(name string, data []byte) PDFBuilder
	SetOptions(opts Options) PDFBuilder
	Build() ([]byte, error)
}

// PageBuilder provides a fluent API for page construction.
type PageBuilder interface {
	DrawText(text string, x, y float64, opts TextOptions) PageBuilder
	DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder
	DrawLine(x1, y1, x2, y2 float64, opts LineOptions) PageBuilder
	// DrawForm draws into a form XObject placed with its origin at x, y.
	DrawForm(x, y float64, draw func(PageBuilder)) PageBuilder
	SetMediaBox(llx, lly, urx, ury float64) PageBuilder
	SetRotation(degrees int) PageBuilder
	Finish() PDFBuilder
}

// TextOptions configures text drawing. Font is a standard font name such
// as "Helvetica-Bold" or a name passed to RegisterTrueTypeFont.
type TextOptions struct {
	Font        string
	FontSize    float64
	Color       contentstream.Color
	RenderMode  contentstream.TextRenderMode
	CharSpacing float64
	WordSpacing float64
	// Matrix replaces the default translation to x, y when set.
	Matrix *coords.Matrix
}

// RectOptions configures rectangle drawing (defaults to stroke if neither fill nor stroke is set).
type RectOptions struct {
	StrokeColor contentstream.Color
	FillColor   contentstream.Color
	LineWidth   float64
	Fill        bool
	Stroke      bool
}

// LineOptions configures line drawing.
type LineOptions struct {
	StrokeColor contentstream.Color
	LineWidth   float64
}

// Options controls the file layout.
type Options struct {
	Version     writer.PDFVersion
	Compression int
	XRefStreams bool
}

type fontResource struct {
	name     string // resource name
	standard string
	program  []byte
	used     strings.Builder
}

type builderImpl struct {
	pages  []*pageBuilderImpl
	title  string
	author string
	custom map[string][]byte
	fonts  map[string]*fontResource
	order  []string
	opts   Options
}

func NewBuilder() PDFBuilder {
	return &builderImpl{custom: make(map[string][]byte), fonts: make(map[string]*fontResource)}
}

func (b *builderImpl) NewPage(w, h float64) PageBuilder {
	p := &pageBuilderImpl{parent: b, mediaBox: [4]float64{0, 0, w, h}}
	b.pages = append(b.pages, p)
	return p
}

func (b *builderImpl) SetInfo(title, author string) PDFBuilder {
	b.title, b.author = title, author
	return b
}

func (b *builderImpl) RegisterTrueTypeFont(name string, data []byte) PDFBuilder {
	b.custom[name] = data
	return b
}

func (b *builderImpl) SetOptions(opts Options) PDFBuilder {
	b.opts = opts
	return b
}

func (b *builderImpl) font(name string) *fontResource {
	if name == "" {
		name = "Helvetica"
	}
	if f, ok := b.fonts[name]; ok {
		return f
	}
	f := &fontResource{name: fmt.Sprintf("F%d", len(b.fonts)+1)}
	if prog, ok := b.custom[name]; ok {
		f.program = prog
	} else {
		f.standard = name
	}
	b.fonts[name] = f
	b.order = append(b.order, name)
	return f
}

type pageBuilderImpl struct {
	parent   *builderImpl
	mediaBox [4]float64
	rotate   int
	content  contentstream.Builder
	fonts    map[string]bool
	forms    []formXObject
}

type formXObject struct {
	name    string
	matrix  coords.Matrix
	content []byte
	fonts   map[string]bool
}

func (p *pageBuilderImpl) useFont(f *fontResource) {
	if p.fonts == nil {
		p.fonts = make(map[string]bool)
	}
	p.fonts[f.name] = true
}

func (p *pageBuilderImpl) DrawText(text string, x, y float64, opts TextOptions) PageBuilder {
	f := p.parent.font(opts.Font)
	p.useFont(f)
	f.used.WriteString(text)
	size := opts.FontSize
	if size <= 0 {
		size = 12
	}
	m := coords.Translate(x, y)
	if opts.Matrix != nil {
		m = *opts.Matrix
	}
	codes, _ := fonts.EncodeWinAnsi(text)

	c := &p.content
	c.BeginText()
	if opts.Color != contentstream.Black {
		c.FillColor(opts.Color)
	}
	c.Font(f.name, size)
	if opts.CharSpacing != 0 {
		c.CharSpacing(opts.CharSpacing)
	}
	if opts.WordSpacing != 0 {
		c.WordSpacing(opts.WordSpacing)
	}
	if opts.RenderMode != contentstream.TextFill {
		c.Op("Tr", raw.NumberInt(int64(opts.RenderMode)))
	}
	c.TextMatrix(m).ShowText(codes).EndText()
	return p
}

func (p *pageBuilderImpl) DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder {
	c := &p.content
	c.Save()
	if opts.LineWidth > 0 {
		c.LineWidth(opts.LineWidth)
	}
	if opts.Fill {
		c.FillColor(opts.FillColor)
	}
	if opts.Stroke || !opts.Fill {
		c.StrokeColor(opts.StrokeColor)
	}
	c.Rect(x, y, width, height)
	switch {
	case opts.Fill && opts.Stroke:
		c.Op("B")
	case opts.Fill:
		c.Fill()
	default:
		c.Stroke()
	}
	c.Restore()
	return p
}

func (p *pageBuilderImpl) DrawLine(x1, y1, x2, y2 float64, opts LineOptions) PageBuilder {
	c := &p.content
	c.Save()
	if opts.LineWidth > 0 {
		c.LineWidth(opts.LineWidth)
	}
	c.StrokeColor(opts.StrokeColor).MoveTo(x1, y1).LineTo(x2, y2).Stroke().Restore()
	return p
}

func (p *pageBuilderImpl) DrawForm(x, y float64, draw func(PageBuilder)) PageBuilder {
	inner := &pageBuilderImpl{parent: p.parent, mediaBox: p.mediaBox}
	draw(inner)
	name := fmt.Sprintf("Fm%d", len(p.forms)+1)
	p.forms = append(p.forms, formXObject{
		name:    name,
		matrix:  coords.Translate(x, y),
		content: append([]byte(nil), inner.content.Bytes()...),
		fonts:   inner.fonts,
	})
	p.content.Save().Op("Do", raw.NameLiteral(name)).Restore()
	return p
}

func (p *pageBuilderImpl) SetMediaBox(llx, lly, urx, ury float64) PageBuilder {
	p.mediaBox = [4]float64{llx, lly, urx, ury}
	return p
}

func (p *pageBuilderImpl) SetRotation(degrees int) PageBuilder {
	p.rotate = ((degrees % 360) + 360) % 360
	return p
}

func (p *pageBuilderImpl) Finish() PDFBuilder { return p.parent }

// Build writes the document. Object numbers are assigned in a fixed order
// so identical input yields identical bytes.
func (b *builderImpl) Build() ([]byte, error) {
	objects := map[raw.ObjectRef]raw.Object{}
	next := 0
	alloc := func() raw.ObjectRef {
		next++
		return raw.ObjectRef{Num: next}
	}
	ref := func(r raw.ObjectRef) raw.RefObj { return raw.Ref(r.Num, r.Gen) }

	catalogRef, pagesRef := alloc(), alloc()

	fontRefs := map[string]raw.ObjectRef{}
	for _, key := range b.order {
		f := b.fonts[key]
		var font *fonts.Font
		if f.program != nil {
			font = &fonts.Font{Family: key, Name: strings.ReplaceAll(key, " ", ""), Program: f.program, Embedded: true}
		} else {
			family, bold, italic := fonts.ClassifyBaseFont(f.standard)
			font = fonts.NewResolver(nil).Standard(family, bold, italic)
			font.Standard = f.standard
		}
		e, err := fonts.Embed(font, f.used.String(), alloc)
		if err != nil {
			return nil, fmt.Errorf("font %s: %w", key, err)
		}
		for r, o := range e.Objects {
			objects[r] = o
		}
		fontRefs[f.name] = e.Ref
	}
	fontDict := func(used map[string]bool) *raw.DictObj {
		d := raw.Dict()
		names := make([]string, 0, len(used))
		for n := range used {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			d.Set(n, ref(fontRefs[n]))
		}
		return d
	}

	kids := raw.NewArray()
	for _, p := range b.pages {
		pageRef, contentRef := alloc(), alloc()
		res := raw.Dict()
		if len(p.fonts) > 0 {
			res.Set("Font", fontDict(p.fonts))
		}
		if len(p.forms) > 0 {
			xo := raw.Dict()
			for _, fx := range p.forms {
				formRef := alloc()
				fd := raw.Dict()
				fd.Set("Type", raw.NameLiteral("XObject"))
				fd.Set("Subtype", raw.NameLiteral("Form"))
				fd.Set("BBox", floats(p.mediaBox[:]...))
				fd.Set("Matrix", floats(fx.matrix[:]...))
				if len(fx.fonts) > 0 {
					fr := raw.Dict()
					fr.Set("Font", fontDict(fx.fonts))
					fd.Set("Resources", fr)
				}
				objects[formRef] = raw.NewStream(fd, fx.content)
				xo.Set(fx.name, ref(formRef))
			}
			res.Set("XObject", xo)
		}
		pd := raw.Dict()
		pd.Set("Type", raw.NameLiteral("Page"))
		pd.Set("Parent", ref(pagesRef))
		pd.Set("MediaBox", floats(p.mediaBox[:]...))
		pd.Set("Resources", res)
		pd.Set("Contents", ref(contentRef))
		if p.rotate != 0 {
			pd.Set("Rotate", raw.NumberInt(int64(p.rotate)))
		}
		objects[pageRef] = pd
		objects[contentRef] = raw.NewStream(raw.Dict(), append([]byte(nil), p.content.Bytes()...))
		kids.Append(ref(pageRef))
	}

	pages := raw.Dict()
	pages.Set("Type", raw.NameLiteral("Pages"))
	pages.Set("Kids", kids)
	pages.Set("Count", raw.NumberInt(int64(len(b.pages))))
	objects[pagesRef] = pages

	catalog := raw.Dict()
	catalog.Set("Type", raw.NameLiteral("Catalog"))
	catalog.Set("Pages", ref(pagesRef))
	objects[catalogRef] = catalog

	file := &writer.File{Objects: objects, Root: catalogRef}
	if b.title != "" || b.author != "" {
		infoRef := alloc()
		info := raw.Dict()
		if b.title != "" {
			info.Set("Title", raw.Str([]byte(b.title)))
		}
		if b.author != "" {
			info.Set("Author", raw.Str([]byte(b.author)))
		}
		objects[infoRef] = info
		file.Info = &infoRef
	}

	var out bytes.Buffer
	cfg := writer.Config{Version: b.opts.Version, Compression: b.opts.Compression, XRefStreams: b.opts.XRefStreams}
	if err := (&writer.Writer{}).Write(context.Background(), &out, file, cfg); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func floats(v ...float64) *raw.ArrayObj {
	arr := raw.NewArray()
	for _, f := range v {
		if f == float64(int64(f)) {
			arr.Append(raw.NumberInt(int64(f)))
			continue
		}
		arr.Append(raw.NumberFloat(f))
	}
	return arr
}
