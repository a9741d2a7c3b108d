package editor

import (
	"fmt"
	"strings"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/fonts"
)

// FontPrefix starts the resource names ContentSurface gives its fonts.
const FontPrefix = "PdfEditF"

// FontUse is a font drawn by a ContentSurface together with every string
// drawn in it.
type FontUse struct {
	Resource string
	Font     *fonts.Font
	Text     string
}

// ContentSurface writes drawing as PDF content stream operators that can
// be appended to a page. Display coordinates are mapped back through the
// page's transform so the operators work on rotated and cropped pages.
type ContentSurface struct {
	height float64
	toUser coords.Matrix
	ops    contentstream.Builder
	fonts  map[string]*FontUse
	order  []string
	lossy  bool
}

// NewContentSurface prepares a surface for a page whose user space maps
// to displayed document space by pageMatrix and whose displayed height is
// pageHeight. See parser.Page.Geometry.
func NewContentSurface(pageMatrix coords.Matrix, pageHeight float64) (*ContentSurface, error) {
	inv, err := pageMatrix.Inverse()
	if err != nil {
		return nil, fmt.Errorf("content surface: %w", err)
	}
	return &ContentSurface{height: pageHeight, toUser: inv, fonts: map[string]*FontUse{}}, nil
}

func (s *ContentSurface) doc(p coords.DisplayPoint) coords.DocPoint {
	return coords.ToDocumentSpace(p, s.height)
}

func (s *ContentSurface) FillRect(r coords.DisplayRect, c contentstream.Color) error {
	d := coords.RectToDocumentSpace(r, s.height)
	s.ops.FillColor(c).Rect(d.X, d.Y, d.Width, d.Height).Fill()
	return nil
}

func (s *ContentSurface) DrawText(t Text) error {
	if t.Font == nil {
		return fmt.Errorf("draw %q: no font", t.Text)
	}
	codes, lossy := fonts.EncodeWinAnsi(t.Text)
	s.lossy = s.lossy || lossy
	use := s.use(t.Font)
	use.Text += t.Text

	o := s.doc(t.Origin)
	s.ops.FillColor(t.Color).BeginText().Font(use.Resource, t.Size)
	if t.Spacing.Letter != 0 {
		s.ops.CharSpacing(t.Spacing.Letter)
	}
	if t.Spacing.Word != 0 {
		s.ops.WordSpacing(t.Spacing.Word)
	}
	s.ops.TextMatrix(coords.Translate(o.X, o.Y)).ShowText(codes).EndText()
	return nil
}

func (s *ContentSurface) DrawLine(from, to coords.DisplayPoint, width float64, c contentstream.Color) error {
	a, b := s.doc(from), s.doc(to)
	s.ops.StrokeColor(c).LineWidth(width).MoveTo(a.X, a.Y).LineTo(b.X, b.Y).Stroke()
	return nil
}

func fontKey(f *fonts.Font) string {
	if f.Embedded {
		return "e:" + f.Name
	}
	return "s:" + f.Standard
}

func (s *ContentSurface) use(f *fonts.Font) *FontUse {
	key := fontKey(f)
	if u, ok := s.fonts[key]; ok {
		return u
	}
	u := &FontUse{Resource: fmt.Sprintf("%s%d", FontPrefix, len(s.order)+1), Font: f}
	s.fonts[key] = u
	s.order = append(s.order, key)
	return u
}

// Empty reports whether nothing has been drawn.
func (s *ContentSurface) Empty() bool { return s.ops.Len() == 0 }

// Bytes returns the drawing wrapped in its own graphics state and mapped
// into page user space.
func (s *ContentSurface) Bytes() []byte {
	if s.Empty() {
		return nil
	}
	var b contentstream.Builder
	b.Save()
	if !s.toUser.IsIdentity() {
		b.Concat(s.toUser)
	}
	b.Raw(s.ops.Bytes())
	b.Restore()
	return b.Bytes()
}

// Fonts lists the fonts drawn in the order they were first used.
func (s *ContentSurface) Fonts() []FontUse {
	out := make([]FontUse, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, *s.fonts[k])
	}
	return out
}

// Lossy reports whether some drawn text had characters WinAnsiEncoding
// cannot represent.
func (s *ContentSurface) Lossy() bool { return s.lossy }

func (s *ContentSurface) String() string {
	return strings.TrimSpace(string(s.Bytes()))
}
