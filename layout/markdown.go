package layout

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Markup selects how replacement text is interpreted.
type Markup int

const (
	MarkupNone Markup = iota
	MarkupMarkdown
)

// Span is a piece of text sharing one style.
type Span struct {
	Text   string
	Bold   bool
	Italic bool
	Code   bool
}

// Face returns the face a span is drawn with given the run's base face.
// Code spans use the monospace family.
func (s Span) Face(base Face) Face {
	f := Face{Family: base.Family, Bold: base.Bold || s.Bold, Italic: base.Italic || s.Italic}
	if s.Code {
		f.Family = "monospace"
	}
	return f
}

func (s Span) sameStyle(o Span) bool {
	return s.Bold == o.Bold && s.Italic == o.Italic && s.Code == o.Code
}

// ParseInline splits text into styled spans. Markdown input keeps only
// inline styling: emphasis, strong emphasis and code spans. Block
// structure collapses into a single line with blocks separated by a space.
func ParseInline(source string, m Markup) []Span {
	if source == "" {
		return nil
	}
	if m != MarkupMarkdown {
		return []Span{{Text: source}}
	}
	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var spans []Span
	for block := doc.FirstChild(); block != nil; block = block.NextSibling() {
		spans = walkInline(block, src, Span{}, separate(spans))
	}
	return spans
}

func walkInline(node ast.Node, source []byte, style Span, spans []Span) []Span {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Text:
			s := style
			s.Text = string(n.Segment.Value(source))
			spans = appendSpan(spans, s)
			if n.SoftLineBreak() || n.HardLineBreak() {
				spans = appendSpan(spans, Span{Text: " ", Bold: style.Bold, Italic: style.Italic, Code: style.Code})
			}
		case *ast.String:
			s := style
			s.Text = string(n.Value)
			spans = appendSpan(spans, s)
		case *ast.Emphasis:
			s := style
			if n.Level >= 2 {
				s.Bold = true
			} else {
				s.Italic = true
			}
			spans = walkInline(n, source, s, spans)
		case *ast.CodeSpan:
			s := style
			s.Code = true
			spans = walkInline(n, source, s, spans)
		default:
			if child.Type() == ast.TypeBlock {
				spans = separate(spans)
			}
			spans = walkInline(child, source, style, spans)
		}
	}
	return spans
}

// separate ends spans with a single space unless it is empty or already
// ends with whitespace.
func separate(spans []Span) []Span {
	n := len(spans)
	if n == 0 {
		return spans
	}
	if t := spans[n-1].Text; t[len(t)-1] == ' ' {
		return spans
	}
	return appendSpan(spans, Span{Text: " "})
}

func appendSpan(spans []Span, s Span) []Span {
	if s.Text == "" {
		return spans
	}
	if n := len(spans); n > 0 && spans[n-1].sameStyle(s) {
		spans[n-1].Text += s.Text
		return spans
	}
	return append(spans, s)
}

// Plain concatenates the text of spans.
func Plain(spans []Span) string {
	var n int
	for _, s := range spans {
		n += len(s.Text)
	}
	b := make([]byte, 0, n)
	for _, s := range spans {
		b = append(b, s.Text...)
	}
	return string(b)
}

// MeasureSpans returns the width of each span set at size, starting from
// the base face, and their total.
func (e *Engine) MeasureSpans(spans []Span, size float64, base Face, sp Spacing) ([]float64, float64) {
	widths := make([]float64, len(spans))
	var total float64
	for i, s := range spans {
		widths[i] = e.MeasureFace(s.Text, size, s.Face(base), sp).Width
		total += widths[i]
	}
	if len(spans) > 1 && sp.Letter != 0 {
		// letter spacing also separates the last rune of a span from the
		// first of the next
		total += float64(len(spans)-1) * sp.Letter
	}
	return widths, total
}
