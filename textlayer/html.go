package textlayer

import (
	"fmt"
	"io"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/wudi/pdfedit/fonts"
)

// OverlayClass is the class of the overlay's container element.
const OverlayClass = "textLayer"

// RenderHTML writes a transparent text overlay for a page of the given
// display size: one absolutely positioned span per run, sized to the run
// box and scaled by zoom. The spans carry the run id in data-run-id so a
// UI can map pointer events back to runs.
func RenderHTML(w io.Writer, width, height, zoom float64, runs []TextRun) error {
	if zoom <= 0 {
		zoom = 1
	}
	root := element(atom.Div,
		attr("class", OverlayClass),
		attr("style", fmt.Sprintf("position:relative;width:%spx;height:%spx", px(width*zoom), px(height*zoom))),
	)
	for _, r := range runs {
		family, _, _ := fonts.ClassifyBaseFont(r.Font)
		style := fmt.Sprintf(
			"position:absolute;left:%spx;top:%spx;width:%spx;height:%spx;font-size:%spx;line-height:1;font-family:%s;color:transparent;white-space:pre",
			px(r.X*zoom), px((r.Y-r.Height)*zoom), px(r.Width*zoom), px(r.Height*zoom), px(r.FontSize*zoom), family)
		if r.Bold {
			style += ";font-weight:bold"
		}
		if r.Italic {
			style += ";font-style:italic"
		}
		span := element(atom.Span,
			attr("data-run-id", r.ID),
			attr("style", style),
		)
		span.AppendChild(&html.Node{Type: html.TextNode, Data: r.Text})
		root.AppendChild(span)
	}
	return html.Render(w, root)
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute { return html.Attribute{Key: key, Val: val} }

func px(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
