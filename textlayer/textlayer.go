// Package textlayer turns a page's content stream into addressable text:
// glyph placements become TextItems, items on one line become TextRuns,
// and runs can be hit-tested, searched and rendered as an HTML overlay.
//
// All geometry is in display space: origin at the top-left of the page as
// displayed, y growing downwards, one unit per point.
package textlayer

import (
	"fmt"

	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
)

// Direction is the reading direction of an item.
type Direction int

const (
	LeftToRight Direction = iota
	RightToLeft
	TopToBottom
)

func (d Direction) String() string {
	switch d {
	case RightToLeft:
		return "rtl"
	case TopToBottom:
		return "ttb"
	default:
		return "ltr"
	}
}

// TextItem is one extracted glyph-placement record: the text of one
// text-showing operator, split where the operator leaves a visible gap.
// Items are immutable once extracted.
type TextItem struct {
	Text string
	// Origin is the start of the baseline.
	Origin coords.DisplayPoint
	// DocOrigin is Origin before the y-flip.
	DocOrigin coords.DocPoint
	// Bounds is the axis-aligned box around the item's glyphs; rotated
	// text gets the box enclosing its rotated extent.
	Bounds coords.DisplayRect
	// Width and Height are measured along the baseline and across it.
	Width    float64
	Height   float64
	Font     string
	FontSize float64
	// Matrix is the text rendering matrix of the first glyph.
	Matrix    coords.Matrix
	Direction Direction
	Color     contentstream.Color
	Mode      contentstream.TextRenderMode
}

// Box is the item's axis-aligned extent.
func (it TextItem) Box() coords.DisplayRect { return it.Bounds }

// TextRun is a group of items believed to lie on one visual line.
//
// X and Y locate the bottom-left corner of the run's box: the box spans
// [X, X+Width] horizontally and [Y-Height, Y] vertically.
type TextRun struct {
	ID       string
	Text     string
	X        float64
	Y        float64
	Width    float64
	Height   float64
	Font     string
	FontSize float64
	Bold     bool
	Italic   bool
	Color    contentstream.Color
	Page     int
	// StartIndex and EndIndex are the inclusive range of member items in
	// the page's item list. Runs produced by edits have -1 for both.
	StartIndex int
	EndIndex   int
}

// Box is the run's extent as a display rectangle.
func (r TextRun) Box() coords.DisplayRect {
	return coords.DisplayRect{X: r.X, Y: r.Y - r.Height, Width: r.Width, Height: r.Height}
}

// Baseline is the y of the run's baseline; runs rest on it.
func (r TextRun) Baseline() float64 { return r.Y }

// RunID formats the id of the n-th run on a page.
func RunID(page, n int) string { return fmt.Sprintf("run-%d-%d", page, n) }

// ByID returns the run with id and its position in runs.
func ByID(runs []TextRun, id string) (TextRun, int, bool) {
	for i, r := range runs {
		if r.ID == id {
			return r, i, true
		}
	}
	return TextRun{}, -1, false
}
