package textlayer

import (
	"math"
	"strings"

	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/fonts"
)

const (
	DefaultLineThreshold = 5.0
	DefaultTolerance     = 10.0
)

// GroupIntoRuns groups items into runs in one forward pass. A new run
// starts whenever an item's baseline is more than lineThreshold away from
// the baseline of the first item of the current run. A non-positive
// threshold means DefaultLineThreshold. The result depends only on the
// arguments.
//
// The rule is a heuristic: items on one visual line with more vertical
// jitter than the threshold split into several runs, and items on
// different lines with nearly equal baselines, such as columns placed in
// reading order, merge when they are adjacent in the content stream.
func GroupIntoRuns(page int, items []TextItem, lineThreshold float64) []TextRun {
	if lineThreshold <= 0 {
		lineThreshold = DefaultLineThreshold
	}
	var runs []TextRun
	start := -1
	currentY := 0.0
	for i, it := range items {
		if start < 0 || math.Abs(it.Origin.Y-currentY) > lineThreshold {
			if start >= 0 {
				runs = append(runs, newRun(page, len(runs), items, start, i-1))
			}
			start = i
			currentY = it.Origin.Y
		}
	}
	if start >= 0 {
		runs = append(runs, newRun(page, len(runs), items, start, len(items)-1))
	}
	return runs
}

func newRun(page, n int, items []TextItem, first, last int) TextRun {
	lead := items[first]
	box := lead.Box()
	var text strings.Builder
	for _, it := range items[first : last+1] {
		box = box.Union(it.Box())
		text.WriteString(it.Text)
	}
	_, bold, italic := fonts.ClassifyBaseFont(lead.Font)
	return TextRun{
		ID:         RunID(page, n),
		Text:       text.String(),
		X:          box.X,
		Y:          box.Bottom(),
		Width:      box.Width,
		Height:     box.Height,
		Font:       lead.Font,
		FontSize:   lead.FontSize,
		Bold:       bold,
		Italic:     italic,
		Color:      lead.Color,
		Page:       page,
		StartIndex: first,
		EndIndex:   last,
	}
}

// FindRunAtPoint returns the run whose box, grown by tolerance on every
// side, contains (x, y). When several do, the run whose box center is
// closest wins; ties keep the earlier run. A miss reports false.
func FindRunAtPoint(x, y float64, runs []TextRun, tolerance float64) (TextRun, bool) {
	p := coords.DisplayPoint{X: x, Y: y}
	best := -1
	bestDist := math.Inf(1)
	for i, r := range runs {
		box := r.Box()
		if !box.Contains(p, tolerance) {
			continue
		}
		c := box.Center()
		if d := math.Hypot(x-c.X, y-c.Y); d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return TextRun{}, false
	}
	return runs[best], true
}
