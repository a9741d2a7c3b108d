package textlayer

import (
	"math"
	"sort"

	"github.com/wudi/pdfedit/coords"
)

// quadTree is a spatial index over rectangles. Rectangles that straddle a
// split line stay in the parent node.
type quadTree struct {
	bounds   coords.DisplayRect
	capacity int
	depth    int
	entries  []entry
	nodes    []*quadTree
}

type entry struct {
	rect  coords.DisplayRect
	index int
}

const maxTreeDepth = 8

func newQuadTree(bounds coords.DisplayRect, capacity, depth int) *quadTree {
	return &quadTree{
		bounds:   bounds,
		capacity: capacity,
		depth:    depth,
		entries:  make([]entry, 0, capacity),
	}
}

func (qt *quadTree) insert(rect coords.DisplayRect, index int) bool {
	if !intersects(qt.bounds, rect) {
		return false
	}
	if qt.nodes != nil {
		for _, node := range qt.nodes {
			if contains(node.bounds, rect) && node.insert(rect, index) {
				return true
			}
		}
		qt.entries = append(qt.entries, entry{rect, index})
		return true
	}
	if len(qt.entries) < qt.capacity || qt.depth >= maxTreeDepth {
		qt.entries = append(qt.entries, entry{rect, index})
		return true
	}
	qt.subdivide()
	old := qt.entries
	qt.entries = make([]entry, 0, qt.capacity)
	for _, e := range old {
		qt.insert(e.rect, e.index)
	}
	return qt.insert(rect, index)
}

func (qt *quadTree) subdivide() {
	b := qt.bounds
	w, h := b.Width/2, b.Height/2
	qt.nodes = []*quadTree{
		newQuadTree(coords.DisplayRect{X: b.X, Y: b.Y, Width: w, Height: h}, qt.capacity, qt.depth+1),
		newQuadTree(coords.DisplayRect{X: b.X + w, Y: b.Y, Width: w, Height: h}, qt.capacity, qt.depth+1),
		newQuadTree(coords.DisplayRect{X: b.X, Y: b.Y + h, Width: w, Height: h}, qt.capacity, qt.depth+1),
		newQuadTree(coords.DisplayRect{X: b.X + w, Y: b.Y + h, Width: w, Height: h}, qt.capacity, qt.depth+1),
	}
}

func (qt *quadTree) query(r coords.DisplayRect, found []int) []int {
	if !intersects(qt.bounds, r) {
		return found
	}
	for _, e := range qt.entries {
		if intersects(e.rect, r) {
			found = append(found, e.index)
		}
	}
	for _, node := range qt.nodes {
		found = node.query(r, found)
	}
	return found
}

func intersects(a, b coords.DisplayRect) bool {
	return !(b.X > a.Right() || b.Right() < a.X || b.Y > a.Bottom() || b.Bottom() < a.Y)
}

func contains(outer, inner coords.DisplayRect) bool {
	return inner.X >= outer.X && inner.Right() <= outer.Right() &&
		inner.Y >= outer.Y && inner.Bottom() <= outer.Bottom()
}

// Index answers hit tests over a fixed set of runs without scanning every
// run. Its answers equal FindRunAtPoint over the same runs.
type Index struct {
	runs []TextRun
	tree *quadTree
}

// NewIndex indexes runs. The slice must not be modified afterwards.
func NewIndex(runs []TextRun) *Index {
	idx := &Index{runs: runs}
	if len(runs) == 0 {
		return idx
	}
	bounds := runs[0].Box()
	for _, r := range runs[1:] {
		bounds = bounds.Union(r.Box())
	}
	idx.tree = newQuadTree(bounds, 8, 0)
	for i, r := range runs {
		idx.tree.insert(r.Box(), i)
	}
	return idx
}

// Len is the number of indexed runs.
func (idx *Index) Len() int { return len(idx.runs) }

// Runs returns the indexed runs.
func (idx *Index) Runs() []TextRun { return idx.runs }

// FindRunAtPoint is FindRunAtPoint restricted to candidate runs near the
// point.
func (idx *Index) FindRunAtPoint(x, y, tolerance float64) (TextRun, bool) {
	if idx.tree == nil {
		return TextRun{}, false
	}
	window := coords.DisplayRect{X: x, Y: y}.Outset(math.Max(tolerance, 0))
	hits := idx.tree.query(window, nil)
	sort.Ints(hits)
	candidates := make([]TextRun, len(hits))
	for i, h := range hits {
		candidates[i] = idx.runs[h]
	}
	return FindRunAtPoint(x, y, candidates, tolerance)
}

// Within returns the runs whose boxes intersect r, in page order.
func (idx *Index) Within(r coords.DisplayRect) []TextRun {
	if idx.tree == nil {
		return nil
	}
	hits := idx.tree.query(r, nil)
	if len(hits) == 0 {
		return nil
	}
	sort.Ints(hits)
	out := make([]TextRun, len(hits))
	for i, h := range hits {
		out[i] = idx.runs[h]
	}
	return out
}
