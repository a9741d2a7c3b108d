// Package coords keeps document space (origin bottom-left, y up, points)
// and display space (origin top-left, y down) apart at the type level.
// The only bridges between the two are ToDisplaySpace/ToDocumentSpace and
// their rectangle counterparts.
package coords

import (
	"errors"
	"math"
)

var ErrSingular = errors.New("matrix singular")

// Matrix is a PDF affine transform [a b c d e f]. Points are row vectors,
// so m.Multiply(n) applies m first and n second.
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

func (m Matrix) Determinant() float64 { return m[0]*m[3] - m[1]*m[2] }

func (m Matrix) Inverse() (Matrix, error) {
	det := m.Determinant()
	if math.Abs(det) < 1e-10 {
		return Matrix{}, ErrSingular
	}
	return Matrix{
		m[3] / det,
		-m[1] / det,
		-m[2] / det,
		m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det,
		(m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func (m Matrix) IsIdentity() bool { return m == Identity() }

// VerticalScale is the length of the transformed unit y vector; text
// extraction uses it to turn a font size into an on-page glyph height.
func (m Matrix) VerticalScale() float64 { return math.Hypot(m[2], m[3]) }

// HorizontalScale is the length of the transformed unit x vector.
func (m Matrix) HorizontalScale() float64 { return math.Hypot(m[0], m[1]) }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rotate is counter-clockwise by angle radians.
func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Point is a space-agnostic point used by matrix math.
type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{
		X: m[0]*p.X + m[2]*p.Y + m[4],
		Y: m[1]*p.X + m[3]*p.Y + m[5],
	}
}

// Rect is a space-agnostic axis-aligned box with (X, Y) at its minimum corner.
type Rect struct{ X, Y, Width, Height float64 }

// TransformBoundingBox maps the four corners of (x, y, w, h) and returns
// the smallest axis-aligned box containing them.
func TransformBoundingBox(x, y, w, h float64, m Matrix) Rect {
	corners := [4]Point{
		m.Transform(Point{x, y}),
		m.Transform(Point{x + w, y}),
		m.Transform(Point{x, y + h}),
		m.Transform(Point{x + w, y + h}),
	}
	minX, minY := corners[0].X, corners[0].Y
	maxX, maxY := minX, minY
	for _, c := range corners[1:] {
		minX = math.Min(minX, c.X)
		minY = math.Min(minY, c.Y)
		maxX = math.Max(maxX, c.X)
		maxY = math.Max(maxY, c.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// DocPoint is a point in PDF user space: origin bottom-left, y up.
type DocPoint struct{ X, Y float64 }

// DisplayPoint is a point on the display surface: origin top-left, y down.
type DisplayPoint struct{ X, Y float64 }

func ToDisplaySpace(p DocPoint, pageHeight float64) DisplayPoint {
	return DisplayPoint{X: p.X, Y: pageHeight - p.Y}
}

func ToDocumentSpace(p DisplayPoint, pageHeight float64) DocPoint {
	return DocPoint{X: p.X, Y: pageHeight - p.Y}
}

// DocRect has (X, Y) at its bottom-left corner.
type DocRect struct{ X, Y, Width, Height float64 }

// DisplayRect has (X, Y) at its top-left corner.
type DisplayRect struct{ X, Y, Width, Height float64 }

func RectToDisplaySpace(r DocRect, pageHeight float64) DisplayRect {
	return DisplayRect{X: r.X, Y: pageHeight - (r.Y + r.Height), Width: r.Width, Height: r.Height}
}

func RectToDocumentSpace(r DisplayRect, pageHeight float64) DocRect {
	return DocRect{X: r.X, Y: pageHeight - (r.Y + r.Height), Width: r.Width, Height: r.Height}
}

func (r DisplayRect) Right() float64  { return r.X + r.Width }
func (r DisplayRect) Bottom() float64 { return r.Y + r.Height }

func (r DisplayRect) Center() DisplayPoint {
	return DisplayPoint{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Contains reports whether p lies in r grown by tol on every side.
// Edges are inclusive.
func (r DisplayRect) Contains(p DisplayPoint, tol float64) bool {
	return p.X >= r.X-tol && p.X <= r.Right()+tol &&
		p.Y >= r.Y-tol && p.Y <= r.Bottom()+tol
}

// Union returns the smallest rectangle containing both r and o.
func (r DisplayRect) Union(o DisplayRect) DisplayRect {
	x0 := math.Min(r.X, o.X)
	y0 := math.Min(r.Y, o.Y)
	x1 := math.Max(r.Right(), o.Right())
	y1 := math.Max(r.Bottom(), o.Bottom())
	return DisplayRect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// ContainsRect reports whether o lies entirely inside r, allowing eps of
// floating point slack.
func (r DisplayRect) ContainsRect(o DisplayRect, eps float64) bool {
	return o.X >= r.X-eps && o.Y >= r.Y-eps &&
		o.Right() <= r.Right()+eps && o.Bottom() <= r.Bottom()+eps
}

// Outset grows the rectangle by pad on every side (shrinks for negative pad).
func (r DisplayRect) Outset(pad float64) DisplayRect {
	return DisplayRect{X: r.X - pad, Y: r.Y - pad, Width: r.Width + 2*pad, Height: r.Height + 2*pad}
}

func (r DisplayRect) Area() float64 { return r.Width * r.Height }
