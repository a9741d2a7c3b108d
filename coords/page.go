package coords

// PageTransform maps default user space of a page with visible box
// (llx, lly)-(urx, ury) and /Rotate rotate to document space of the page as
// displayed: origin at the visible bottom-left corner, rotation applied
// clockwise. It also returns the displayed width and height. Rotations that
// are not multiples of 90 are treated as 0.
func PageTransform(llx, lly, urx, ury float64, rotate int) (Matrix, float64, float64) {
	w, h := urx-llx, ury-lly
	m := Translate(-llx, -lly)
	switch ((rotate % 360) + 360) % 360 {
	case 90:
		return m.Multiply(Matrix{0, -1, 1, 0, 0, w}), h, w
	case 180:
		return m.Multiply(Matrix{-1, 0, 0, -1, w, h}), w, h
	case 270:
		return m.Multiply(Matrix{0, 1, -1, 0, h, 0}), h, w
	default:
		return m, w, h
	}
}
