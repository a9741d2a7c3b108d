package contentstream

import "math"

// TextRenderMode matches PDF text rendering modes set via Tr operator.
type TextRenderMode int

const (
	TextFill TextRenderMode = iota
	TextStroke
	TextFillStroke
	TextInvisible
	TextFillClip
	TextStrokeClip
	TextFillStrokeClip
	TextClip
)

// Visible reports whether glyphs in this mode leave marks on the page.
func (m TextRenderMode) Visible() bool { return m != TextInvisible && m != TextClip }

// Color is an RGB color with components in [0, 1].
type Color struct{ R, G, B float64 }

var (
	Black = Color{}
	White = Color{1, 1, 1}
)

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

// Gray builds a color from a DeviceGray level.
func Gray(g float64) Color { g = clamp01(g); return Color{g, g, g} }

// CMYK converts DeviceCMYK components without color management.
func CMYK(c, m, y, k float64) Color {
	k = clamp01(k)
	return Color{
		R: (1 - clamp01(c)) * (1 - k),
		G: (1 - clamp01(m)) * (1 - k),
		B: (1 - clamp01(y)) * (1 - k),
	}
}

// ColorFromComponents interprets 1, 3 or 4 components as gray, RGB or CMYK.
func ColorFromComponents(v []float64) (Color, bool) {
	switch len(v) {
	case 1:
		return Gray(v[0]), true
	case 3:
		return Color{clamp01(v[0]), clamp01(v[1]), clamp01(v[2])}, true
	case 4:
		return CMYK(v[0], v[1], v[2], v[3]), true
	}
	return Color{}, false
}

// Hex renders the color as #rrggbb.
func (c Color) Hex() string {
	const digits = "0123456789abcdef"
	out := []byte{'#', 0, 0, 0, 0, 0, 0}
	for i, v := range []float64{c.R, c.G, c.B} {
		b := byte(math.Round(clamp01(v) * 255))
		out[1+2*i] = digits[b>>4]
		out[2+2*i] = digits[b&0x0f]
	}
	return string(out)
}
