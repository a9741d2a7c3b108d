package ocr

import (
	"context"
	"image"
)

// Region is a rectangle in image pixels with the origin top-left.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Union returns the smallest region covering r and o. Empty regions are
// ignored.
func (r Region) Union(o Region) Region {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	x0, y0 := min(r.X, o.X), min(r.Y, o.Y)
	x1, y1 := max(r.X+r.Width, o.X+o.Width), max(r.Y+r.Height, o.Y+o.Height)
	return Region{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Input is one rendered page submitted for recognition.
type Input struct {
	// ID is echoed back in the Result.
	ID string
	// Image holds the page encoded as PNG.
	Image []byte
	// PageIndex is the zero-based page the image was rendered from.
	PageIndex int
	// DPI is the resolution the page was rendered at; zero means unknown.
	DPI int
	// Languages are trained-data names such as "eng" or "deu".
	Languages []string
}

type TextWord struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// TextLine groups words that share a baseline.
type TextLine struct {
	Text       string
	Bounds     Region
	Words      []TextWord
	Confidence float64
}

type TextBlock struct {
	Text       string
	Bounds     Region
	Lines      []TextLine
	Confidence float64
}

// Result is the recognized text of one Input.
type Result struct {
	InputID   string
	PlainText string
	Blocks    []TextBlock
	Language  string
}

// Engine recognizes the words of a page image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// Rasterizer renders a page to an image. Page numbers are 1-based.
type Rasterizer interface {
	Rasterize(ctx context.Context, page, dpi int) (image.Image, error)
}
