package textlayer

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfedit/builder"
	"github.com/wudi/pdfedit/contentstream"
	"github.com/wudi/pdfedit/coords"
	"github.com/wudi/pdfedit/ocr"
	"github.com/wudi/pdfedit/parser"
)

func open(t *testing.T, data []byte) *parser.Document {
	t.Helper()
	doc, err := parser.Open(context.Background(), data, parser.Config{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return doc
}

func invoicePDF(t *testing.T) []byte {
	t.Helper()
	data, err := builder.NewBuilder().
		NewPage(612, 792).
		DrawText("Invoice", 72, 700, builder.TextOptions{FontSize: 24}).
		DrawText("Total: 42", 72, 650, builder.TextOptions{FontSize: 12, Font: "Helvetica-Bold"}).
		DrawText("   ", 72, 600, builder.TextOptions{}).
		Finish().
		NewPage(612, 792).
		SetRotation(90).
		DrawText("Sideways", 72, 700, builder.TextOptions{}).
		Finish().
		NewPage(612, 792).
		DrawRectangle(10, 10, 100, 100, builder.RectOptions{Fill: true}).
		Finish().
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return data
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestExtract(t *testing.T) {
	doc := open(t, invoicePDF(t))
	x := NewExtractor(doc, Config{})

	items, err := x.Extract(context.Background(), 1)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	var got []string
	for _, it := range items {
		got = append(got, it.Text)
	}
	if diff := cmp.Diff([]string{"Invoice", "Total: 42"}, got); diff != "" {
		t.Fatalf("item texts mismatch (-want +got):\n%s", diff)
	}

	inv := items[0]
	if inv.DocOrigin != (coords.DocPoint{X: 72, Y: 700}) {
		t.Errorf("doc origin = %+v", inv.DocOrigin)
	}
	if inv.Origin != (coords.DisplayPoint{X: 72, Y: 92}) {
		t.Errorf("display origin = %+v, want (72, 92)", inv.Origin)
	}
	if inv.FontSize != 24 || inv.Height != 24 || inv.Font != "Helvetica" {
		t.Errorf("font = %s %v %v", inv.Font, inv.FontSize, inv.Height)
	}
	if inv.Width <= 0 || !near(inv.Bounds.Bottom(), 92) || !near(inv.Bounds.Y, 68) {
		t.Errorf("bounds = %+v", inv.Bounds)
	}
	if inv.Direction != LeftToRight {
		t.Errorf("direction = %v", inv.Direction)
	}

	runs := GroupIntoRuns(1, items, DefaultLineThreshold)
	if len(runs) != 2 || runs[1].Text != "Total: 42" || !runs[1].Bold {
		t.Errorf("runs = %+v", runs)
	}
}

func TestExtractRotatedPage(t *testing.T) {
	doc := open(t, invoicePDF(t))
	items, err := NewExtractor(doc, Config{}).Extract(context.Background(), 2)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	it := items[0]
	// displayed page is 792 wide and 612 tall; (72, 700) lands at (700, 72)
	if !near(it.Origin.X, 700) || !near(it.Origin.Y, 72) {
		t.Errorf("origin = %+v, want (700, 72)", it.Origin)
	}
	// text runs downwards on the displayed page
	if !near(it.Bounds.Y, 72) || it.Bounds.Height <= it.Bounds.Width {
		t.Errorf("bounds = %+v", it.Bounds)
	}
}

func TestExtractPageOutOfRange(t *testing.T) {
	doc := open(t, invoicePDF(t))
	if _, err := NewExtractor(doc, Config{}).Extract(context.Background(), 9); err == nil {
		t.Fatal("expected error")
	}
}

type fakeRasterizer struct{ pages []int }

func (f *fakeRasterizer) Rasterize(_ context.Context, page, dpi int) (image.Image, error) {
	f.pages = append(f.pages, page)
	return image.NewGray(image.Rect(0, 0, 612*dpi/72, 792*dpi/72)), nil
}

type fakeOCR struct{ err error }

func (fakeOCR) Name() string { return "fake" }

func (f fakeOCR) Recognize(_ context.Context, in ocr.Input) (ocr.Result, error) {
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{InputID: in.ID, Blocks: []ocr.TextBlock{{Lines: []ocr.TextLine{{Words: []ocr.TextWord{
		{Text: "Scanned", Bounds: ocr.Region{X: 144, Y: 200, Width: 200, Height: 40}},
		{Text: " ", Bounds: ocr.Region{X: 350, Y: 200, Width: 10, Height: 40}},
		{Text: "text", Bounds: ocr.Region{X: 370, Y: 202, Width: 100, Height: 40}},
	}}}}}}, nil
}

func TestExtractOCRFallback(t *testing.T) {
	doc := open(t, invoicePDF(t))
	r := &fakeRasterizer{}
	x := NewExtractor(doc, Config{OCR: fakeOCR{}, Rasterizer: r, OCRDPI: 144})

	items, err := x.Extract(context.Background(), 3)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	want := coords.DisplayRect{X: 72, Y: 100, Width: 100, Height: 20}
	if items[0].Bounds != want || items[0].Origin != (coords.DisplayPoint{X: 72, Y: 120}) {
		t.Errorf("first item = %+v", items[0])
	}
	if items[0].DocOrigin != (coords.DocPoint{X: 72, Y: 672}) || items[0].Mode != contentstream.TextInvisible {
		t.Errorf("doc origin %+v mode %v", items[0].DocOrigin, items[0].Mode)
	}
	runs := GroupIntoRuns(3, items, 0)
	if len(runs) != 1 || runs[0].Text != "Scannedtext" {
		t.Errorf("runs = %+v", runs)
	}

	// pages with text never reach OCR
	if _, err := x.Extract(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{3}, r.pages); diff != "" {
		t.Errorf("rasterized pages mismatch (-want +got):\n%s", diff)
	}

	boom := errors.New("boom")
	x = NewExtractor(doc, Config{OCR: fakeOCR{err: boom}, Rasterizer: r})
	if _, err := x.Extract(context.Background(), 3); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func glyph(text string, show int, x, y, advance float64) contentstream.Glyph {
	m := coords.Matrix{10, 0, 0, 10, x, y}
	return contentstream.Glyph{
		Text: text, Font: "F", FontSize: 10, Size: 10,
		Matrix: m, Origin: coords.Point{X: x, Y: y}, Advance: advance, Show: show,
	}
}

func TestItemsFromGlyphs(t *testing.T) {
	glyphs := []contentstream.Glyph{
		glyph("H", 1, 10, 700, 7),
		glyph("i", 1, 17, 700, 3),
		glyph(" ", 1, 20, 700, 3),
		// kerned far apart within the same operator
		glyph("t", 1, 60, 700, 3),
		glyph("o", 1, 63, 700, 5),
		glyph(" ", 2, 80, 700, 3),
		glyph("x", 3, 90, 700, 5),
	}
	items := ItemsFromGlyphs(glyphs, 792, 0)
	var got []string
	for _, it := range items {
		got = append(got, it.Text)
	}
	if diff := cmp.Diff([]string{"Hi ", "to", "x"}, got); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
	if !near(items[0].Width, 13) || items[0].Bounds != (coords.DisplayRect{X: 10, Y: 82, Width: 13, Height: 10}) {
		t.Errorf("first item = %+v", items[0])
	}
}

func TestItemsFromGlyphsRightToLeft(t *testing.T) {
	items := ItemsFromGlyphs([]contentstream.Glyph{glyph("שלום", 1, 10, 100, 20)}, 792, 0)
	if len(items) != 1 || items[0].Direction != RightToLeft {
		t.Fatalf("items = %+v", items)
	}
}
